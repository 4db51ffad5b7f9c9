// defaults.go: default configuration values applied before reading the
// config file.
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets the default values for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("database.path", "birds.db")

	viper.SetDefault("taxonomy.language", "en")
	viper.SetDefault("taxonomy.iocpath", "database/ioc_reference.db")
	viper.SetDefault("taxonomy.avibasepath", "database/avibase.db")
	viper.SetDefault("taxonomy.patlevinpath", "database/patlevin.db")

	viper.SetDefault("region.packdir", "database/region_packs")
	viper.SetDefault("region.pack", "")
	viper.SetDefault("region.h3resolution", 5)
	viper.SetDefault("region.strictness", "vagrant")
	viper.SetDefault("region.unknownspecies", "allow")

	viper.SetDefault("audio.recordingsdir", "recordings")

	viper.SetDefault("cleanup.deleteaudio", false)
	viper.SetDefault("cleanup.limit", 0)
	viper.SetDefault("cleanup.commitbatch", 0)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttlseconds", 60)
}
