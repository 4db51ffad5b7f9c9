// config.go: settings struct and loading for taxondb. Defines the
// configuration consumed by the datastore and cleanup services.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DatabaseSettings locates the primary detections database.
type DatabaseSettings struct {
	Path string // path to the SQLite detections database
}

// TaxonomySettings locates the attached reference databases and the
// display language for resolved common names.
type TaxonomySettings struct {
	Language     string // ISO language code for resolved common names
	IOCPath      string // IOC reference database
	AvibasePath  string // Avibase names database
	PatLevinPath string // PatLevin labels database
}

// RegionSettings configures the eBird regional-confidence pack.
type RegionSettings struct {
	PackDir        string // directory holding region pack databases
	Pack           string // active pack identifier, empty for global installs
	H3Resolution   int    // H3 resolution used to bucket detection coordinates
	Strictness     string // vagrant, rare, uncommon or common
	UnknownSpecies string // allow or block species missing from the pack
}

// AudioSettings locates recorded clips referenced by detections.
type AudioSettings struct {
	RecordingsDir string // base directory for relative audio file paths
}

// CleanupSettings tunes the regional cleanup runs.
type CleanupSettings struct {
	DeleteAudio bool // also remove audio clips of deleted detections
	Limit       int  // max candidates per run, 0 for unlimited
	CommitBatch int  // detections per commit, 0 commits once at the end
}

// CacheSettings tunes the analytics query cache.
type CacheSettings struct {
	Enabled    bool
	TTLSeconds int
}

// Settings contains all configuration options for taxondb.
type Settings struct {
	Debug bool // true to enable debug logging

	Database DatabaseSettings
	Taxonomy TaxonomySettings
	Region   RegionSettings
	Audio    AudioSettings
	Cleanup  CleanupSettings
	Cache    CacheSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration (defaults, config file, environment) into a
// Settings struct and stores it as the global instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the
// configuration file when one exists. A missing config file is not an
// error; defaults and environment variables apply.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("TAXONDB")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// configPaths returns the directories searched for config.yaml.
func configPaths() []string {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "taxondb"))
	}
	paths = append(paths, "/etc/taxondb")
	return paths
}

// GetSettings returns the current settings instance, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it if needed.
func Setting() *Settings {
	settingsMutex.RLock()
	loaded := settingsInstance != nil
	settingsMutex.RUnlock()

	if !loaded {
		if _, err := Load(); err != nil {
			return nil
		}
	}
	return GetSettings()
}

// DumpYAML renders the effective settings as YAML for diagnostics.
func (s *Settings) DumpYAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to yaml: %w", err)
	}
	return out, nil
}

// RegionPackPath resolves the database file for a region pack identifier.
func (s *Settings) RegionPackPath(pack string) string {
	if pack == "" {
		pack = s.Region.Pack
	}
	if filepath.Ext(pack) == "" {
		pack += ".db"
	}
	if filepath.IsAbs(pack) {
		return pack
	}
	return filepath.Join(s.Region.PackDir, pack)
}
