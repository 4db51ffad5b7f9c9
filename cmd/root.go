package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/taxondb/cmd/cleanup"
	"github.com/tphakala/taxondb/cmd/stats"
	"github.com/tphakala/taxondb/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taxondb",
		Short: "Taxonomy-enriched bird detection database tools",
	}

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")

	subcommands := []*cobra.Command{
		cleanup.Command(settings),
		stats.Command(settings),
		configCommand(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// configCommand prints the effective configuration.
func configCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := settings.DumpYAML()
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
}
