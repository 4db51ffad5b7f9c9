// Package cleanup implements the regional cleanup command.
package cleanup

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/taxondb/internal/conf"
	"github.com/tphakala/taxondb/internal/datastore"

	cleanupsvc "github.com/tphakala/taxondb/internal/cleanup"
)

// Command creates the cleanup command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		dryRun      bool
		deleteAudio bool
		strictness  string
		pack        string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove detections outside the configured region",
		Long: `Cleanup evaluates every detection against the eBird region pack and
deletes those whose confidence tier falls below the strictness level.
Use --dry-run to see what would be removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strictness == "" {
				strictness = settings.Region.Strictness
			}
			if limit > 0 {
				settings.Cleanup.Limit = limit
			}
			settings.Cleanup.DeleteAudio = deleteAudio

			return runCleanup(cmd, settings, datastore.Strictness(strictness), pack, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count filtered detections without deleting")
	cmd.Flags().BoolVar(&deleteAudio, "delete-audio", settings.Cleanup.DeleteAudio, "Also delete audio clips of removed detections")
	cmd.Flags().StringVar(&strictness, "strictness", "", "Strictness level: vagrant, rare, uncommon or common")
	cmd.Flags().StringVar(&pack, "pack", "", "Region pack identifier, defaults to the configured pack")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum detections to evaluate, 0 for all")

	return cmd
}

func runCleanup(cmd *cobra.Command, settings *conf.Settings, strictness datastore.Strictness, pack string, dryRun bool) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
		}
	}()

	service := cleanupsvc.New(store, settings)

	var (
		stats *cleanupsvc.CleanupStats
		err   error
	)
	if dryRun {
		stats, err = service.Preview(cmd.Context(), strictness, pack, settings.Cleanup.Limit)
	} else {
		stats, err = service.Run(cmd.Context(), strictness, pack, settings.Cleanup.DeleteAudio)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
