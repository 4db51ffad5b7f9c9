// Package stats implements the database statistics command.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/taxondb/internal/conf"
	"github.com/tphakala/taxondb/internal/datastore"
)

// Command creates the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		days    int
		asJSON  bool
		species int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show detection and storage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, settings, days, species, asJSON)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Limit statistics to the last N days, 0 for all time")
	cmd.Flags().IntVar(&species, "species", 10, "Number of top species to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit statistics as JSON")

	return cmd
}

type report struct {
	Detections    int64                     `json:"detections"`
	UniqueSpecies int64                     `json:"unique_species"`
	TopSpecies    []datastore.SpeciesCount  `json:"top_species"`
	Storage       *datastore.StorageMetrics `json:"storage"`
}

func runStats(cmd *cobra.Command, settings *conf.Settings, days, topN int, asJSON bool) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var start *time.Time
	if days > 0 {
		from := time.Now().AddDate(0, 0, -days)
		start = &from
	}

	r, err := collect(ctx, store, start, topN)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	return printReport(cmd, r)
}

func collect(ctx context.Context, store *datastore.SQLiteStore, start *time.Time, topN int) (*report, error) {
	r := &report{}

	var err error
	if r.Detections, err = store.GetDetectionCount(ctx, start, nil); err != nil {
		return nil, err
	}
	if r.UniqueSpecies, err = store.GetUniqueSpeciesCount(ctx, start, nil); err != nil {
		return nil, err
	}
	if r.TopSpecies, err = store.GetSpeciesCounts(ctx, start, nil); err != nil {
		return nil, err
	}
	if topN > 0 && len(r.TopSpecies) > topN {
		r.TopSpecies = r.TopSpecies[:topN]
	}
	if r.Storage, err = store.GetStorageMetrics(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func printReport(cmd *cobra.Command, r *report) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Detections:     %d\n", r.Detections)
	fmt.Fprintf(out, "Unique species: %d\n", r.UniqueSpecies)
	fmt.Fprintf(out, "Database size:  %.1f MiB (disk %.1f%% used)\n",
		float64(r.Storage.DatabaseBytes)/(1024*1024), r.Storage.DiskUsedPercent)
	fmt.Fprintf(out, "Audio clips:    %d (%.1f MiB)\n\n",
		r.Storage.AudioFileCount, float64(r.Storage.AudioBytes)/(1024*1024))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPECIES\tCOMMON NAME\tCOUNT\tLAST SEEN")
	for _, s := range r.TopSpecies {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			s.ScientificName, s.CommonName, s.Count, s.LastSeen.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
