package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/voxmask/voxmask/go/pkg/anonymizer"
	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
	"github.com/voxmask/voxmask/go/pkg/storage"
)

var statsOut string

var statsCmd = &cobra.Command{
	Use:   "stats <batch.vmb> [more.vmb ...]",
	Short: "Build a per-dimension calibration file from reference batches",
	Long: `Compute the per-dimension min/max ranges of one or more reference
batches and write them as a stats_per_dim.json calibration file.

The calibrated ("in scale") random strategy samples substitutes within
these ranges, so the reference corpus should be disjoint from the data
being anonymized.

Examples:
  voxmask stats --out stats_per_dim.json libri_dev.vmb libri_test.vmb
  voxmask stats --out s3://corpora/stats/xvector.json ref.vmb`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dev := device.Default()

	batches := make([]*embedding.Batch, 0, len(args))
	for _, target := range args {
		b, err := readBatch(ctx, target, dev)
		if err != nil {
			return err
		}
		slog.Debug("loaded reference batch", "target", target, "vectors", b.Len(), "dims", b.Dim())
		batches = append(batches, b)
	}

	prof, err := anonymizer.BuildStats(batches...)
	if err != nil {
		return err
	}

	store, path, err := storage.Resolve(statsOut, s3Opener())
	if err != nil {
		return err
	}
	w, err := store.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("write %s: %w", statsOut, err)
	}
	if err := anonymizer.WriteStats(w, prof); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("wrote %d dimension ranges to %s\n", len(prof), statsOut)
	return nil
}

func init() {
	statsCmd.Flags().StringVar(&statsOut, "out", anonymizer.DefaultStatsFile, "output calibration file (local or s3://)")
	rootCmd.AddCommand(statsCmd)
}
