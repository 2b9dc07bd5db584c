package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
)

var anonJobFile string

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Replace speaker embeddings with synthetic substitutes",
	Long: `Run one anonymization job described by a YAML file.

The job names the input and output batch files, the strategy and its
options. Input, output, pool and stats targets may be local paths or
s3://bucket/key.

Example job.yaml:

  strategy: random
  vec_type: xvector
  level: speaker
  in_scale: true
  stats_path: stats_per_dim.json
  cache_dir: ./anon-cache
  input: dev.vmb
  output: dev_anon.vmb`,
	RunE: runAnonymize,
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	if anonJobFile == "" {
		return fmt.Errorf("--file is required")
	}
	job, err := LoadJob(anonJobFile)
	if err != nil {
		return err
	}

	dev, err := device.Parse(job.Device)
	if err != nil {
		return err
	}
	level, err := embedding.ParseLevel(job.Level)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	runID := uuid.NewString()
	log := slog.With("run", runID)

	strat, closer, err := buildStrategy(ctx, job, dev)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	in, err := readBatch(ctx, job.Input, dev)
	if err != nil {
		return err
	}
	log.Info("anonymizing",
		"model", strat.ModelName(),
		"input", job.Input,
		"vectors", in.Len(),
		"dims", in.Dim(),
		"level", level,
	)

	start := time.Now()
	out, err := strat.Anonymize(ctx, in, level)
	if err != nil {
		return err
	}
	if err := writeBatch(ctx, job.Output, out); err != nil {
		return err
	}

	log.Info("done", "output", job.Output, "elapsed", time.Since(start))
	return nil
}

func init() {
	anonymizeCmd.Flags().StringVarP(&anonJobFile, "file", "f", "", "path to job YAML file")
	rootCmd.AddCommand(anonymizeCmd)
}
