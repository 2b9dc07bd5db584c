package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/voxmask/voxmask/go/pkg/anonymizer"
	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
	"github.com/voxmask/voxmask/go/pkg/kv"
	"github.com/voxmask/voxmask/go/pkg/storage"
)

// Job is the YAML description of one anonymization run.
type Job struct {
	// Strategy selects the anonymization strategy: "random" (default)
	// or "pool".
	Strategy string `yaml:"strategy"`

	// VecType is the embedding family: xvector, ecapa or style-embed.
	VecType string `yaml:"vec_type"`

	// Level is "speaker" or "utterance".
	Level string `yaml:"level"`

	// Device is the compute target ("cpu", "cuda:0"). Default cpu.
	Device string `yaml:"device,omitempty"`

	// ModelName overrides the strategy's display name.
	ModelName string `yaml:"model_name,omitempty"`

	// InScale enables calibrated sampling for the random strategy.
	InScale bool `yaml:"in_scale,omitempty"`

	// StatsPath locates the calibration file (local or s3://).
	// Empty means stats_per_dim.json in the working directory.
	StatsPath string `yaml:"stats_path,omitempty"`

	// MaskBound overrides the masking range for the random strategy.
	MaskBound int `yaml:"mask_bound,omitempty"`

	// Seed fixes the random source for reproducible runs.
	Seed uint64 `yaml:"seed,omitempty"`

	// Pool configures the pool strategy.
	Pool struct {
		// Path is the pool batch file (local or s3://).
		Path string `yaml:"path"`

		// Candidates is how many farthest pool embeddings are averaged.
		Candidates int `yaml:"candidates,omitempty"`
	} `yaml:"pool,omitempty"`

	// CacheDir enables the consistent-substitute cache, backed by a
	// BadgerDB store in this directory.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// Input is the batch file to anonymize (local or s3://).
	Input string `yaml:"input"`

	// Output is where the anonymized batch is written (local or s3://).
	Output string `yaml:"output"`
}

// LoadJob parses a job YAML file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job YAML: %w", err)
	}
	if job.Strategy == "" {
		job.Strategy = "random"
	}
	if job.Input == "" || job.Output == "" {
		return nil, fmt.Errorf("job must set input and output")
	}
	return &job, nil
}

// readBatch loads a batch file from a local path or s3:// target.
func readBatch(ctx context.Context, target string, dev device.Device) (*embedding.Batch, error) {
	store, path, err := storage.Resolve(target, s3Opener())
	if err != nil {
		return nil, err
	}
	r, err := store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	defer r.Close()
	b, err := embedding.ReadBatch(r, dev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", target, err)
	}
	return b, nil
}

// writeBatch stores a batch to a local path or s3:// target.
func writeBatch(ctx context.Context, target string, b *embedding.Batch) error {
	store, path, err := storage.Resolve(target, s3Opener())
	if err != nil {
		return err
	}
	w, err := store.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := embedding.WriteBatch(w, b); err != nil {
		w.Close()
		return fmt.Errorf("%s: %w", target, err)
	}
	return w.Close()
}

// localStatsPath makes a calibration file locally readable: s3:// targets
// are fetched into a temp file, local paths pass through untouched.
func localStatsPath(ctx context.Context, target string) (string, error) {
	if target == "" {
		return "", nil
	}
	store, path, err := storage.Resolve(target, s3Opener())
	if err != nil {
		return "", err
	}
	if _, ok := store.(*storage.Local); ok {
		return path, nil
	}

	r, err := store.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("fetch stats %s: %w", target, err)
	}
	defer r.Close()
	tmp, err := os.CreateTemp("", "voxmask-stats-*.json")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch stats %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

// buildStrategy constructs the anonymizer described by the job.
// The returned closer (possibly nil) releases the cache store.
func buildStrategy(ctx context.Context, job *Job, dev device.Device) (anonymizer.Anonymizer, io.Closer, error) {
	vecType, err := embedding.ParseVecType(job.VecType)
	if err != nil {
		return nil, nil, err
	}

	var strat anonymizer.Anonymizer
	switch job.Strategy {
	case "random":
		statsPath, err := localStatsPath(ctx, job.StatsPath)
		if err != nil {
			return nil, nil, err
		}
		strat = anonymizer.NewRandom(anonymizer.RandomOptions{
			Device:    dev,
			VecType:   vecType,
			ModelName: job.ModelName,
			InScale:   job.InScale,
			StatsPath: statsPath,
			MaskBound: job.MaskBound,
			Seed:      job.Seed,
		})
	case "pool":
		if job.Pool.Path == "" {
			return nil, nil, fmt.Errorf("pool strategy needs pool.path")
		}
		poolBatch, err := readBatch(ctx, job.Pool.Path, dev)
		if err != nil {
			return nil, nil, err
		}
		strat, err = anonymizer.NewPool(poolBatch, anonymizer.PoolOptions{
			Device:     dev,
			VecType:    vecType,
			ModelName:  job.ModelName,
			Candidates: job.Pool.Candidates,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown strategy %q (want random or pool)", job.Strategy)
	}

	if job.CacheDir == "" {
		return strat, nil, nil
	}
	store, err := kv.OpenBadger(kv.BadgerOptions{Dir: job.CacheDir})
	if err != nil {
		return nil, nil, fmt.Errorf("open substitute cache: %w", err)
	}
	return anonymizer.NewConsistent(strat, store), store, nil
}
