package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/voxmask/voxmask/go/pkg/storage"
)

// Global flags.
var (
	verbose   bool
	awsRegion string
)

var rootCmd = &cobra.Command{
	Use:   "voxmask",
	Short: "Speaker embedding anonymization pipeline",
	Long: `voxmask - anonymize speaker embeddings for voice privacy.

The pipeline replaces identity-bearing embedding vectors with synthetic
substitutes while keeping identifier order and speaker/gender metadata
intact, so downstream synthesis stages keep working.

Batch files (.vmb, msgpack) and calibration files (stats_per_dim.json)
may be local paths or s3://bucket/key targets.

Examples:
  # Default masking strategy
  voxmask anonymize -f job.yaml

  # Build calibration stats from a reference corpus, then sample in scale
  voxmask stats --out stats_per_dim.json ref1.vmb ref2.vmb
  voxmask anonymize -f job.yaml   # job.yaml: in_scale: true

  # Show what's in a batch file
  voxmask inspect dev.vmb`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&awsRegion, "aws-region", "", "region for s3:// targets (default from AWS_REGION)")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// s3Opener builds the storage.S3Opener used to resolve s3:// targets.
// Credentials come from the standard AWS environment variables.
func s3Opener() storage.S3Opener {
	return func(bucket string) (storage.FileStore, error) {
		region := awsRegion
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			return nil, fmt.Errorf("no AWS region configured (set --aws-region or AWS_REGION)")
		}
		creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id := os.Getenv("AWS_ACCESS_KEY_ID")
			secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, fmt.Errorf("AWS credentials not set in environment")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			}, nil
		})
		client := s3.New(s3.Options{Region: region, Credentials: creds})
		return storage.NewS3(client, bucket), nil
	}
}
