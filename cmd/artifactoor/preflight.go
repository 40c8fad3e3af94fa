package main

import (
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/spf13/cobra"
)

var preflightBucket string

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Verify the storage gateway is reachable",
	Long: `Check that the configured storage gateway accepts the credentials and
report whether the target bucket exists. Nothing is written to storage.`,
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
	preflightCmd.Flags().StringVar(&preflightBucket, "bucket", "",
		"Bucket to check (overrides upload.bucket)")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	bucket := preflightBucket
	if bucket == "" {
		bucket = cfg.Upload.Bucket
	}

	if bucket == "" {
		return fmt.Errorf("bucket is required (use --bucket or upload.bucket)")
	}

	if err := storage.ValidateBucketName(bucket); err != nil {
		return fmt.Errorf("validating bucket: %w", err)
	}

	gateway, err := storage.NewGateway(log, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage gateway: %w", err)
	}

	log.WithField("endpoint", gateway.Endpoint()).Info("Checking storage gateway")

	exists, err := gateway.BucketExists(cmd.Context(), bucket)
	if err != nil {
		return fmt.Errorf("storage preflight check failed: %w", err)
	}

	if exists {
		log.WithField("bucket", bucket).Info("Bucket exists")
	} else {
		log.WithField("bucket", bucket).Info("Bucket does not exist (will be created on first upload)")
	}

	log.Info("Storage preflight check passed")

	return nil
}
