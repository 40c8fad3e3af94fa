package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/agent"
	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/journal"
	"github.com/ethpandaops/artifactoor/pkg/publish"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/spf13/cobra"
)

// journalTimeout bounds journal writes after the run so an interrupted
// run still gets recorded.
const journalTimeout = 10 * time.Second

var (
	uploadSource      string
	uploadExclude     string
	uploadBucket      string
	uploadPrefix      string
	uploadWorkspace   string
	uploadBuildResult string
	uploadEnvVars     []string
	uploadSignalFile  string
	uploadStrictExit  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload build artifacts to remote storage",
	Long: `Resolve glob patterns against the workspace and upload every matched
file to the configured bucket. Failed files degrade the run instead of
aborting it; the final signal is continue, unstable or skipped.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadSource, "source", "",
		"Comma-separated glob patterns to upload (overrides upload.source)")
	uploadCmd.Flags().StringVar(&uploadExclude, "exclude", "",
		"Glob pattern for files to skip (overrides upload.exclude)")
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", "",
		"Target bucket (overrides upload.bucket)")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "",
		"Object key prefix (overrides upload.object_prefix)")
	uploadCmd.Flags().StringVar(&uploadWorkspace, "workspace", "",
		"Workspace root the patterns are resolved against (overrides upload.workspace)")
	uploadCmd.Flags().StringVar(&uploadBuildResult, "build-result", "",
		"Build result so far (success, unstable, failure, aborted); "+
			"defaults to $ARTIFACTOOR_BUILD_RESULT")
	uploadCmd.Flags().StringArrayVar(&uploadEnvVars, "env", nil,
		"Variable for ${VAR} expansion in source/exclude as key=value (can be repeated)")
	uploadCmd.Flags().StringVar(&uploadSignalFile, "signal-file", "",
		"File to write the final signal string to")
	uploadCmd.Flags().BoolVar(&uploadStrictExit, "strict-exit", false,
		"Exit with code 3 when the run finishes unstable")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	// Load configuration.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Merge CLI flags into config (CLI wins on conflict).
	if uploadSource != "" {
		cfg.Upload.Source = uploadSource
	}

	if uploadExclude != "" {
		cfg.Upload.Exclude = uploadExclude
	}

	if uploadBucket != "" {
		cfg.Upload.Bucket = uploadBucket
	}

	if uploadPrefix != "" {
		cfg.Upload.ObjectPrefix = uploadPrefix
	}

	if uploadWorkspace != "" {
		cfg.Upload.Workspace = uploadWorkspace
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Parse CLI variable overrides for ${VAR} expansion.
	overrides := make(map[string]string, len(uploadEnvVars))

	for _, entry := range uploadEnvVars {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid env override %q: must be key=value", entry)
		}

		overrides[k] = v
	}

	cfg.Upload.Source = expandVars(cfg.Upload.Source, overrides)
	cfg.Upload.Exclude = expandVars(cfg.Upload.Exclude, overrides)

	patterns := publish.SplitPatterns(cfg.Upload.Source)
	if len(patterns) == 0 {
		return fmt.Errorf("no source patterns configured (use --source or upload.source)")
	}

	if cfg.Upload.Bucket == "" {
		return fmt.Errorf("bucket is required (use --bucket or upload.bucket)")
	}

	if err := storage.ValidateBucketName(cfg.Upload.Bucket); err != nil {
		return fmt.Errorf("validating bucket: %w", err)
	}

	workspace := cfg.Upload.Workspace
	if workspace == "" {
		workspace = "."
	}

	workspace, err = filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}

	// Parse the build result so far, falling back to the environment.
	resultStr := uploadBuildResult
	if resultStr == "" {
		resultStr = os.Getenv("ARTIFACTOOR_BUILD_RESULT")
	}

	buildResult := publish.ResultNone

	if resultStr != "" {
		buildResult, err = publish.ParseBuildResult(resultStr)
		if err != nil {
			return fmt.Errorf("parsing build result: %w", err)
		}
	}

	// Create the storage gateway.
	gateway, err := storage.NewGateway(log, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage gateway: %w", err)
	}

	// Dispatch through the remote agent when one is configured,
	// otherwise upload in-process.
	var dispatcher publish.Dispatcher

	if cfg.Upload.Agent.URL != "" {
		dispatcher = agent.NewClient(log, &cfg.Upload.Agent)

		log.WithField("agent", cfg.Upload.Agent.URL).Info("Dispatching uploads to remote agent")
	} else {
		dispatcher = &publish.LocalDispatcher{Gateway: gateway}
	}

	publisher := publish.NewPublisher(log, gateway, dispatcher, publish.Options{
		Label: cfg.Global.DisplayLabel,
	})

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	req := publish.Request{
		Patterns:    patterns,
		Exclude:     cfg.Upload.Exclude,
		Bucket:      cfg.Upload.Bucket,
		Prefix:      cfg.Upload.ObjectPrefix,
		Workspace:   workspace,
		BuildResult: buildResult,
	}

	report := publisher.Run(ctx, req)

	if cfg.Journal.Enabled {
		recordRun(&cfg.Journal.Database, req, report)
	}

	if uploadSignalFile != "" {
		data := []byte(report.Signal.String() + "\n")
		if err := os.WriteFile(uploadSignalFile, data, 0o644); err != nil {
			log.WithError(err).WithField("file", uploadSignalFile).
				Warn("Failed to write signal file")
		}
	}

	if uploadStrictExit && report.Signal == publish.SignalUnstable {
		os.Exit(3)
	}

	return nil
}

// recordRun writes the finished run to the journal. Journal failures are
// logged and never affect the run outcome.
func recordRun(cfg *config.DatabaseConfig, req publish.Request, rep *publish.Report) {
	// The run context may already be cancelled; the journal write gets
	// its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	j := journal.NewJournal(log, cfg)

	if err := j.Start(ctx); err != nil {
		log.WithError(err).Warn("Failed to open journal")

		return
	}

	defer func() {
		if err := j.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close journal")
		}
	}()

	if err := j.RecordRun(ctx, journal.NewRun(req, rep)); err != nil {
		log.WithError(err).Warn("Failed to record run in journal")
	}
}

// expandVars expands ${VAR} references from the process environment,
// with explicit overrides taking precedence.
func expandVars(s string, overrides map[string]string) string {
	if s == "" {
		return s
	}

	return os.Expand(s, func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}

		return os.Getenv(key)
	})
}
