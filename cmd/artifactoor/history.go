package main

import (
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/journal"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyFiles bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent upload runs from the journal",
	Long:  `List the most recent upload runs recorded in the journal, newest first.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyFiles, "files", false,
		"Include per-file outcomes for each run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is not enabled in config")
	}

	ctx := cmd.Context()

	j := journal.NewJournal(log, &cfg.Journal.Database)
	if err := j.Start(ctx); err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}

	defer func() {
		if err := j.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close journal")
		}
	}()

	runs, err := j.RecentRuns(ctx, historyLimit, historyFiles)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")

		return nil
	}

	fmt.Printf("Recent runs (%d):\n", len(runs))

	for _, run := range runs {
		fmt.Printf("  #%d  %s  bucket=%s signal=%s uploaded=%d failed=%d\n",
			run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.Bucket, run.Signal, run.Uploaded, run.Failed)

		if run.Cause != "" {
			fmt.Printf("       cause: %s\n", run.Cause)
		}

		if historyFiles {
			for _, f := range run.Files {
				if f.Error != "" {
					fmt.Printf("       - %s -> %s (error: %s)\n", f.File, f.Key, f.Error)
				} else {
					fmt.Printf("       - %s -> %s\n", f.File, f.Key)
				}
			}
		}
	}

	return nil
}
