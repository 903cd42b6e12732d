package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var resumeCommand = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted pipeline run from its checkpoints",
	Long: `Continues a previous run: checkpointed stages are reused as-is and execution picks up from the first stage without a checkpoint.

The checkpoint store must be the same one the original run wrote to.`,
	RunE: resumePipelineCmd,
}

var resumeRunID string

func init() {
	resumeCommand.Flags().StringVar(&resumeRunID, "run-id", "", "Identifier of the run to resume")
	if err := resumeCommand.MarkFlagRequired("run-id"); err != nil {
		panic(err)
	}

	// Resume shares the run command's flag set; the variables are package
	// scoped so loadRunConfig sees the same values.
	resumeCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	resumeCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	resumeCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	resumeCommand.Flags().StringVar(&runSQLitePath, "sqlite", "", "SQLite checkpoint database path (used when no Postgres URL is set)")
	resumeCommand.Flags().StringVar(&runDataDir, "data-dir", "", "Directory for offloaded payloads")
	resumeCommand.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Maximum concurrent stages within a parallel group")
	resumeCommand.Flags().BoolVar(&runEvaluate, "evaluate", false, "Run the model judge on gated stage output")
	resumeCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")

	if err := resumeCommand.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(resumeCommand)
}

func resumePipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	runID, err := uuid.Parse(resumeRunID)
	if err != nil {
		return fmt.Errorf("invalid run-id format: %w", err)
	}

	cfg, err := loadRunConfig(cmd, runConfigPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return fmt.Errorf("resume requires a durable checkpoint store: set --db-url or --sqlite")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	run, runErr := rt.engine.Resume(ctx, runID, cfg.InitialInputs())
	rt.report(run)
	if runErr != nil {
		// Resume returns no run when the checkpoint store cannot be read.
		if run == nil {
			return fmt.Errorf("run %s: %w", runID, runErr)
		}
		return fmt.Errorf("run %s %s: %w", run.ID, run.Status, runErr)
	}
	return nil
}
