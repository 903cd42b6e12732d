package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmaher/flowline/internal/config"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline from a stage graph config",
	Long: `Executes the configured stage graph end-to-end: strategy sizing, parallel groups, checkpointing, budget governance, quality gating, and deduplicated delivery of final records.

Configuration is loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runAPIKey      string
	runDatabaseURL string
	runSQLitePath  string
	runDataDir     string
	runMaxWorkers  int
	runEvaluate    bool
	runVerbose     bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().StringVar(&runSQLitePath, "sqlite", "", "SQLite checkpoint database path (used when no Postgres URL is set)")
	runCommand.Flags().StringVar(&runDataDir, "data-dir", "", "Directory for offloaded payloads")
	runCommand.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Maximum concurrent stages within a parallel group")
	runCommand.Flags().BoolVar(&runEvaluate, "evaluate", false, "Run the model judge on gated stage output")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")

	if err := runCommand.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCommand)
}

// loadRunConfig loads the config file, applies explicit CLI overrides, and
// validates the result. Shared by run and resume.
func loadRunConfig(cmd *cobra.Command, path string) (*config.RunConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI overrides (command-line args take priority). Only override
	// if the flag was explicitly set.
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("sqlite") {
		cfg.SQLitePath = runSQLitePath
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = runDataDir
	}
	if cmd.Flags().Changed("max-workers") {
		cfg.MaxWorkers = runMaxWorkers
	}
	if cmd.Flags().Changed("evaluate") {
		cfg.Evaluate = runEvaluate
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadRunConfig(cmd, runConfigPath)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", runConfigPath)
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	run, runErr := rt.engine.Execute(ctx, cfg.InitialInputs())
	rt.report(run)
	if runErr != nil {
		return fmt.Errorf("run %s %s: %w", run.ID, run.Status, runErr)
	}
	return nil
}
