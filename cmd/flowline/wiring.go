package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmaher/flowline/internal/checkpoint"
	"github.com/dmaher/flowline/internal/collab"
	"github.com/dmaher/flowline/internal/config"
	"github.com/dmaher/flowline/internal/dedup"
	"github.com/dmaher/flowline/internal/engine"
	"github.com/dmaher/flowline/internal/graph"
	"github.com/dmaher/flowline/internal/observability"
	"github.com/dmaher/flowline/internal/offload"
	"github.com/dmaher/flowline/internal/port"
	"github.com/dmaher/flowline/internal/source"
	"github.com/dmaher/flowline/internal/types"
)

// runtime bundles the wired engine with everything that needs closing after
// the run.
type runtime struct {
	engine  *engine.Engine
	graph   *graph.Graph
	printer *observability.Printer
	closers []func() error
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// buildRuntime wires the engine from a validated config: checkpoint store
// (Postgres, SQLite, or in-memory in that order of preference), document
// writer, payload side-store, and the Gemini collaborator.
func buildRuntime(ctx context.Context, cfg *config.RunConfig) (*runtime, error) {
	g, err := graph.New(cfg.Stages)
	if err != nil {
		return nil, fmt.Errorf("invalid stage graph: %w", err)
	}

	rt := &runtime{graph: g}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	gemini, err := collab.NewGeminiCollaborator(ctx, collab.DefaultConfig(), apiKey)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, gemini.Close)

	var collaborator port.Collaborator = gemini
	if cfg.Source != nil {
		src, err := source.NewHTMLSource(*cfg.Source, nil)
		if err != nil {
			rt.close()
			return nil, err
		}
		collaborator = collab.NewRouter(gemini).Route("fetch", source.NewCollaborator(src))
	}

	var evaluator port.Evaluator
	if cfg.Evaluate {
		evaluator = collab.NewJudgeEvaluator(gemini)
	}

	databaseURL := cfg.DatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	var checkpoints checkpoint.Store
	var writer dedup.Writer
	switch {
	case databaseURL != "":
		store, err := checkpoint.ConnectPostgres(ctx, databaseURL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to connect checkpoint store: %w", err)
		}
		checkpoints = store

		pgWriter, err := dedup.ConnectPostgres(ctx, databaseURL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to connect document writer: %w", err)
		}
		writer = pgWriter
	case cfg.SQLitePath != "":
		store, err := checkpoint.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		checkpoints = store
		writer = dedup.NewMemoryWriter()
	default:
		checkpoints = checkpoint.NewMemoryStore()
		writer = dedup.NewMemoryWriter()
	}
	rt.closers = append(rt.closers, checkpoints.Close, writer.Close)

	var payloads port.PayloadStore
	if dir := dataDir(cfg); dir != "" {
		store, err := offload.NewFileStore(dir)
		if err != nil {
			rt.close()
			return nil, err
		}
		payloads = store
	}

	opts := engine.Options{
		Graph:        g,
		Limits:       cfg.Budget.Limits(),
		Quality:      cfg.Quality,
		Sizing:       cfg.Sizing,
		MaxWorkers:   cfg.MaxWorkers,
		Collaborator: collaborator,
		Evaluator:    evaluator,
		Checkpoints:  checkpoints,
		Writer:       writer,
		Payloads:     payloads,
	}
	if cfg.Verbose {
		rt.printer = observability.NewPrinter(os.Stdout)
		opts.OnProgress = rt.printer.Progress()
	}

	eng, err := engine.New(opts)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.engine = eng
	return rt, nil
}

// dataDir resolves the offload directory from the config with the
// FLOWLINE_DATA_DIR environment variable as fallback.
func dataDir(cfg *config.RunConfig) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return os.Getenv("FLOWLINE_DATA_DIR")
}

// report prints the outcome of a finished run. A nil run means execution
// never started (resume seeding can fail before any stage runs).
func (r *runtime) report(run *types.Run) {
	if run == nil {
		return
	}
	if r.printer == nil {
		fmt.Printf("run %s: %s (release: %s, cost: %.4f)\n", run.ID, run.Status, run.Release, run.Cost)
		return
	}

	var order []string
	for _, def := range r.graph.Stages() {
		order = append(order, def.Name)
	}
	r.printer.PrintStageResults(run, order)
	r.printer.PrintRunSummary(run)
}
