// Package engine orchestrates pipeline runs: it sequences stages over a
// validated dependency graph, dispatches parallel groups onto a bounded
// worker pool, checkpoints completed work, charges the budget governor,
// evaluates quality gates, and hands the final output batch to the
// deduplicating writer.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmaher/flowline/internal/budget"
	"github.com/dmaher/flowline/internal/checkpoint"
	"github.com/dmaher/flowline/internal/dedup"
	"github.com/dmaher/flowline/internal/graph"
	"github.com/dmaher/flowline/internal/port"
	"github.com/dmaher/flowline/internal/quality"
	"github.com/dmaher/flowline/internal/sizing"
	"github.com/dmaher/flowline/internal/types"
)

// ProgressEvent represents a progress update during run execution
type ProgressEvent struct {
	Stage    string `json:"stage,omitempty"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs. It may be invoked
// from concurrent stage goroutines.
type ProgressCallback func(event ProgressEvent)

// Progress event categories.
const (
	CategoryStage  = "stage"
	CategoryBudget = "budget"
	CategoryGate   = "gate"
	CategoryWriter = "writer"
	CategoryRun    = "run"
)

const defaultMaxWorkers = 4

// Options wires the engine's collaborators and per-run configuration.
// Configuration is explicit and run-scoped; the engine keeps no ambient
// state between runs.
type Options struct {
	Graph        *graph.Graph
	Limits       budget.Limits
	Quality      quality.Config
	Sizing       sizing.Thresholds
	MaxWorkers   int
	Collaborator port.Collaborator
	Evaluator    port.Evaluator
	Checkpoints  checkpoint.Store
	Writer       dedup.Writer
	Payloads     port.PayloadStore
	OnProgress   ProgressCallback
}

// Engine executes pipeline runs. Safe for sequential reuse; each call to
// Execute or Resume owns its run exclusively until the run is terminal.
type Engine struct {
	opts  Options
	sizer *sizing.Sizer
	gate  *quality.Gate
}

// New validates the wiring and constructs an engine
func New(opts Options) (*Engine, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("engine requires a stage graph")
	}
	if opts.Collaborator == nil {
		return nil, fmt.Errorf("engine requires a collaborator port")
	}
	if opts.Checkpoints == nil {
		return nil, fmt.Errorf("engine requires a checkpoint store")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = defaultMaxWorkers
	}

	sizer, err := sizing.NewSizer(opts.Sizing)
	if err != nil {
		return nil, err
	}
	gate, err := quality.NewGate(opts.Quality, opts.Evaluator)
	if err != nil {
		return nil, err
	}
	return &Engine{opts: opts, sizer: sizer, gate: gate}, nil
}

// runState is the mutable bookkeeping for one run. Stage results are
// written only by the coordinating goroutine; the governor serializes
// concurrent charges internally.
type runState struct {
	run    *types.Run
	gov    *budget.Governor
	inputs map[string][]byte
	cancel context.CancelFunc

	mu      sync.Mutex
	aborted bool
	fatal   error
	cause   error
}

func (st *runState) abort() {
	st.mu.Lock()
	already := st.aborted
	st.aborted = true
	st.mu.Unlock()
	if !already {
		st.cancel()
	}
}

func (st *runState) isAborted() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.aborted
}

func (st *runState) setFatal(err error) {
	st.mu.Lock()
	if st.fatal == nil {
		st.fatal = err
	}
	st.mu.Unlock()
	st.cancel()
}

func (st *runState) setCause(err error) {
	st.mu.Lock()
	if st.cause == nil {
		st.cause = err
	}
	st.mu.Unlock()
}

func (st *runState) stopped() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.aborted || st.fatal != nil
}

// Execute runs the graph from scratch under a fresh run identifier
func (e *Engine) Execute(ctx context.Context, initialInputs map[string][]byte) (*types.Run, error) {
	return e.run(ctx, uuid.New(), initialInputs, false)
}

// Resume continues an interrupted run: checkpointed stages are seeded as
// already succeeded and execution picks up from the first stage without a
// checkpoint, reproducing the dependency state of an uninterrupted run.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID, initialInputs map[string][]byte) (*types.Run, error) {
	return e.run(ctx, runID, initialInputs, true)
}

func (e *Engine) run(ctx context.Context, runID uuid.UUID, inputs map[string][]byte, resume bool) (*types.Run, error) {
	run := &types.Run{
		ID:        runID,
		Status:    types.RunRunning,
		StartedAt: time.Now().UTC(),
		Results:   make(map[string]*types.StageResult, e.opts.Graph.Len()),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{
		run:    run,
		gov:    budget.NewGovernor(e.opts.Limits),
		inputs: inputs,
		cancel: cancel,
	}

	if resume {
		if err := e.seedFromCheckpoints(ctx, st); err != nil {
			return nil, err
		}
	}

	for !st.stopped() {
		batch := e.nextBatch(st)
		if len(batch) == 0 {
			break
		}
		e.executeBatch(runCtx, st, batch)
	}

	e.finish(ctx, st)

	usage := st.gov.Snapshot()
	run.Cost = usage.Cost
	run.Elapsed = usage.Elapsed
	run.Retries = usage.Retries
	now := time.Now().UTC()
	run.EndedAt = &now

	e.emit(st, "", CategoryRun, fmt.Sprintf("run %s: %s", run.ID, run.Status), nil)
	return run, st.cause
}

func (e *Engine) seedFromCheckpoints(ctx context.Context, st *runState) error {
	completed, err := e.opts.Checkpoints.ListCompleted(ctx, st.run.ID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints for resume: %w", err)
	}
	for _, stage := range completed {
		if _, known := e.opts.Graph.Def(stage); !known {
			continue
		}
		res, err := e.opts.Checkpoints.Load(ctx, st.run.ID, stage)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint for resume: %w", err)
		}
		if res == nil || res.Status != types.StageSucceeded {
			continue
		}
		res.Resumed = true
		st.run.Results[stage] = res
		e.emit(st, stage, CategoryStage, "resumed from checkpoint", nil)
	}
	return nil
}

// nextBatch selects the stages to dispatch next: the first ready stage,
// plus every other ready stage sharing its parallel group. Stages without a
// group run alone.
func (e *Engine) nextBatch(st *runState) []graph.StageDefinition {
	var ready []graph.StageDefinition
	for _, def := range e.opts.Graph.Stages() {
		if st.run.Results[def.Name] != nil {
			continue
		}
		if e.depsResolved(st, def) {
			ready = append(ready, def)
		}
	}
	if len(ready) == 0 {
		return nil
	}

	first := ready[0]
	if first.ParallelGroup == "" {
		return ready[:1]
	}
	batch := ready[:1]
	for _, def := range ready[1:] {
		if def.ParallelGroup == first.ParallelGroup {
			batch = append(batch, def)
		}
	}
	return batch
}

// depsResolved reports whether every dependency either succeeded or is an
// optional stage that failed (downstream proceeds with a null result).
func (e *Engine) depsResolved(st *runState, def graph.StageDefinition) bool {
	for _, dep := range def.DependsOn {
		res := st.run.Results[dep]
		if res == nil {
			return false
		}
		if res.Status == types.StageSucceeded {
			continue
		}
		depDef, _ := e.opts.Graph.Def(dep)
		if !depDef.Optional {
			return false
		}
	}
	return true
}

func (e *Engine) executeBatch(ctx context.Context, st *runState, batch []graph.StageDefinition) {
	if len(batch) == 1 {
		e.apply(st, batch[0], e.executeStage(ctx, st, batch[0]))
		return
	}

	var mu sync.Mutex
	results := make(map[string]*types.StageResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxWorkers)
	for _, def := range batch {
		def := def
		g.Go(func() error {
			res := e.executeStage(gctx, st, def)
			mu.Lock()
			results[def.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, def := range batch {
		e.apply(st, def, results[def.Name])
	}
}

// apply records a stage outcome and propagates failure to dependents. A nil
// result means the stage was cancelled mid-flight and its work discarded.
func (e *Engine) apply(st *runState, def graph.StageDefinition, res *types.StageResult) {
	if res == nil {
		return
	}
	st.run.Results[def.Name] = res
	e.emit(st, def.Name, CategoryStage, fmt.Sprintf("%s (cost %.4f)", res.Status, res.Cost), nil)

	if res.Status != types.StageFailed {
		return
	}
	if def.Optional {
		e.emit(st, def.Name, CategoryStage, "optional stage failed; dependents proceed with null input", nil)
		return
	}

	now := time.Now().UTC()
	for _, dependent := range e.opts.Graph.Dependents(def.Name) {
		if st.run.Results[dependent] == nil {
			st.run.Results[dependent] = &types.StageResult{
				Stage:      dependent,
				Status:     types.StageSkipped,
				FinishedAt: now,
			}
		}
	}
	st.setCause(&StageFailureError{Stage: def.Name, Err: fmt.Errorf("%s", res.Error)})
}

// stageRun accumulates cost and retries across the possibly concurrent
// collaborator calls of a single stage.
type stageRun struct {
	mu      sync.Mutex
	cost    float64
	retries int
}

func (sr *stageRun) addCost(c float64) {
	sr.mu.Lock()
	sr.cost += c
	sr.mu.Unlock()
}

func (sr *stageRun) addRetry() {
	sr.mu.Lock()
	sr.retries++
	sr.mu.Unlock()
}

func (sr *stageRun) totals() (float64, int) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.cost, sr.retries
}

func (e *Engine) executeStage(ctx context.Context, st *runState, def graph.StageDefinition) *types.StageResult {
	start := time.Now()
	sr := &stageRun{}

	input, err := e.buildInput(st, def)
	if err != nil {
		return e.failedResult(def, sr, start, err)
	}

	strategy := e.sizer.SelectStrategy(len(input))
	e.emit(st, def.Name, CategoryStage, fmt.Sprintf("dispatching with %s strategy (%d bytes)", strategy, len(input)), nil)

	var output []byte
	switch strategy {
	case sizing.StrategyDirect:
		output, err = e.invokeWithRetry(ctx, st, sr, def, input, strategy)
	case sizing.StrategyChunked:
		output, err = e.runChunked(ctx, st, sr, def, input)
	case sizing.StrategyOffloaded:
		output, err = e.runOffloaded(ctx, st, sr, def, input)
	}
	if err != nil {
		// An aborted run discards computed-but-uncommitted work entirely.
		if st.isAborted() || ctx.Err() != nil {
			return nil
		}
		return e.failedResult(def, sr, start, err)
	}

	cost, retries := sr.totals()
	res := &types.StageResult{
		Stage:      def.Name,
		Status:     types.StageSucceeded,
		Payload:    output,
		Cost:       cost,
		Retries:    retries,
		Duration:   time.Since(start),
		FinishedAt: time.Now().UTC(),
	}

	if def.Gated {
		if err := e.evaluateGate(ctx, st, sr, def, res); err != nil {
			if st.isAborted() || ctx.Err() != nil {
				return nil
			}
			return e.failedResult(def, sr, start, err)
		}
	}

	if def.Checkpoint {
		if err := e.opts.Checkpoints.Save(ctx, st.run.ID, res); err != nil {
			if st.isAborted() || ctx.Err() != nil {
				return nil
			}
			werr := &CheckpointWriteError{Stage: def.Name, Err: err}
			st.setFatal(werr)
			return e.failedResult(def, sr, start, werr)
		}
	}
	return res
}

func (e *Engine) failedResult(def graph.StageDefinition, sr *stageRun, start time.Time, err error) *types.StageResult {
	cost, retries := sr.totals()
	return &types.StageResult{
		Stage:      def.Name,
		Status:     types.StageFailed,
		Error:      err.Error(),
		Cost:       cost,
		Retries:    retries,
		Duration:   time.Since(start),
		FinishedAt: time.Now().UTC(),
	}
}

// buildInput assembles the stage input from the initial inputs and the
// recorded dependency payloads. A single dependency passes through as-is;
// multiple dependencies are combined into a JSON object keyed by stage
// name, with null entries for failed optional dependencies.
func (e *Engine) buildInput(st *runState, def graph.StageDefinition) ([]byte, error) {
	initial := st.inputs[def.Name]
	if len(def.DependsOn) == 0 {
		return initial, nil
	}
	if len(def.DependsOn) == 1 && initial == nil {
		res := st.run.Results[def.DependsOn[0]]
		if res == nil || res.Status != types.StageSucceeded {
			return nil, nil
		}
		return res.Payload, nil
	}

	parts := make(map[string]json.RawMessage, len(def.DependsOn)+1)
	if initial != nil {
		parts["input"] = rawOrQuoted(initial)
	}
	for _, dep := range def.DependsOn {
		res := st.run.Results[dep]
		if res == nil || res.Status != types.StageSucceeded {
			parts[dep] = json.RawMessage("null")
			continue
		}
		parts[dep] = rawOrQuoted(res.Payload)
	}
	combined, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to combine dependency payloads: %w", err)
	}
	return combined, nil
}

func rawOrQuoted(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return json.RawMessage(quoted)
}

// invokeWithRetry calls the collaborator, retrying transient failures until
// the stage's retry budget runs out. Every successful call is charged to
// the governor; a governor abort cancels the whole run.
func (e *Engine) invokeWithRetry(ctx context.Context, st *runState, sr *stageRun, def graph.StageDefinition, payload []byte, strategy sizing.Strategy) ([]byte, error) {
	req := port.InvokeRequest{
		Stage:        def.Name,
		Kind:         def.Kind,
		Payload:      payload,
		StrategyHint: string(strategy),
	}

	for {
		callStart := time.Now()
		res, err := e.opts.Collaborator.Invoke(ctx, req)
		elapsed := time.Since(callStart)

		if err == nil {
			sr.addCost(res.Cost)
			if e.charge(st, def.Name, res.Cost, elapsed) == budget.ActionAbort {
				return nil, ErrBudgetExceeded
			}
			return res.Output, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !port.IsTransient(err) {
			return nil, err
		}

		sr.addRetry()
		if e.charge(st, def.Name, 0, elapsed) == budget.ActionAbort {
			return nil, ErrBudgetExceeded
		}
		if st.gov.RecordRetry(def.Name) == budget.ActionAbort {
			return nil, fmt.Errorf("%w for stage %q: %v", ErrRetryExhausted, def.Name, err)
		}
		e.emit(st, def.Name, CategoryStage, fmt.Sprintf("transient failure, retrying: %v", err), nil)
	}
}

// charge routes a cost/time delta through the governor and reacts to the
// verdict: warn is surfaced, abort cancels the run.
func (e *Engine) charge(st *runState, stage string, cost float64, elapsed time.Duration) budget.Action {
	action := st.gov.Charge(cost, elapsed)
	switch action {
	case budget.ActionWarn:
		usage := st.gov.Snapshot()
		e.emit(st, stage, CategoryBudget, fmt.Sprintf("budget warning: cost %.4f, elapsed %s", usage.Cost, usage.Elapsed), nil)
	case budget.ActionAbort:
		e.emit(st, stage, CategoryBudget, "budget exceeded, aborting run", nil)
		st.abort()
	}
	return action
}

// runChunked partitions the input, processes each piece on the bounded
// pool, and merges per the stage's merge mode. Downstream stages see the
// same output contract as any other strategy.
func (e *Engine) runChunked(ctx context.Context, st *runState, sr *stageRun, def graph.StageDefinition, input []byte) ([]byte, error) {
	chunks := e.sizer.Chunk(input)
	outputs := make([][]byte, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxWorkers)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			out, err := e.invokeWithRetry(gctx, st, sr, def, chunk, sizing.StrategyChunked)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := bytes.Join(outputs, []byte("\n"))
	if def.Merge == graph.MergeSynthesize {
		return e.invokeWithRetry(ctx, st, sr, def, merged, sizing.StrategyChunked)
	}
	return merged, nil
}

// runOffloaded parks the payload in the side-store and passes only the
// reference to the collaborator.
func (e *Engine) runOffloaded(ctx context.Context, st *runState, sr *stageRun, def graph.StageDefinition, input []byte) ([]byte, error) {
	if e.opts.Payloads == nil {
		return nil, fmt.Errorf("offloaded strategy selected for %d bytes but no payload store is configured", len(input))
	}
	ref, err := e.opts.Payloads.Put(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to offload payload: %w", err)
	}
	return e.invokeWithRetry(ctx, st, sr, def, []byte(ref), sizing.StrategyOffloaded)
}

// evaluateGate scores the stage output and records the release decision on
// the result. A human_review decision is not an error; the run continues
// and the output is retained, merely withheld from automatic delivery.
func (e *Engine) evaluateGate(ctx context.Context, st *runState, sr *stageRun, def graph.StageDefinition, res *types.StageResult) error {
	schema, err := e.loadSchema(def)
	if err != nil {
		return err
	}

	score, evalCost, err := e.gate.Evaluate(ctx, res.Payload, schema, def.Checklist)
	sr.addCost(evalCost)
	if evalCost > 0 {
		if e.charge(st, def.Name, evalCost, 0) == budget.ActionAbort {
			return ErrBudgetExceeded
		}
	}
	if err != nil {
		return fmt.Errorf("quality evaluation failed: %w", err)
	}

	res.Score = score
	res.Decision = e.gate.Decide(score)
	res.Cost, res.Retries = sr.totals()
	e.emit(st, def.Name, CategoryGate, fmt.Sprintf("composite %.4f -> %s", score.Composite, res.Decision), score)
	return nil
}

func (e *Engine) loadSchema(def graph.StageDefinition) (string, error) {
	if def.SchemaPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(def.SchemaPath)
	if err != nil {
		return "", fmt.Errorf("failed to read gate schema for stage %q: %w", def.Name, err)
	}
	return string(data), nil
}

// finish settles the terminal status, the run-level release decision, and
// the final output batch.
func (e *Engine) finish(ctx context.Context, st *runState) {
	run := st.run

	st.mu.Lock()
	fatal, aborted := st.fatal, st.aborted
	if fatal != nil {
		// A fatal error outranks whatever stage-failure cause was
		// recorded while it propagated.
		st.cause = fatal
	}
	st.mu.Unlock()

	switch {
	case fatal != nil:
		run.Status = types.RunFailed
		run.Reason = fatal.Error()
	case aborted:
		run.Status = types.RunAborted
		run.Reason = "budget exceeded"
		st.setCause(ErrBudgetExceeded)
	case st.cause != nil:
		run.Status = types.RunFailed
		run.Reason = st.cause.Error()
	default:
		run.Status = types.RunSucceeded
	}

	var release types.ReleaseDecision
	for _, res := range run.Results {
		release = types.StricterRelease(release, res.Decision)
	}
	if release == "" {
		release = types.ReleaseAutoDeliver
	}
	if st.gov.ReviewRequired() {
		release = types.ReleaseHumanReview
	}
	run.Release = release

	if run.Status != types.RunSucceeded || e.opts.Writer == nil {
		return
	}
	records := e.collectFinalRecords(st)
	if len(records) == 0 {
		return
	}
	report, err := e.opts.Writer.Upsert(ctx, records)
	if err != nil {
		run.Status = types.RunFailed
		run.Reason = fmt.Sprintf("failed to persist final output batch: %v", err)
		st.setCause(err)
		return
	}
	e.emit(st, "", CategoryWriter, fmt.Sprintf("persisted %d records (%d created, %d updated)", len(records), report.Created, report.Updated), report)
}

// collectFinalRecords gathers the output batch from succeeded final stages.
// Payloads may hold a single record object or an array of records.
func (e *Engine) collectFinalRecords(st *runState) []types.Record {
	var records []types.Record
	for _, def := range e.opts.Graph.Stages() {
		if !def.Final {
			continue
		}
		res := st.run.Results[def.Name]
		if res == nil || res.Status != types.StageSucceeded {
			continue
		}

		var batch []types.Record
		if err := json.Unmarshal(res.Payload, &batch); err == nil {
			records = append(records, batch...)
			continue
		}
		var single types.Record
		if err := json.Unmarshal(res.Payload, &single); err == nil && single.Key != "" {
			records = append(records, single)
			continue
		}
		e.emit(st, def.Name, CategoryWriter, "final stage payload is not a record batch; skipping", nil)
	}
	return records
}

func (e *Engine) emit(st *runState, stage, category, message string, content any) {
	if e.opts.OnProgress == nil {
		return
	}
	e.opts.OnProgress(ProgressEvent{
		Stage:    stage,
		Category: category,
		Message:  message,
		RunID:    st.run.ID.String(),
		Content:  content,
	})
}
