// Package budget tracks per-run cost, elapsed time, and retry counters and
// evaluates them against configured ceilings.
package budget

import (
	"sync"
	"time"
)

// Action is the governor's verdict after a charge or retry.
type Action string

const (
	ActionContinue Action = "continue"
	ActionWarn     Action = "warn"
	ActionAbort    Action = "abort"
)

// warnFraction of a hard maximum at which charges start returning warn.
const warnFraction = 0.8

// Limits holds the configured budget thresholds for one run. Target values
// are advisory (warn only); Max values are hard ceilings. A zero Max
// disables that ceiling.
type Limits struct {
	TargetCost float64       `json:"target_cost,omitempty"`
	TargetTime time.Duration `json:"target_time,omitempty"`
	MaxCost    float64       `json:"max_cost,omitempty"`
	MaxTime    time.Duration `json:"max_time,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
}

// Usage is a point-in-time snapshot of the run's accrued budget counters.
type Usage struct {
	Cost    float64
	Elapsed time.Duration
	Retries int
}

// Governor accumulates cost, time, and retry counters for a single run.
// All charges from concurrently executing stages go through one mutex so
// sibling stages never lose updates. Counters are monotonically
// non-decreasing for the life of the run.
type Governor struct {
	mu             sync.Mutex
	limits         Limits
	cost           float64
	elapsed        time.Duration
	retries        int
	stageRetries   map[string]int
	reviewRequired bool
}

// NewGovernor creates a governor with fresh counters for a new run
func NewGovernor(limits Limits) *Governor {
	return &Governor{
		limits:       limits,
		stageRetries: make(map[string]int),
	}
}

// Charge records cost and time consumed and returns the resulting action:
// abort once either cumulative counter exceeds its hard maximum, warn from
// 80% of a maximum (inclusive) or past an advisory target, continue
// otherwise.
func (g *Governor) Charge(costDelta float64, timeDelta time.Duration) Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cost += costDelta
	g.elapsed += timeDelta

	if g.limits.MaxCost > 0 && g.cost > g.limits.MaxCost {
		return ActionAbort
	}
	if g.limits.MaxTime > 0 && g.elapsed > g.limits.MaxTime {
		return ActionAbort
	}
	if g.limits.MaxCost > 0 && g.cost >= warnFraction*g.limits.MaxCost {
		return ActionWarn
	}
	if g.limits.MaxTime > 0 && g.elapsed >= time.Duration(warnFraction*float64(g.limits.MaxTime)) {
		return ActionWarn
	}
	if g.limits.TargetCost > 0 && g.cost > g.limits.TargetCost {
		return ActionWarn
	}
	if g.limits.TargetTime > 0 && g.elapsed > g.limits.TargetTime {
		return ActionWarn
	}
	return ActionContinue
}

// RecordRetry counts one retry for the given stage. It returns abort when
// the stage has exhausted MaxRetries, which also flags the run for mandatory
// human review regardless of later quality scores.
func (g *Governor) RecordRetry(stage string) Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.retries++
	g.stageRetries[stage]++

	if g.limits.MaxRetries > 0 && g.stageRetries[stage] > g.limits.MaxRetries {
		g.reviewRequired = true
		return ActionAbort
	}
	return ActionContinue
}

// ReviewRequired reports whether retry exhaustion flagged the run for
// mandatory human review
func (g *Governor) ReviewRequired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reviewRequired
}

// Snapshot returns the current counters
func (g *Governor) Snapshot() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Usage{Cost: g.cost, Elapsed: g.elapsed, Retries: g.retries}
}
