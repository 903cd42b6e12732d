// Package types defines the shared data model for pipeline runs, stage
// results, quality scores, and output records.
package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a pipeline run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether the run status is final
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunAborted
}

// StageStatus represents the state of a single stage within a run
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult is the outcome of one stage execution attempt. The payload is
// opaque to the engine; downstream stages receive it as-is regardless of the
// processing strategy that produced it.
type StageResult struct {
	Stage      string          `json:"stage"`
	Status     StageStatus     `json:"status"`
	Payload    []byte          `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	Cost       float64         `json:"cost"`
	Duration   time.Duration   `json:"duration"`
	Decision   ReleaseDecision `json:"decision,omitempty"`
	Score      *QualityScore   `json:"score,omitempty"`
	Resumed    bool            `json:"resumed,omitempty"`
	Retries    int             `json:"retries,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Run is one execution of a stage graph. It is owned by the engine for its
// lifetime and becomes immutable once the status is terminal.
type Run struct {
	ID        uuid.UUID               `json:"id"`
	Status    RunStatus               `json:"status"`
	StartedAt time.Time               `json:"started_at"`
	EndedAt   *time.Time              `json:"ended_at,omitempty"`
	Cost      float64                 `json:"cost"`
	Elapsed   time.Duration           `json:"elapsed"`
	Retries   int                     `json:"retries"`
	Release   ReleaseDecision         `json:"release,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Results   map[string]*StageResult `json:"results"`
}

// Result returns the recorded result for a stage, or nil if none exists
func (r *Run) Result(stage string) *StageResult {
	if r.Results == nil {
		return nil
	}
	return r.Results[stage]
}
