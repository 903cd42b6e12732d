package engine

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded marks a run terminated by the budget governor. Partial
// checkpoints are retained; the run status is aborted, not failed.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrRetryExhausted marks a stage that used up its retry budget. The stage
// fails and the run is flagged for mandatory human review.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// CheckpointWriteError is fatal to the current run: the unit of work
// succeeded but its result could not be durably recorded, so the run cannot
// safely proceed past it. The run stays resumable because the stage can
// recompute on the next start.
type CheckpointWriteError struct {
	Stage string
	Err   error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint write failed for stage %q: %v", e.Stage, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error {
	return e.Err
}

// StageFailureError carries the failure of a single stage into the run's
// structured reason.
type StageFailureError struct {
	Stage string
	Err   error
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageFailureError) Unwrap() error {
	return e.Err
}
