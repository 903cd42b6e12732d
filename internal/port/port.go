// Package port defines the narrow interfaces through which the execution
// core reaches external collaborators. The core is agnostic to what runs
// behind them.
package port

import (
	"context"

	"github.com/dmaher/flowline/internal/types"
)

// InvokeRequest is one unit-of-work call to a collaborator.
type InvokeRequest struct {
	// Stage is the graph stage name the call belongs to.
	Stage string
	// Kind identifies the unit of work (extract, score, upload, ...).
	Kind string
	// Payload is the stage input. Under the offloaded strategy it is a
	// side-store reference rather than the content itself.
	Payload []byte
	// StrategyHint names the processing strategy chosen by the sizer
	// (direct, chunked, offloaded).
	StrategyHint string
}

// InvokeResult is the collaborator's answer plus the cost it incurred.
type InvokeResult struct {
	Output []byte
	Cost   float64
}

// Collaborator abstracts any generation or service call a stage needs.
// Implementations must respect context cancellation and return promptly.
type Collaborator interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// Evaluator produces the external quality signal for a gated stage's
// output: a score in [0, 1] and the cost of obtaining it.
type Evaluator interface {
	Score(ctx context.Context, output []byte) (score float64, cost float64, err error)
}

// DataSource abstracts an upstream platform that stages pull records from.
type DataSource interface {
	Fetch(ctx context.Context, query string) ([]types.Record, error)
}

// PayloadStore is the addressable side-store backing the offloaded
// strategy: payloads go in, references come out.
type PayloadStore interface {
	Put(ctx context.Context, payload []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
