// Package checkpoint provides durable persistence of per-stage results,
// keyed by (run ID, stage), so an interrupted run can resume without
// repeating completed work.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmaher/flowline/internal/types"
)

// Store persists stage results. Writes must be atomic per (runID, stage):
// a partially written checkpoint must never be observable as present.
// No cross-stage transactions are required.
type Store interface {
	// Save durably records a stage result. A checkpoint is written only
	// after the stage's unit of work returned successfully.
	Save(ctx context.Context, runID uuid.UUID, result *types.StageResult) error
	// Load returns the stored result, or nil when absent.
	Load(ctx context.Context, runID uuid.UUID, stage string) (*types.StageResult, error)
	// ListCompleted returns the stages with a checkpoint for the run.
	ListCompleted(ctx context.Context, runID uuid.UUID) ([]string, error)
	// Close releases the store's resources.
	Close() error
}

// marshalScore encodes a gate score for column storage; nil stays NULL so
// ungated stages round-trip without a score.
func marshalScore(score *types.QualityScore) ([]byte, error) {
	if score == nil {
		return nil, nil
	}
	data, err := json.Marshal(score)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quality score: %w", err)
	}
	return data, nil
}

func unmarshalScore(data []byte) (*types.QualityScore, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var score types.QualityScore
	if err := json.Unmarshal(data, &score); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quality score: %w", err)
	}
	return &score, nil
}
