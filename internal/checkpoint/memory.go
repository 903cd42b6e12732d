package checkpoint

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmaher/flowline/internal/types"
)

type memoryKey struct {
	runID uuid.UUID
	stage string
}

// MemoryStore is an in-memory checkpoint store used by tests and dry runs.
// The mutex gives the same per-key atomicity the durable stores provide.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[memoryKey]types.StageResult
	order map[uuid.UUID][]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[memoryKey]types.StageResult),
		order: make(map[uuid.UUID][]string),
	}
}

// Save records a copy of the result
func (s *MemoryStore) Save(_ context.Context, runID uuid.UUID, result *types.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{runID: runID, stage: result.Stage}
	if _, exists := s.items[key]; !exists {
		s.order[runID] = append(s.order[runID], result.Stage)
	}

	stored := *result
	stored.Payload = append([]byte(nil), result.Payload...)
	s.items[key] = stored
	return nil
}

// Load returns a copy of the stored result, or nil when absent
func (s *MemoryStore) Load(_ context.Context, runID uuid.UUID, stage string) (*types.StageResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.items[memoryKey{runID: runID, stage: stage}]
	if !ok {
		return nil, nil
	}
	out := stored
	out.Payload = append([]byte(nil), stored.Payload...)
	return &out, nil
}

// ListCompleted returns the checkpointed stages in save order
func (s *MemoryStore) ListCompleted(_ context.Context, runID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order[runID]...), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
