package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmaher/flowline/internal/types"
)

// Document is a stored record with its internal identifier.
type Document struct {
	ID        uuid.UUID
	Key       string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoryWriter is an in-memory document store used by tests and dry runs.
type MemoryWriter struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewMemoryWriter creates an empty in-memory writer
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{docs: make(map[string]*Document)}
}

// Upsert applies the batch under one lock, serializing same-key writers
func (w *MemoryWriter) Upsert(_ context.Context, records []types.Record) (*types.UpsertReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	report := &types.UpsertReport{Outcomes: make(map[string]types.UpsertOutcome, len(records))}
	now := time.Now().UTC()

	for _, rec := range records {
		if rec.Key == "" {
			return nil, fmt.Errorf("record has empty identity key")
		}

		if existing, ok := w.docs[rec.Key]; ok {
			existing.Fields = mergeMutable(existing.Fields, rec)
			existing.UpdatedAt = now
			report.Outcomes[rec.Key] = types.OutcomeUpdated
			report.Updated++
			continue
		}

		fields := make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		w.docs[rec.Key] = &Document{
			ID:        uuid.New(),
			Key:       rec.Key,
			Fields:    fields,
			CreatedAt: now,
			UpdatedAt: now,
		}
		report.Outcomes[rec.Key] = types.OutcomeCreated
		report.Created++
	}
	return report, nil
}

// Get returns the stored document for an identity key, or nil
func (w *MemoryWriter) Get(key string) *Document {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, ok := w.docs[key]
	if !ok {
		return nil
	}
	out := *doc
	out.Fields = make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		out.Fields[k] = v
	}
	return &out
}

// Len returns the number of stored documents
func (w *MemoryWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.docs)
}

// Close is a no-op
func (w *MemoryWriter) Close() error {
	return nil
}
