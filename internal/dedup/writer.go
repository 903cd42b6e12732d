// Package dedup persists produced records into a document store, matching
// existing documents by stable external identity. Matches receive partial
// updates touching only mutable fields; everything else is inserted fresh.
// The operation is idempotent: re-running the same batch changes nothing.
package dedup

import (
	"context"

	"github.com/dmaher/flowline/internal/types"
)

// Writer is the idempotent upsert layer for final output records.
type Writer interface {
	// Upsert processes the batch record by record. Records with a known
	// identity key are partially updated (mutable fields only); unknown keys
	// are inserted with a new internal identifier. Safe to re-run with the
	// same batch, and safe under concurrent writers on distinct keys;
	// writers on the same key serialize.
	Upsert(ctx context.Context, records []types.Record) (*types.UpsertReport, error)
	// Close releases the writer's resources.
	Close() error
}

// mergeMutable overlays the record's mutable fields onto the existing
// document fields. Immutable fields keep their first-written values.
func mergeMutable(existing map[string]any, rec types.Record) map[string]any {
	merged := make(map[string]any, len(existing)+len(rec.Fields))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range rec.Fields {
		if _, known := existing[k]; !known {
			// A field the document has never seen is written once.
			merged[k] = v
			continue
		}
		if rec.IsMutable(k) {
			merged[k] = v
		}
	}
	return merged
}
