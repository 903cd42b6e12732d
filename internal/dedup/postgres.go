package dedup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaher/flowline/internal/types"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id           UUID        PRIMARY KEY,
	identity_key TEXT        NOT NULL UNIQUE,
	fields       JSONB       NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresWriter stores documents in PostgreSQL, one row per identity key.
// Row locks (SELECT ... FOR UPDATE) serialize concurrent writers targeting
// the same key.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and ensures the documents
// table exists
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, documentsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure documents schema: %w", err)
	}
	return &PostgresWriter{pool: pool}, nil
}

// Upsert processes the batch, one transaction per record
func (w *PostgresWriter) Upsert(ctx context.Context, records []types.Record) (*types.UpsertReport, error) {
	report := &types.UpsertReport{Outcomes: make(map[string]types.UpsertOutcome, len(records))}

	for _, rec := range records {
		if rec.Key == "" {
			return nil, fmt.Errorf("record has empty identity key")
		}
		outcome, err := w.upsertOne(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert record %s: %w", rec.Key, err)
		}
		report.Outcomes[rec.Key] = outcome
		if outcome == types.OutcomeCreated {
			report.Created++
		} else {
			report.Updated++
		}
	}
	return report, nil
}

func (w *PostgresWriter) upsertOne(ctx context.Context, rec types.Record) (types.UpsertOutcome, error) {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var existingJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT fields FROM documents WHERE identity_key = $1 FOR UPDATE`,
		rec.Key,
	).Scan(&existingJSON)

	switch {
	case err == pgx.ErrNoRows:
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return "", fmt.Errorf("failed to marshal fields: %w", err)
		}
		// A concurrent writer may have inserted the key between the select
		// and here; DO NOTHING turns that race into an update on retry.
		tag, err := tx.Exec(ctx,
			`INSERT INTO documents (id, identity_key, fields)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (identity_key) DO NOTHING`,
			uuid.New(), rec.Key, fieldsJSON,
		)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			if err := tx.Commit(ctx); err != nil {
				return "", err
			}
			return w.upsertOne(ctx, rec)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", err
		}
		return types.OutcomeCreated, nil

	case err != nil:
		return "", err
	}

	var existing map[string]any
	if err := json.Unmarshal(existingJSON, &existing); err != nil {
		return "", fmt.Errorf("failed to unmarshal stored fields: %w", err)
	}

	mergedJSON, err := json.Marshal(mergeMutable(existing, rec))
	if err != nil {
		return "", fmt.Errorf("failed to marshal merged fields: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET fields = $1, updated_at = NOW() WHERE identity_key = $2`,
		mergedJSON, rec.Key,
	); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return types.OutcomeUpdated, nil
}

// Close closes the connection pool
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
