package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaher/flowline/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS stage_checkpoints (
	run_id       UUID        NOT NULL,
	stage        TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	payload      BYTEA,
	cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms  BIGINT      NOT NULL DEFAULT 0,
	decision     TEXT        NOT NULL DEFAULT '',
	score        JSONB,
	retries      INTEGER     NOT NULL DEFAULT 0,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, stage)
)`

// PostgresStore is a checkpoint store backed by a PostgreSQL pool. The
// single-statement upsert gives per-key atomicity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and ensures the checkpoint
// table exists
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure checkpoint schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Save upserts the checkpoint for (runID, result.Stage)
func (s *PostgresStore) Save(ctx context.Context, runID uuid.UUID, result *types.StageResult) error {
	completedAt := result.FinishedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	score, err := marshalScore(result.Score)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint score %s: %w", result.Stage, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO stage_checkpoints (run_id, stage, status, payload, cost, duration_ms, decision, score, retries, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (run_id, stage) DO UPDATE
		 SET status = EXCLUDED.status, payload = EXCLUDED.payload,
		     cost = EXCLUDED.cost, duration_ms = EXCLUDED.duration_ms,
		     decision = EXCLUDED.decision, score = EXCLUDED.score,
		     retries = EXCLUDED.retries, completed_at = EXCLUDED.completed_at`,
		runID, result.Stage, result.Status, result.Payload, result.Cost,
		result.Duration.Milliseconds(), string(result.Decision), score,
		result.Retries, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", result.Stage, err)
	}
	return nil
}

// Load retrieves the checkpoint for (runID, stage), or nil when absent
func (s *PostgresStore) Load(ctx context.Context, runID uuid.UUID, stage string) (*types.StageResult, error) {
	var (
		result     types.StageResult
		durationMs int64
		decision   string
		score      []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT stage, status, payload, cost, duration_ms, decision, score, retries, completed_at
		 FROM stage_checkpoints WHERE run_id = $1 AND stage = $2`,
		runID, stage,
	).Scan(&result.Stage, &result.Status, &result.Payload, &result.Cost, &durationMs,
		&decision, &score, &result.Retries, &result.FinishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", stage, err)
	}
	result.Duration = time.Duration(durationMs) * time.Millisecond
	result.Decision = types.ReleaseDecision(decision)
	parsed, err := unmarshalScore(score)
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint score %s: %w", stage, err)
	}
	result.Score = parsed
	return &result, nil
}

// ListCompleted returns the stages checkpointed for the run
func (s *PostgresStore) ListCompleted(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage FROM stage_checkpoints WHERE run_id = $1 ORDER BY completed_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var stages []string
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
