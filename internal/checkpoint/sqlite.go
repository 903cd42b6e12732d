package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dmaher/flowline/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stage_checkpoints (
	run_id       TEXT    NOT NULL,
	stage        TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	payload      BLOB,
	cost         REAL    NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	decision     TEXT    NOT NULL DEFAULT '',
	score        TEXT,
	retries      INTEGER NOT NULL DEFAULT 0,
	completed_at TEXT    NOT NULL,
	PRIMARY KEY (run_id, stage)
)`

// SQLiteStore is an embedded checkpoint store for local runs that need
// resume durability without shared infrastructure.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and ensures the
// checkpoint table exists
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the checkpoint for (runID, result.Stage)
func (s *SQLiteStore) Save(ctx context.Context, runID uuid.UUID, result *types.StageResult) error {
	completedAt := result.FinishedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	score, err := marshalScore(result.Score)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint score %s: %w", result.Stage, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stage_checkpoints (run_id, stage, status, payload, cost, duration_ms, decision, score, retries, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, stage) DO UPDATE
		 SET status = excluded.status, payload = excluded.payload,
		     cost = excluded.cost, duration_ms = excluded.duration_ms,
		     decision = excluded.decision, score = excluded.score,
		     retries = excluded.retries, completed_at = excluded.completed_at`,
		runID.String(), result.Stage, string(result.Status), result.Payload,
		result.Cost, result.Duration.Milliseconds(), string(result.Decision),
		score, result.Retries, completedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", result.Stage, err)
	}
	return nil
}

// Load retrieves the checkpoint for (runID, stage), or nil when absent
func (s *SQLiteStore) Load(ctx context.Context, runID uuid.UUID, stage string) (*types.StageResult, error) {
	var (
		result      types.StageResult
		status      string
		durationMs  int64
		decision    string
		score       sql.NullString
		completedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT stage, status, payload, cost, duration_ms, decision, score, retries, completed_at
		 FROM stage_checkpoints WHERE run_id = ? AND stage = ?`,
		runID.String(), stage,
	).Scan(&result.Stage, &status, &result.Payload, &result.Cost, &durationMs,
		&decision, &score, &result.Retries, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", stage, err)
	}
	result.Status = types.StageStatus(status)
	result.Duration = time.Duration(durationMs) * time.Millisecond
	result.Decision = types.ReleaseDecision(decision)
	if score.Valid {
		parsed, err := unmarshalScore([]byte(score.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint score %s: %w", stage, err)
		}
		result.Score = parsed
	}
	if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
		result.FinishedAt = t
	}
	return &result, nil
}

// ListCompleted returns the stages checkpointed for the run
func (s *SQLiteStore) ListCompleted(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage FROM stage_checkpoints WHERE run_id = ? ORDER BY completed_at`,
		runID.String(),
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

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
