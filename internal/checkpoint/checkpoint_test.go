package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaher/flowline/internal/types"
)

// storeUnderTest runs the shared contract checks against any Store.
func storeUnderTest(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	runID := uuid.New()

	// Absent checkpoint loads as nil, not an error.
	got, err := store.Load(ctx, runID, "extract")
	require.NoError(t, err)
	assert.Nil(t, got)

	result := &types.StageResult{
		Stage:      "extract",
		Status:     types.StageSucceeded,
		Payload:    []byte(`{"name":"Acme"}`),
		Cost:       1.25,
		Duration:   340 * time.Millisecond,
		Retries:    2,
		Decision:   types.ReleaseHumanReview,
		Score: &types.QualityScore{
			SchemaValid:    true,
			ChecklistRatio: 0.5,
			EvaluatorScore: 0.1,
			Composite:      0.3,
		},
		FinishedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Save(ctx, runID, result))

	got, err = store.Load(ctx, runID, "extract")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "extract", got.Stage)
	assert.Equal(t, types.StageSucceeded, got.Status)
	assert.Equal(t, []byte(`{"name":"Acme"}`), got.Payload)
	assert.Equal(t, 1.25, got.Cost)
	assert.Equal(t, 340*time.Millisecond, got.Duration)
	assert.Equal(t, 2, got.Retries)
	assert.Equal(t, types.ReleaseHumanReview, got.Decision)
	require.NotNil(t, got.Score)
	assert.Equal(t, result.Score, got.Score)

	// Re-saving the same key overwrites rather than duplicating.
	result.Payload = []byte(`{"name":"Acme","employees":250}`)
	require.NoError(t, store.Save(ctx, runID, result))

	completed, err := store.ListCompleted(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"extract"}, completed)

	// A second stage and a second run stay isolated.
	require.NoError(t, store.Save(ctx, runID, &types.StageResult{
		Stage: "score", Status: types.StageSucceeded, FinishedAt: time.Now().UTC(),
	}))

	// An ungated stage keeps its empty decision and nil score.
	got, err = store.Load(ctx, runID, "score")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Decision)
	assert.Nil(t, got.Score)
	assert.Zero(t, got.Retries)
	otherRun := uuid.New()
	require.NoError(t, store.Save(ctx, otherRun, &types.StageResult{
		Stage: "extract", Status: types.StageSucceeded, FinishedAt: time.Now().UTC(),
	}))

	completed, err = store.ListCompleted(ctx, runID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"extract", "score"}, completed)

	completed, err = store.ListCompleted(ctx, otherRun)
	require.NoError(t, err)
	assert.Equal(t, []string{"extract"}, completed)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	storeUnderTest(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	runID := uuid.New()

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, runID, &types.StageResult{
		Stage:      "extract",
		Status:     types.StageSucceeded,
		Payload:    []byte("payload"),
		FinishedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, runID, "extract")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("payload"), got.Payload)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	runID := uuid.New()

	require.NoError(t, store.Save(ctx, runID, &types.StageResult{
		Stage: "extract", Status: types.StageSucceeded, Payload: []byte("abc"),
	}))

	first, err := store.Load(ctx, runID, "extract")
	require.NoError(t, err)
	first.Payload[0] = 'z'

	second, err := store.Load(ctx, runID, "extract")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), second.Payload)
}
