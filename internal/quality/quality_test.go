package quality

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaher/flowline/internal/types"
)

// stubEvaluator returns a fixed score and cost.
type stubEvaluator struct {
	score float64
	cost  float64
	err   error
}

func (s *stubEvaluator) Score(_ context.Context, _ []byte) (float64, float64, error) {
	return s.score, s.cost, s.err
}

const profileSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"employees": {"type": "integer"}
	}
}`

func newTestGate(t *testing.T, cfg Config, ev *stubEvaluator) *Gate {
	t.Helper()
	if ev == nil {
		g, err := NewGate(cfg, nil)
		require.NoError(t, err)
		return g
	}
	g, err := NewGate(cfg, ev)
	require.NoError(t, err)
	return g
}

func TestDecide_Boundaries(t *testing.T) {
	g := newTestGate(t, Config{}, nil)

	tests := []struct {
		composite float64
		want      types.ReleaseDecision
	}{
		{1.0, types.ReleaseAutoDeliver},
		{0.8, types.ReleaseAutoDeliver}, // inclusive upward
		{0.79999, types.ReleaseSuggestReview},
		{0.7, types.ReleaseSuggestReview},
		{0.69999, types.ReleaseHumanReview},
		{0.0, types.ReleaseHumanReview},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.5f", tt.composite), func(t *testing.T) {
			got := g.Decide(&types.QualityScore{Composite: tt.composite})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewGate_RejectsOverlappingThresholds(t *testing.T) {
	_, err := NewGate(Config{AutoDeliverMin: 0.7, SuggestReviewMin: 0.7}, nil)
	assert.Error(t, err)

	_, err = NewGate(Config{AutoDeliverMin: 0.6, SuggestReviewMin: 0.7}, nil)
	assert.Error(t, err)
}

func TestEvaluate_AllSignalsPass(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{score: 1.0, cost: 0.02})

	output := []byte(`{"name": "Acme", "employees": 250}`)
	score, cost, err := g.Evaluate(context.Background(), output, profileSchema, []string{"name", "employees"})
	require.NoError(t, err)

	assert.True(t, score.SchemaValid)
	assert.Equal(t, 1.0, score.ChecklistRatio)
	assert.Equal(t, 1.0, score.EvaluatorScore)
	assert.Equal(t, 1.0, score.Composite)
	assert.Equal(t, 0.02, cost)
}

func TestEvaluate_SchemaViolationCapsComposite(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{score: 1.0})

	// employees has the wrong type, everything else is perfect
	output := []byte(`{"name": "Acme", "employees": "lots"}`)
	score, _, err := g.Evaluate(context.Background(), output, profileSchema, []string{"name"})
	require.NoError(t, err)

	assert.False(t, score.SchemaValid)
	assert.NotEmpty(t, score.SchemaErrors)
	assert.Equal(t, DefaultSchemaCapCeiling, score.Composite)

	assert.Equal(t, types.ReleaseHumanReview, g.Decide(score))
}

func TestEvaluate_ChecklistPartialPass(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{score: 0.5})

	output := []byte(`{"name": "Acme", "website": ""}`)
	score, _, err := g.Evaluate(context.Background(), output, "", []string{"name", "website", "industry", "employees"})
	require.NoError(t, err)

	// Only "name" is present and non-empty.
	assert.InDelta(t, 0.25, score.ChecklistRatio, 1e-9)
	assert.InDelta(t, 0.375, score.Composite, 1e-9) // (0.25 + 0.5) / 2
}

func TestEvaluate_NoEvaluatorUsesChecklistOnly(t *testing.T) {
	g := newTestGate(t, Config{}, nil)

	output := []byte(`{"name": "Acme"}`)
	score, cost, err := g.Evaluate(context.Background(), output, "", []string{"name"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, score.Composite)
	assert.Equal(t, 0.0, cost)
}

func TestEvaluate_EvaluatorScoreClamped(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{score: 3.7})

	score, _, err := g.Evaluate(context.Background(), []byte(`{}`), "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, score.EvaluatorScore)
}

func TestEvaluate_EvaluatorErrorPropagates(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{err: fmt.Errorf("upstream timeout")})

	_, _, err := g.Evaluate(context.Background(), []byte(`{}`), "", nil)
	assert.Error(t, err)
}

func TestEvaluate_NonObjectOutputFailsChecklist(t *testing.T) {
	g := newTestGate(t, Config{}, &stubEvaluator{score: 1.0})

	score, _, err := g.Evaluate(context.Background(), []byte(`not json`), "", []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.ChecklistRatio)
}
