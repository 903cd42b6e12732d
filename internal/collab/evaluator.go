package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmaher/flowline/internal/port"
)

const judgePromptTemplate = `You are a strict quality reviewer for automated pipeline output.
Rate the following document for completeness, internal consistency, and fitness for delivery.

Document:
%s

Respond with JSON only:
{"score": <float 0.0-1.0>, "reasoning": "<one sentence>"}`

// judgeResponse represents the expected JSON response from the judge model.
type judgeResponse struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// JudgeEvaluator implements port.Evaluator by asking a collaborator to grade
// the output. The judge call reports its own cost so the engine can charge
// it against the run budget.
type JudgeEvaluator struct {
	collab port.Collaborator
}

// NewJudgeEvaluator creates an evaluator backed by the given collaborator
func NewJudgeEvaluator(collab port.Collaborator) *JudgeEvaluator {
	return &JudgeEvaluator{collab: collab}
}

// Score grades the output in [0, 1]. Evaluation failures surface as errors;
// the caller decides whether the gated stage fails or falls back.
func (e *JudgeEvaluator) Score(ctx context.Context, output []byte) (float64, float64, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, output)

	res, err := e.collab.Invoke(ctx, port.InvokeRequest{
		Kind:    "score",
		Payload: []byte(prompt),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("judge generation failed: %w", err)
	}

	var response judgeResponse
	if err := json.Unmarshal([]byte(CleanJSONBlock(string(res.Output))), &response); err != nil {
		return 0, res.Cost, fmt.Errorf("failed to parse judge response: %w (content: %s)", err, res.Output)
	}

	if response.Score < 0.0 {
		response.Score = 0.0
	}
	if response.Score > 1.0 {
		response.Score = 1.0
	}

	return response.Score, res.Cost, nil
}
