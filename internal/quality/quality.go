// Package quality scores stage output against schema and completeness
// checks plus an external evaluator signal, and maps the composite score to
// a release decision.
package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dmaher/flowline/internal/port"
	"github.com/dmaher/flowline/internal/types"
)

// Default policy values.
const (
	DefaultAutoDeliverMin   = 0.8
	DefaultSuggestReviewMin = 0.7
	DefaultSchemaCapCeiling = 0.5
	DefaultChecklistWeight  = 0.5
	DefaultEvaluatorWeight  = 0.5
)

// Config holds the gate thresholds and signal weights. Zero values fall
// back to the defaults.
type Config struct {
	// AutoDeliverMin is the composite score (inclusive) from which output is
	// delivered automatically.
	AutoDeliverMin float64 `json:"auto_deliver_min,omitempty" validate:"gte=0,lte=1"`
	// SuggestReviewMin is the composite score (inclusive) from which output
	// is delivered but flagged. Below it, output is withheld for human
	// review.
	SuggestReviewMin float64 `json:"suggest_review_min,omitempty" validate:"gte=0,lte=1"`
	// SchemaCapCeiling caps the composite when schema validation fails,
	// regardless of the other signals.
	SchemaCapCeiling float64 `json:"schema_cap_ceiling,omitempty" validate:"gte=0,lte=1"`
	ChecklistWeight  float64 `json:"checklist_weight,omitempty" validate:"gte=0"`
	EvaluatorWeight  float64 `json:"evaluator_weight,omitempty" validate:"gte=0"`
}

func (c Config) withDefaults() Config {
	if c.AutoDeliverMin == 0 {
		c.AutoDeliverMin = DefaultAutoDeliverMin
	}
	if c.SuggestReviewMin == 0 {
		c.SuggestReviewMin = DefaultSuggestReviewMin
	}
	if c.SchemaCapCeiling == 0 {
		c.SchemaCapCeiling = DefaultSchemaCapCeiling
	}
	if c.ChecklistWeight == 0 && c.EvaluatorWeight == 0 {
		c.ChecklistWeight = DefaultChecklistWeight
		c.EvaluatorWeight = DefaultEvaluatorWeight
	}
	return c
}

// Gate evaluates gated stage output. The evaluator supplies the external
// score signal; a nil evaluator shifts the full weight onto the checklist.
type Gate struct {
	cfg       Config
	evaluator port.Evaluator
}

// NewGate creates a gate, applying defaults and checking that the decision
// thresholds are totally ordered
func NewGate(cfg Config, evaluator port.Evaluator) (*Gate, error) {
	cfg = cfg.withDefaults()
	if cfg.SuggestReviewMin >= cfg.AutoDeliverMin {
		return nil, fmt.Errorf("quality thresholds overlap: suggest_review_min %.4f must be below auto_deliver_min %.4f",
			cfg.SuggestReviewMin, cfg.AutoDeliverMin)
	}
	return &Gate{cfg: cfg, evaluator: evaluator}, nil
}

// Evaluate computes a fresh quality score for the output: schema conformance
// (a violation caps the composite at the configured ceiling), checklist pass
// ratio, and the external evaluator score. Returns the score and the cost
// the evaluator incurred.
func (g *Gate) Evaluate(ctx context.Context, output []byte, schema string, checklist []string) (*types.QualityScore, float64, error) {
	score := &types.QualityScore{SchemaValid: true}

	if schema != "" {
		valid, fieldErrors, err := validateSchema(schema, output)
		if err != nil {
			return nil, 0, err
		}
		score.SchemaValid = valid
		score.SchemaErrors = fieldErrors
	}

	score.ChecklistRatio = checklistRatio(output, checklist)

	var cost float64
	if g.evaluator != nil {
		s, c, err := g.evaluator.Score(ctx, output)
		if err != nil {
			return nil, c, fmt.Errorf("evaluator score failed: %w", err)
		}
		// Clamp to the documented range; evaluators are not trusted here.
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		score.EvaluatorScore = s
		cost = c
	}

	cw, ew := g.cfg.ChecklistWeight, g.cfg.EvaluatorWeight
	if g.evaluator == nil {
		cw, ew = 1, 0
	}
	score.Composite = (cw*score.ChecklistRatio + ew*score.EvaluatorScore) / (cw + ew)

	if !score.SchemaValid && score.Composite > g.cfg.SchemaCapCeiling {
		score.Composite = g.cfg.SchemaCapCeiling
	}

	return score, cost, nil
}

// Decide maps a quality score to a release decision. Boundaries are
// inclusive upward: a composite of exactly AutoDeliverMin auto-delivers.
func (g *Gate) Decide(score *types.QualityScore) types.ReleaseDecision {
	switch {
	case score.Composite >= g.cfg.AutoDeliverMin:
		return types.ReleaseAutoDeliver
	case score.Composite >= g.cfg.SuggestReviewMin:
		return types.ReleaseSuggestReview
	default:
		return types.ReleaseHumanReview
	}
}

// validateSchema runs JSON Schema validation over the output document
func validateSchema(schema string, output []byte) (bool, []string, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewStringLoader(string(output))

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return false, nil, fmt.Errorf("schema validation failed during load: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	fieldErrors := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		fieldErrors = append(fieldErrors, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return false, fieldErrors, nil
}

// checklistRatio returns the fraction of required top-level fields that are
// present and non-empty in the output document. An empty checklist passes
// trivially; output that is not a JSON object fails every check.
func checklistRatio(output []byte, checklist []string) float64 {
	if len(checklist) == 0 {
		return 1
	}

	var doc map[string]any
	if err := json.Unmarshal(output, &doc); err != nil {
		return 0
	}

	passed := 0
	for _, field := range checklist {
		if present(doc[field]) {
			passed++
		}
	}
	return float64(passed) / float64(len(checklist))
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
