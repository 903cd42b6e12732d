package types

// ReleaseDecision is the delivery action derived from a quality score.
// suggest_review output is delivered but flagged; human_review output is
// withheld from automatic delivery.
type ReleaseDecision string

const (
	ReleaseAutoDeliver   ReleaseDecision = "auto_deliver"
	ReleaseSuggestReview ReleaseDecision = "suggest_review"
	ReleaseHumanReview   ReleaseDecision = "human_review"
)

// releaseRank orders decisions from most to least permissive
var releaseRank = map[ReleaseDecision]int{
	ReleaseAutoDeliver:   2,
	ReleaseSuggestReview: 1,
	ReleaseHumanReview:   0,
}

// StricterRelease returns the more conservative of two decisions. An empty
// decision (stage not gated) never tightens the result.
func StricterRelease(a, b ReleaseDecision) ReleaseDecision {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if releaseRank[b] < releaseRank[a] {
		return b
	}
	return a
}

// QualityScore is the composite of the three gate signals. It is computed
// fresh per gated stage and never cached across reruns.
type QualityScore struct {
	SchemaValid    bool     `json:"schema_valid"`
	SchemaErrors   []string `json:"schema_errors,omitempty"`
	ChecklistRatio float64  `json:"checklist_ratio"`
	EvaluatorScore float64  `json:"evaluator_score"`
	Composite      float64  `json:"composite"`
}
