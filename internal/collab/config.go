// Package collab provides the Gemini-backed collaborator and evaluator
// behind the engine's ports. Stage kinds map to model tiers so cheap work
// stays on cheap models.
package collab

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple units of work: extraction, classification.
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: enrichment, structured output.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: synthesis, scoring.
	TierAdvanced ModelTier = "advanced"
)

// Pricing is the per-1K-token cost of a tier, used to charge the budget
// governor per call.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// Config holds the model selection and pricing for the collaborator.
type Config struct {
	Models  map[ModelTier]string
	Tiers   map[string]ModelTier // stage kind -> tier
	Pricing map[ModelTier]Pricing
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Tiers: map[string]ModelTier{
			"extract":    TierLite,
			"classify":   TierLite,
			"enrich":     TierStandard,
			"synthesize": TierAdvanced,
			"score":      TierLite,
		},
		Pricing: map[ModelTier]Pricing{
			TierLite:     {InputPer1K: 0.0001, OutputPer1K: 0.0004},
			TierStandard: {InputPer1K: 0.0003, OutputPer1K: 0.0025},
			TierAdvanced: {InputPer1K: 0.00125, OutputPer1K: 0.01},
		},
	}
}

// TierFor returns the tier for a stage kind, defaulting to standard
func (c *Config) TierFor(kind string) ModelTier {
	if tier, ok := c.Tiers[kind]; ok {
		return tier
	}
	return TierStandard
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// cost converts token usage to a cost figure for the tier
func (c *Config) cost(tier ModelTier, inputTokens, outputTokens int32) float64 {
	pricing := c.Pricing[tier]
	return float64(inputTokens)/1000*pricing.InputPer1K +
		float64(outputTokens)/1000*pricing.OutputPer1K
}
