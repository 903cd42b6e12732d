// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmaher/flowline/internal/budget"
	"github.com/dmaher/flowline/internal/graph"
	"github.com/dmaher/flowline/internal/quality"
	"github.com/dmaher/flowline/internal/sizing"
	"github.com/dmaher/flowline/internal/source"
)

// BudgetConfig is the JSON shape of the budget limits. Time fields are in
// seconds so config files stay free of duration strings.
type BudgetConfig struct {
	TargetCost        float64 `json:"target_cost,omitempty" validate:"gte=0"`
	TargetTimeSeconds int     `json:"target_time_seconds,omitempty" validate:"gte=0"`
	MaxCost           float64 `json:"max_cost,omitempty" validate:"gte=0"`
	MaxTimeSeconds    int     `json:"max_time_seconds,omitempty" validate:"gte=0"`
	MaxRetries        int     `json:"max_retries,omitempty" validate:"gte=0"`
}

// Limits converts the config shape to governor limits
func (b BudgetConfig) Limits() budget.Limits {
	return budget.Limits{
		TargetCost: b.TargetCost,
		TargetTime: time.Duration(b.TargetTimeSeconds) * time.Second,
		MaxCost:    b.MaxCost,
		MaxTime:    time.Duration(b.MaxTimeSeconds) * time.Second,
		MaxRetries: b.MaxRetries,
	}
}

// RunConfig represents the pipeline configuration loaded from a JSON file.
// Stage definitions are required; everything else is optional and falls back
// to defaults or CLI flags.
type RunConfig struct {
	// Stages declares the dependency graph the engine executes.
	Stages []graph.StageDefinition `json:"stages" validate:"required,min=1,dive"`

	Budget  BudgetConfig      `json:"budget,omitempty"`
	Quality quality.Config    `json:"quality,omitempty"`
	Sizing  sizing.Thresholds `json:"sizing,omitempty"`

	// Source configures the HTML data source serving stages of kind "fetch".
	Source *source.Selectors `json:"source,omitempty"`

	// MaxWorkers bounds concurrent stage execution within a parallel group.
	MaxWorkers int `json:"max_workers,omitempty" validate:"gte=0"`

	// Inputs seeds root stages with initial payloads (stage name -> content).
	Inputs map[string]string `json:"inputs,omitempty"`

	// Behavior
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	SQLitePath  string `json:"sqlite_path,omitempty"`  // SQLite checkpoint database path
	DataDir     string `json:"data_dir,omitempty"`     // Directory for offloaded payloads
	Evaluate    bool   `json:"evaluate,omitempty"`     // Enable the model judge on gated stages
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed progress information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*RunConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks field constraints and cross-field consistency. Graph
// validity (unknown dependencies, cycles) is checked here too so a bad
// config fails before a run starts.
func (c *RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if _, err := graph.New(c.Stages); err != nil {
		return fmt.Errorf("config error: invalid stage graph: %w", err)
	}

	if c.Sizing.LowBytes != 0 && c.Sizing.HighBytes != 0 && c.Sizing.LowBytes >= c.Sizing.HighBytes {
		return fmt.Errorf("config error: sizing 'low_bytes' must be below 'high_bytes'")
	}

	if c.Quality.AutoDeliverMin != 0 && c.Quality.SuggestReviewMin != 0 &&
		c.Quality.SuggestReviewMin >= c.Quality.AutoDeliverMin {
		return fmt.Errorf("config error: quality 'suggest_review_min' must be below 'auto_deliver_min'")
	}

	if c.Source != nil && (c.Source.Record == "" || c.Source.Key == "") {
		return fmt.Errorf("config error: 'source' requires both 'record' and 'key' selectors")
	}

	for _, def := range c.Stages {
		if def.SchemaPath != "" {
			if _, err := os.Stat(def.SchemaPath); os.IsNotExist(err) {
				return fmt.Errorf("config error: schema file not found for stage %q: %s", def.Name, def.SchemaPath)
			}
		}
	}

	return nil
}

// MergeWithDefaults returns a new RunConfig with empty fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags.
func (c *RunConfig) MergeWithDefaults(defaults RunConfig) RunConfig {
	result := *c

	// String fields: use default if empty
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.SQLitePath == "" {
		result.SQLitePath = defaults.SQLitePath
	}
	if result.DataDir == "" {
		result.DataDir = defaults.DataDir
	}

	// Int fields: use default if zero
	if result.MaxWorkers == 0 {
		result.MaxWorkers = defaults.MaxWorkers
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// InitialInputs converts the configured seed inputs to engine form
func (c *RunConfig) InitialInputs() map[string][]byte {
	if len(c.Inputs) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(c.Inputs))
	for stage, content := range c.Inputs {
		out[stage] = []byte(content)
	}
	return out
}
