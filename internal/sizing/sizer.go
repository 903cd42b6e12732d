// Package sizing selects a processing strategy for a stage input based on
// its estimated size, bounding per-call resource use.
package sizing

import "fmt"

// Strategy is how a stage input is handed to the collaborator port.
type Strategy string

const (
	// StrategyDirect passes the whole payload in one call.
	StrategyDirect Strategy = "direct"
	// StrategyChunked partitions the payload into bounded pieces, processes
	// each independently, and merges per the stage's merge mode.
	StrategyChunked Strategy = "chunked"
	// StrategyOffloaded writes the payload to the side-store and passes only
	// a reference through the pipeline.
	StrategyOffloaded Strategy = "offloaded"
)

// Default thresholds, in bytes.
const (
	DefaultLowBytes   = 32 << 10
	DefaultHighBytes  = 512 << 10
	DefaultChunkBytes = 32 << 10
)

// Thresholds configures the strategy boundaries. Zero values fall back to
// the defaults above.
type Thresholds struct {
	LowBytes   int `json:"low_bytes,omitempty" validate:"gte=0"`
	HighBytes  int `json:"high_bytes,omitempty" validate:"gte=0"`
	ChunkBytes int `json:"chunk_bytes,omitempty" validate:"gte=0"`
}

func (t Thresholds) withDefaults() Thresholds {
	if t.LowBytes == 0 {
		t.LowBytes = DefaultLowBytes
	}
	if t.HighBytes == 0 {
		t.HighBytes = DefaultHighBytes
	}
	if t.ChunkBytes == 0 {
		t.ChunkBytes = DefaultChunkBytes
	}
	return t
}

// Sizer maps estimated input sizes to processing strategies.
type Sizer struct {
	t Thresholds
}

// NewSizer creates a sizer, applying defaults and checking threshold order
func NewSizer(t Thresholds) (*Sizer, error) {
	t = t.withDefaults()
	if t.LowBytes < 0 || t.HighBytes < 0 || t.ChunkBytes < 0 {
		return nil, fmt.Errorf("sizing thresholds must be non-negative")
	}
	if t.LowBytes >= t.HighBytes {
		return nil, fmt.Errorf("sizing low threshold %d must be below high threshold %d", t.LowBytes, t.HighBytes)
	}
	return &Sizer{t: t}, nil
}

// SelectStrategy returns the strategy for an estimated payload size: direct
// below the low threshold, chunked between the thresholds (inclusive),
// offloaded above the high threshold. The stage's declared output contract
// is the same regardless of strategy.
func (s *Sizer) SelectStrategy(estimatedBytes int) Strategy {
	switch {
	case estimatedBytes < s.t.LowBytes:
		return StrategyDirect
	case estimatedBytes <= s.t.HighBytes:
		return StrategyChunked
	default:
		return StrategyOffloaded
	}
}

// ChunkSize returns the configured maximum chunk size in bytes
func (s *Sizer) ChunkSize() int {
	return s.t.ChunkBytes
}

// Chunk partitions a payload into pieces of at most ChunkSize bytes,
// preserving order. The final piece may be shorter.
func (s *Sizer) Chunk(payload []byte) [][]byte {
	size := s.t.ChunkBytes
	if len(payload) == 0 {
		return nil
	}
	var chunks [][]byte
	for start := 0; start < len(payload); start += size {
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return chunks
}
