package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmaher/flowline/internal/port"
)

// Collaborator adapts a data source to the collaborator port so fetch
// stages can run inside the engine. The stage payload is the query (a URL);
// the output is the extracted records as a JSON array, ready for a final
// stage or the deduplicating writer.
type Collaborator struct {
	src port.DataSource
}

// NewCollaborator wraps a data source as a collaborator
func NewCollaborator(src port.DataSource) *Collaborator {
	return &Collaborator{src: src}
}

// Invoke fetches records for the query in the request payload
func (c *Collaborator) Invoke(ctx context.Context, req port.InvokeRequest) (*port.InvokeResult, error) {
	query := strings.TrimSpace(string(req.Payload))
	if query == "" {
		return nil, fmt.Errorf("fetch stage %q: empty query", req.Stage)
	}

	records, err := c.src.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fetched records: %w", err)
	}
	return &port.InvokeResult{Output: output}, nil
}
