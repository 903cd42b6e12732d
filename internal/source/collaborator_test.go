package source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaher/flowline/internal/port"
	"github.com/dmaher/flowline/internal/types"
)

type stubSource struct {
	records []types.Record
	err     error
	query   string
}

func (s *stubSource) Fetch(_ context.Context, query string) ([]types.Record, error) {
	s.query = query
	return s.records, s.err
}

func TestCollaborator_Invoke(t *testing.T) {
	stub := &stubSource{records: []types.Record{
		{Key: "acme", Fields: map[string]any{"name": "Acme"}},
	}}
	c := NewCollaborator(stub)

	res, err := c.Invoke(context.Background(), port.InvokeRequest{
		Stage:   "fetch-listings",
		Kind:    "fetch",
		Payload: []byte(" https://example.com/listings \n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/listings", stub.query)

	var records []types.Record
	require.NoError(t, json.Unmarshal(res.Output, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "acme", records[0].Key)
}

func TestCollaborator_EmptyQuery(t *testing.T) {
	c := NewCollaborator(&stubSource{})
	_, err := c.Invoke(context.Background(), port.InvokeRequest{Stage: "fetch-listings"})
	assert.Error(t, err)
}

func TestCollaborator_PropagatesSourceErrors(t *testing.T) {
	c := NewCollaborator(&stubSource{err: port.Transient("fetch", errors.New("timeout"))})
	_, err := c.Invoke(context.Background(), port.InvokeRequest{Payload: []byte("https://example.com")})
	require.Error(t, err)
	assert.True(t, port.IsTransient(err))
}
