package collab

import (
	"context"
	"fmt"

	"github.com/dmaher/flowline/internal/port"
)

// Router dispatches invocations to different collaborators by stage kind,
// falling back to a default. It lets fetch stages hit a data source while
// generation stages hit the model, behind one port.
type Router struct {
	routes   map[string]port.Collaborator
	fallback port.Collaborator
}

// NewRouter creates a router with the given fallback collaborator
func NewRouter(fallback port.Collaborator) *Router {
	return &Router{
		routes:   make(map[string]port.Collaborator),
		fallback: fallback,
	}
}

// Route binds a stage kind to a collaborator
func (r *Router) Route(kind string, c port.Collaborator) *Router {
	r.routes[kind] = c
	return r
}

// Invoke dispatches on the request's kind
func (r *Router) Invoke(ctx context.Context, req port.InvokeRequest) (*port.InvokeResult, error) {
	if c, ok := r.routes[req.Kind]; ok {
		return c.Invoke(ctx, req)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no collaborator for kind %q", req.Kind)
	}
	return r.fallback.Invoke(ctx, req)
}
