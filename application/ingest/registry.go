// Package ingest runs the ingestion pipeline: a registry dispatching job
// kinds to handlers, a worker pool draining the durable queue, a sweeper
// reclaiming abandoned leases, and the feed handler that turns adapter
// output into catalog rows and price history.
package ingest

import (
	"context"
	"sync"

	"github.com/pricegrid/pricegrid/domain/job"
)

// Handler executes one job of a given kind.
type Handler interface {
	Execute(ctx context.Context, payload map[string]any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload map[string]any) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, payload map[string]any) error {
	return f(ctx, payload)
}

// Registry maps job kinds to handlers.
type Registry struct {
	handlers map[job.Kind]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[job.Kind]Handler)}
}

// Register registers a handler for a kind.
func (r *Registry) Register(kind job.Kind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Handler returns the handler for a kind.
func (r *Registry) Handler(kind job.Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	return handler, ok
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []job.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]job.Kind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}
