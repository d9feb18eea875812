// Package execution applies the side effects of approved actions.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"waypoint/internal/models"
)

// ErrNoHandler is returned when no handler is registered for an action type.
var ErrNoHandler = errors.New("execution: no handler for action type")

// ErrInvalidPayload is returned when an action lacks the fields its
// handler needs.
var ErrInvalidPayload = errors.New("execution: invalid payload")

// Effect describes what an execution changed.
type Effect struct {
	Kind        string `json:"kind"`
	OrderID     string `json:"order_id,omitempty"`
	Description string `json:"description"`
}

// Handler applies one action type's side effects. The orchestrator calls
// it at most once per action.
type Handler interface {
	Handle(ctx context.Context, a *models.Action) (Effect, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, a *models.Action) (Effect, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, a *models.Action) (Effect, error) {
	return f(ctx, a)
}

// Registry maps action types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ActionType]Handler)}
}

// Register installs h for t, replacing any previous handler.
func (r *Registry) Register(t models.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Handler returns the handler registered for t.
func (r *Registry) Handler(t models.ActionType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types lists the action types that have a handler.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute dispatches a to the handler for its type.
func (r *Registry) Execute(ctx context.Context, a *models.Action) (Effect, error) {
	h, ok := r.Handler(a.ActionType)
	if !ok {
		return Effect{}, fmt.Errorf("%w: %s", ErrNoHandler, a.ActionType)
	}
	return h.Handle(ctx, a)
}
