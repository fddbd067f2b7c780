// Package jobs runs the durable background work queue — embedding
// turns, distilling memory, and sweeping retention — the way tarsy's
// pkg/queue runs its session worker pool: a fixed set of goroutines
// polling a claimable queue with FOR UPDATE SKIP LOCKED, backing off
// between empty polls.
package jobs

import (
	"context"
	"errors"

	"github.com/memhub/memoryd/pkg/store"
)

// ErrNoJobsAvailable indicates the queue had nothing due when polled.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Handler processes one job's payload. A returned error marks the job
// failed and is recorded via Store.FailJob's backoff scheduling.
type Handler func(ctx context.Context, job *store.Job) error

// Registry maps job type to its handler, populated by the dispatch
// layer (cmd/memoryd) so this package never imports the higher-level
// packages (llmmediator, distill, turns) that implement the handlers
// themselves.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry constructs an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register associates a job type with its handler.
func (r *Registry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

func (r *Registry) lookup(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
