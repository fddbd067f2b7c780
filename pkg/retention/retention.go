// Package retention implements the periodic sweep that deletes turns
// and memory items past their configured age, grounded on
// original_source/memory_mcp/services/retention.py.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/jobs"
	"github.com/memhub/memoryd/pkg/store"
)

// Engine runs the retention_cleanup job.
type Engine struct {
	store  *store.Store
	policy config.RetentionPolicy
}

// NewEngine constructs a retention Engine.
func NewEngine(st *store.Store, policy config.RetentionPolicy) *Engine {
	return &Engine{store: st, policy: policy}
}

// Cleanup deletes turns older than RetentionDaysTurns and memory items
// older than RetentionDaysMemory. A zero or negative day count
// disables the respective sweep.
func (e *Engine) Cleanup(ctx context.Context) error {
	if e.policy.RetentionDaysTurns > 0 {
		cutoff := time.Now().AddDate(0, 0, -e.policy.RetentionDaysTurns)
		n, err := e.store.DeleteTurnsOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to clean up old turns: %w", err)
		}
		if n > 0 {
			slog.Info("retention cleanup deleted turns", "count", n, "cutoff", cutoff)
		}
	}
	if e.policy.RetentionDaysMemory > 0 {
		cutoff := time.Now().AddDate(0, 0, -e.policy.RetentionDaysMemory)
		n, err := e.store.DeleteMemoryItemsOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to clean up old memory items: %w", err)
		}
		if n > 0 {
			slog.Info("retention cleanup deleted memory items", "count", n, "cutoff", cutoff)
		}
	}
	return nil
}

// CleanupHandler adapts Cleanup to the jobs.Handler signature.
func (e *Engine) CleanupHandler(ctx context.Context, job *store.Job) error {
	return e.Cleanup(ctx)
}

var _ jobs.Handler = (*Engine)(nil).CleanupHandler

// RunScheduler enqueues a retention_cleanup job every interval until
// ctx is cancelled, the push-side counterpart to the job engine's pull
// loop — retention runs on a calendar cadence, not demand.
func RunScheduler(ctx context.Context, st *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := st.EnqueueJob(ctx, store.JobTypeRetentionCleanup, map[string]any{}, time.Now()); err != nil {
				slog.Error("failed to enqueue retention_cleanup job", "error", err)
			}
		}
	}
}
