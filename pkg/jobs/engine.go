package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/store"
)

// Engine runs a fixed pool of worker goroutines claiming and
// processing jobs, mirroring tarsy's WorkerPool/Worker split: the
// engine owns lifecycle (start/stop), each worker owns its own poll
// loop.
type Engine struct {
	store    *store.Store
	registry *Registry
	cfg      config.JobPolicy
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine constructs an Engine over an already-populated Registry.
func NewEngine(st *store.Store, registry *Registry, cfg config.JobPolicy) *Engine {
	return &Engine{
		store:    st,
		registry: registry,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// WorkerCount reports the configured worker pool size, for health
// reporting.
func (e *Engine) WorkerCount() int {
	return e.cfg.WorkerCount
}

// Start spawns cfg.WorkerCount polling goroutines.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.run(ctx, i)
	}
}

// Stop signals all workers to stop and waits for in-flight jobs to
// finish their current handler call.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, workerIdx int) {
	defer e.wg.Done()
	log := slog.With("job_worker", workerIdx)

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		processed, err := e.pollAndProcess(ctx)
		if err != nil {
			log.Error("job processing error", "error", err)
		}
		// Only sleep when there was nothing to do — a deliberate
		// improvement over the reference worker loop, which sleeps
		// unconditionally every iteration in addition to its
		// empty-queue sleep, producing a double wait per idle cycle.
		if !processed {
			e.sleep(e.cfg.PollInterval())
		}
	}
}

func (e *Engine) sleep(d time.Duration) {
	select {
	case <-e.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims and runs at most one job. The bool return
// reports whether a job was found, regardless of whether it
// ultimately succeeded.
func (e *Engine) pollAndProcess(ctx context.Context) (bool, error) {
	job, err := e.store.FetchNextJob(ctx, nil)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch next job: %w", err)
	}

	handler, ok := e.registry.lookup(job.Type)
	if !ok {
		_ = e.store.FailJob(ctx, job.ID, fmt.Errorf("no handler registered for job type %q", job.Type), e.cfg.MaxAttempts)
		return true, nil
	}

	if err := handler(ctx, job); err != nil {
		if failErr := e.store.FailJob(ctx, job.ID, err, e.cfg.MaxAttempts); failErr != nil {
			return true, fmt.Errorf("failed to record job failure: %w", failErr)
		}
		return true, nil
	}

	if err := e.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("failed to mark job complete: %w", err)
	}
	return true, nil
}
