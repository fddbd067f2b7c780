// Package turns implements ingestTurn and the recent-turn window read
// used by the distill orchestrator and by /retrieve.context's raw
// scope, grounded on the ingestion flow in
// original_source/memory_mcp/services/turns.py.
package turns

import (
	"context"
	"fmt"
	"time"

	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/jobs"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/store"
)

// Engine ingests turns and serves the recent-turn window.
type Engine struct {
	store    *store.Store
	mediator *llmmediator.Mediator
	cfg      config.Settings
}

// NewEngine constructs a turn ingestion Engine.
func NewEngine(st *store.Store, mediator *llmmediator.Mediator, cfg config.Settings) *Engine {
	return &Engine{store: st, mediator: mediator, cfg: cfg}
}

// CreateThread opens a new conversation under plan.
func (e *Engine) CreateThread(ctx context.Context, planID string, meta map[string]any) (*store.Thread, error) {
	thread, err := e.store.CreateThread(ctx, planID, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// IngestTurn inserts a new turn, collapsing to the existing row when
// (thread, externalID) was already ingested. It bumps the owning
// thread's updated_at and conditionally triggers embedding and
// distillation per the ingest_embed_sync / auto_distill_on_ingest
// settings.
func (e *Engine) IngestTurn(ctx context.Context, threadID, role, text string, ts time.Time, meta map[string]any, branchID, externalID *string, embedNow bool) (*store.Turn, error) {
	if externalID != nil {
		existing, err := e.store.FindTurnByExternalID(ctx, threadID, *externalID)
		if err == nil {
			return existing, nil
		}
	}

	if ts.IsZero() {
		ts = time.Now()
	}
	turn, err := e.store.InsertTurn(ctx, &store.Turn{
		ThreadID:       threadID,
		Role:           role,
		Text:           text,
		Ts:             ts,
		Meta:           meta,
		BranchID:       branchID,
		ExternalTurnID: externalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}

	if err := e.store.TouchThread(ctx, threadID); err != nil {
		return nil, fmt.Errorf("failed to touch thread: %w", err)
	}

	if embedNow {
		if e.cfg.IngestEmbedSync {
			if err := e.embedSync(ctx, turn); err != nil {
				return nil, err
			}
		} else {
			if _, err := e.store.EnqueueJob(ctx, store.JobTypeEmbedTurn, map[string]any{
				"turn_id": turn.ID,
				"text":    turn.Text,
			}, time.Now()); err != nil {
				return nil, fmt.Errorf("failed to enqueue embed_turn job: %w", err)
			}
		}
	}

	if e.cfg.AutoDistillOnIngest {
		if _, err := e.store.EnqueueJob(ctx, store.JobTypeDistillTurn, map[string]any{
			"thread_id": threadID,
			"turn_id":   turn.ID,
		}, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to enqueue distill_turn job: %w", err)
		}
	}

	return turn, nil
}

func (e *Engine) embedSync(ctx context.Context, turn *store.Turn) error {
	embeddings, err := e.mediator.Embed(ctx, []string{turn.Text})
	if err != nil {
		return fmt.Errorf("failed to embed turn synchronously: %w", err)
	}
	turn.Embedding = embeddings[0]
	if err := e.store.SetTurnEmbedding(ctx, turn.ID, embeddings[0]); err != nil {
		return fmt.Errorf("failed to store turn embedding: %w", err)
	}
	return nil
}

// GetRecentTurns returns the most recent limit turns in thread,
// chronologically ascending (oldest first), ready for the distill
// orchestrator's prompt rendering.
func (e *Engine) GetRecentTurns(ctx context.Context, threadID string, limit int) ([]*store.Turn, error) {
	turns, err := e.store.RecentTurns(ctx, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent turns: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// EmbedTurnHandler is the embed_turn job handler: load the turn; if
// already embedded, no-op; else embed (preferring payload text) and
// store.
func (e *Engine) EmbedTurnHandler(ctx context.Context, job *store.Job) error {
	turnID, _ := job.Payload["turn_id"].(string)
	if turnID == "" {
		return fmt.Errorf("embed_turn job missing turn_id")
	}
	turn, err := e.store.GetTurn(ctx, turnID)
	if err != nil {
		return fmt.Errorf("failed to load turn for embedding: %w", err)
	}
	if turn.Embedding != nil {
		return nil
	}
	text := turn.Text
	if payloadText, ok := job.Payload["text"].(string); ok && payloadText != "" {
		text = payloadText
	}
	embeddings, err := e.mediator.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed turn: %w", err)
	}
	if err := e.store.SetTurnEmbedding(ctx, turnID, embeddings[0]); err != nil {
		return fmt.Errorf("failed to store turn embedding: %w", err)
	}
	return nil
}

var _ jobs.Handler = (*Engine)(nil).EmbedTurnHandler
