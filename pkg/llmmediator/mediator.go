// Package llmmediator brokers every embedding and chat-completion call
// the memory service makes to an upstream LLM, the way pkg/agent
// brokers calls to the Python LLM sidecar in the teacher repo. It adds
// the concerns a shared upstream client needs that a single call site
// wouldn't: bounded concurrency, a circuit breaker, retry with
// backoff, an embedding cache, and a deterministic fake mode for
// tests and offline development.
package llmmediator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/memhub/memoryd/pkg/apperr"
	"github.com/memhub/memoryd/pkg/cache"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/metrics"
)

// Message is one chat turn sent to the upstream LLM.
type Message struct {
	Role    string
	Content string
}

// Transport performs the physical call to the upstream LLM. Exactly
// one retry-worthy network round trip per call — retries, breaker, and
// caching all live in Mediator, not here.
type Transport interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	ChatJSON(ctx context.Context, messages []Message, model string) (map[string]any, error)
}

// Mediator is the single entry point the rest of the service uses to
// reach an LLM.
type Mediator struct {
	cfg       config.LLMConfig
	transport Transport
	breaker   *CircuitBreaker
	sem       *semaphore.Weighted
	cache     *cache.EmbeddingCache
}

// New constructs a Mediator. When cfg.FakeMode is set, the transport is
// the deterministic FakeTransport regardless of cfg.Transport.
func New(cfg config.LLMConfig) (*Mediator, error) {
	var transport Transport
	switch {
	case cfg.FakeMode:
		transport = &FakeTransport{EmbeddingDim: cfg.EmbeddingDim}
	case cfg.Transport == "grpc":
		t, err := NewGRPCTransport(cfg.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to construct gRPC LLM transport: %w", err)
		}
		transport = t
	default:
		transport = NewHTTPTransport(cfg.BaseURL, cfg.APIKey, cfg.LLMTimeout())
	}

	return &Mediator{
		cfg:       cfg,
		transport: transport,
		breaker:   NewCircuitBreaker(cfg.BreakerMaxFailures, time.Duration(cfg.BreakerTTLS)*time.Second),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}, nil
}

// NewWithCache is like New but lets the caller supply an already-sized
// embedding cache (constructed from config.CachePolicy), since the
// cache's lifetime spans the whole process, not just the mediator.
func NewWithCache(cfg config.LLMConfig, embCache *cache.EmbeddingCache) (*Mediator, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	m.cache = embCache
	return m, nil
}

// Embed returns one embedding vector per input text, in order.
// Cache hits bypass the breaker and semaphore entirely.
func (m *Mediator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	if m.cache != nil {
		for i, t := range texts {
			if v, ok := m.cache.Get(t); ok {
				out[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	} else {
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
		missTexts = texts
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	results, err := m.call(ctx, "embed", func(ctx context.Context) (any, error) {
		return m.transport.Embed(ctx, missTexts, m.cfg.EmbeddingModel)
	})
	if err != nil {
		return nil, err
	}
	vectors := results.([][]float32)
	for i, idx := range missIdx {
		out[idx] = vectors[i]
		if m.cache != nil {
			m.cache.Set(missTexts[i], vectors[i])
		}
	}
	return out, nil
}

// ChatJSON sends a chat completion request and returns the parsed JSON
// object the model replied with.
func (m *Mediator) ChatJSON(ctx context.Context, messages []Message) (map[string]any, error) {
	result, err := m.call(ctx, "chat", func(ctx context.Context) (any, error) {
		return m.transport.ChatJSON(ctx, messages, m.cfg.ChatModel)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// call applies the breaker, semaphore, and retry-with-backoff wrapper
// around a single upstream operation.
func (m *Mediator) call(ctx context.Context, kind string, fn func(context.Context) (any, error)) (any, error) {
	metrics.LLMCallCount.WithLabelValues(kind).Inc()

	if !m.breaker.Allow() {
		metrics.LLMCallFailures.WithLabelValues(kind).Inc()
		return nil, apperr.ErrBreakerOpen
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire LLM concurrency slot: %w", err)
	}
	defer m.sem.Release(1)

	var lastErr error
	maxAttempts := m.cfg.MaxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			slog.Warn("retrying LLM call", "kind", kind, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.LLMTimeout())
		result, err := fn(callCtx)
		cancel()
		if err == nil {
			m.breaker.RecordSuccess()
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			m.breaker.RecordFailure()
			metrics.LLMCallFailures.WithLabelValues(kind).Inc()
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
	}
	m.breaker.RecordFailure()
	metrics.LLMCallFailures.WithLabelValues(kind).Inc()
	return nil, fmt.Errorf("%s: %w: %v", kind, apperr.ErrUpstreamTransient, lastErr)
}

// retryBackoff is exponential with jitter, scoped to the physical HTTP
// call only — it never wraps the breaker or semaphore wait.
func retryBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

func isRetryable(err error) bool {
	if as, ok := err.(interface{ Retryable() bool }); ok {
		return as.Retryable()
	}
	return false
}

// retryableError is implemented by transport errors that know whether
// they represent a transient failure (5xx, timeout, connection reset)
// versus a permanent one (4xx, malformed response).
type retryableError interface {
	error
	Retryable() bool
}
