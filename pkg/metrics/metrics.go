// Package metrics exposes the process-wide Prometheus counters and
// histograms the tool dispatch façade and background engines record
// against, scraped at /metrics the way cmd/tarsy/main.go wires gin to
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ToolCallCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tool_call_count",
		Help: "Number of tool dispatch invocations, by tool name.",
	}, []string{"tool"})

	ToolLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tool_latency_seconds",
		Help:    "Tool dispatch latency in seconds, by tool name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	LLMCallCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_call_count",
		Help: "Number of LLM mediator calls, by call type (embed|chat).",
	}, []string{"type"})

	LLMCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_call_failures",
		Help: "Number of failed LLM mediator calls, by call type (embed|chat).",
	}, []string{"type"})

	RetrievalLowConfidenceCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrieval_low_confidence_count",
		Help: "Number of retrieve.context calls whose result was flagged low-confidence.",
	})
)
