// Package metrics records guarded tool invocations and exposes aggregate
// and per-tool summaries. The history is append-only and shared across
// sessions; the collector is safe for concurrent use.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Outcome classifies one guarded tool call.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeDenied      Outcome = "denied"
	OutcomeRateLimited Outcome = "rate-limited"
	OutcomeError       Outcome = "error"
)

// Invocation is one recorded tool call. It is immutable once recorded.
type Invocation struct {
	SessionID   string        `json:"sessionId"`
	Tool        string        `json:"tool"`
	Outcome     Outcome       `json:"outcome"`
	Latency     time.Duration `json:"latency"`
	InputBytes  int           `json:"inputBytes"`
	OutputBytes int           `json:"outputBytes"`
	StartedAt   time.Time     `json:"startedAt"`
}

// ToolSummary is the per-tool aggregate.
type ToolSummary struct {
	Calls      int           `json:"calls"`
	Successes  int           `json:"successes"`
	AvgLatency time.Duration `json:"avgLatency"`
}

// Summary is the aggregate view over every recorded invocation.
type Summary struct {
	TotalCalls       int                    `json:"totalCalls"`
	SuccessRate      float64                `json:"successRate"`
	AvgLatency       time.Duration          `json:"avgLatency"`
	TotalInputBytes  int64                  `json:"totalInputBytes"`
	TotalOutputBytes int64                  `json:"totalOutputBytes"`
	PerTool          map[string]ToolSummary `json:"perTool"`
}

// Collector accumulates invocation records. Every record also emits one
// structured log line, info for success and error otherwise, gated by the
// collector's minimum severity; below-threshold records are still retained
// for summaries.
type Collector struct {
	mu      sync.Mutex
	history []Invocation
	perTool map[string]ToolSummary

	totalLatency time.Duration
	successes    int
	inputBytes   int64
	outputBytes  int64

	logger zerolog.Logger

	invocations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewCollector creates a collector logging through the given logger at or
// above minLevel. If reg is non-nil the collector also registers Prometheus
// series on it.
func NewCollector(logger zerolog.Logger, minLevel zerolog.Level, reg prometheus.Registerer) *Collector {
	c := &Collector{
		perTool: make(map[string]ToolSummary),
		logger:  logger.Level(minLevel),
	}

	if reg != nil {
		c.invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_tool_invocations_total",
			Help: "Guarded tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"})
		c.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appforge_tool_latency_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"})
		reg.MustRegister(c.invocations, c.latency)
	}

	return c
}

// Record appends an invocation to the history and updates the running
// per-tool average incrementally.
func (c *Collector) Record(inv Invocation) {
	c.mu.Lock()

	c.history = append(c.history, inv)

	ts := c.perTool[inv.Tool]
	ts.Calls++
	if inv.Outcome == OutcomeSuccess {
		ts.Successes++
	}
	// avg' = (avg*(n-1) + latency) / n
	ts.AvgLatency = (ts.AvgLatency*time.Duration(ts.Calls-1) + inv.Latency) / time.Duration(ts.Calls)
	c.perTool[inv.Tool] = ts

	c.totalLatency += inv.Latency
	if inv.Outcome == OutcomeSuccess {
		c.successes++
	}
	c.inputBytes += int64(inv.InputBytes)
	c.outputBytes += int64(inv.OutputBytes)

	c.mu.Unlock()

	evt := c.logger.Info()
	if inv.Outcome != OutcomeSuccess {
		evt = c.logger.Error()
	}
	evt.Str("tool", inv.Tool).
		Str("outcome", string(inv.Outcome)).
		Str("sessionID", inv.SessionID).
		Dur("latency", inv.Latency).
		Int("inputBytes", inv.InputBytes).
		Int("outputBytes", inv.OutputBytes).
		Msg("tool invocation")

	if c.invocations != nil {
		c.invocations.WithLabelValues(inv.Tool, string(inv.Outcome)).Inc()
		c.latency.WithLabelValues(inv.Tool).Observe(inv.Latency.Seconds())
	}
}

// Summary returns the aggregate success rate, average latency, byte totals,
// and the per-tool breakdown.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalCalls:       len(c.history),
		TotalInputBytes:  c.inputBytes,
		TotalOutputBytes: c.outputBytes,
		PerTool:          make(map[string]ToolSummary, len(c.perTool)),
	}
	if s.TotalCalls > 0 {
		s.SuccessRate = float64(c.successes) / float64(s.TotalCalls)
		s.AvgLatency = c.totalLatency / time.Duration(s.TotalCalls)
	}
	for tool, ts := range c.perTool {
		s.PerTool[tool] = ts
	}
	return s
}

// History returns a copy of every recorded invocation, oldest first.
func (c *Collector) History() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Invocation, len(c.history))
	copy(out, c.history)
	return out
}
