package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCollector() *Collector {
	return NewCollector(zerolog.Nop(), zerolog.Disabled, nil)
}

func TestRecord_IncrementalAverageEqualsArithmeticMean(t *testing.T) {
	c := testCollector()

	latencies := []time.Duration{
		120 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		10 * time.Millisecond,
		90 * time.Millisecond,
	}

	var total time.Duration
	for _, l := range latencies {
		c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess, Latency: l})
		total += l
	}

	want := total / time.Duration(len(latencies))
	got := c.Summary().PerTool["read_file"].AvgLatency

	assert.InDelta(t, want.Seconds(), got.Seconds(), 0.000001)
}

func TestSummary_Aggregate(t *testing.T) {
	c := testCollector()

	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess, Latency: 100 * time.Millisecond, InputBytes: 40, OutputBytes: 2000})
	c.Record(Invocation{Tool: "write_file", Outcome: OutcomeError, Latency: 50 * time.Millisecond, InputBytes: 500, OutputBytes: 0})
	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeDenied, Latency: 0, InputBytes: 30, OutputBytes: 0})
	c.Record(Invocation{Tool: "fetch_url", Outcome: OutcomeRateLimited, Latency: 0})

	s := c.Summary()

	assert.Equal(t, 4, s.TotalCalls)
	assert.InDelta(t, 0.25, s.SuccessRate, 0.0001)
	assert.Equal(t, int64(570), s.TotalInputBytes)
	assert.Equal(t, int64(2000), s.TotalOutputBytes)
	assert.Equal(t, 2, s.PerTool["read_file"].Calls)
	assert.Equal(t, 1, s.PerTool["read_file"].Successes)
	assert.Equal(t, 1, s.PerTool["write_file"].Calls)
}

func TestSummary_Empty(t *testing.T) {
	s := testCollector().Summary()

	assert.Zero(t, s.TotalCalls)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.AvgLatency)
	assert.Empty(t, s.PerTool)
}

func TestRecord_ConcurrentAppendsLoseNothing(t *testing.T) {
	c := testCollector()

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess, Latency: time.Millisecond})
		}()
	}
	wg.Wait()

	s := c.Summary()
	assert.Equal(t, n, s.TotalCalls)
	assert.Equal(t, n, s.PerTool["read_file"].Calls)
	assert.Equal(t, time.Millisecond, s.PerTool["read_file"].AvgLatency)
}

func TestRecord_LogSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c := NewCollector(logger, zerolog.InfoLevel, nil)

	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess})
	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeDenied})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"info"`)
	assert.Contains(t, lines[1], `"level":"error"`)
}

func TestRecord_BelowThresholdStillRetained(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	// Threshold above info: successful records are not logged.
	c := NewCollector(logger, zerolog.ErrorLevel, nil)

	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess})

	assert.Empty(t, buf.String())
	assert.Equal(t, 1, c.Summary().TotalCalls)
}

func TestRecord_PrometheusSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(zerolog.Nop(), zerolog.Disabled, reg)

	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeSuccess, Latency: 10 * time.Millisecond})
	c.Record(Invocation{Tool: "read_file", Outcome: OutcomeDenied})

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "appforge_tool_invocations_total")
	assert.Contains(t, names, "appforge_tool_latency_seconds")
}

func TestHistory_CopyAndOrder(t *testing.T) {
	c := testCollector()

	c.Record(Invocation{Tool: "a", Outcome: OutcomeSuccess})
	c.Record(Invocation{Tool: "b", Outcome: OutcomeSuccess})

	h := c.History()
	require.Len(t, h, 2)
	assert.Equal(t, "a", h[0].Tool)
	assert.Equal(t, "b", h[1].Tool)

	h[0].Tool = "mutated"
	assert.Equal(t, "a", c.History()[0].Tool)
}
