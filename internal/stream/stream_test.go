package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_WireShape(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			"stream_start",
			StreamStart{SessionID: "s1", MessageID: "m1"},
			map[string]any{"type": "stream_start", "sessionId": "s1", "messageId": "m1"},
		},
		{
			"delta",
			Delta{SessionID: "s1", Text: "hel"},
			map[string]any{"type": "delta", "sessionId": "s1", "text": "hel"},
		},
		{
			"phase",
			PhaseChange{SessionID: "s1", Name: PhaseCodeWriting},
			map[string]any{"type": "phase", "sessionId": "s1", "name": "code-writing"},
		},
		{
			"tool start",
			ToolBoundary{SessionID: "s1", Event: "start", ToolUseID: "t1", ToolName: "read_file"},
			map[string]any{"type": "tool", "sessionId": "s1", "event": "start", "toolUseId": "t1", "toolName": "read_file"},
		},
		{
			"stream_end with usage",
			StreamEnd{SessionID: "s1", Usage: &Usage{InputTokens: 10, OutputTokens: 4}},
			map[string]any{"type": "stream_end", "sessionId": "s1", "usage": map[string]any{"inputTokens": float64(10), "outputTokens": float64(4)}},
		},
		{
			"error",
			Error{SessionID: "s1", Message: "boom"},
			map[string]any{"type": "error", "sessionId": "s1", "message": "boom"},
		},
		{
			"files_updated",
			FilesUpdated{SessionID: "s1", Files: []string{"a.ts"}},
			map[string]any{"type": "files_updated", "sessionId": "s1", "files": []any{"a.ts"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.event)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshal_ToolEndOutcome(t *testing.T) {
	data, err := Marshal(ToolBoundary{SessionID: "s1", Event: "end", ToolUseID: "t1", ToolName: "read_file", Outcome: "denied"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"outcome":"denied"`)
}

func TestChannel_OrderedDelivery(t *testing.T) {
	c := NewChannel("s1")
	sub, err := c.Subscribe()
	require.NoError(t, err)

	ctx := context.Background()
	go func() {
		for i := 0; i < 100; i++ {
			_ = c.Send(ctx, Delta{SessionID: "s1", Text: fmt.Sprintf("%d", i)})
		}
		c.Close()
	}()

	i := 0
	for e := range sub {
		d := e.(Delta)
		assert.Equal(t, fmt.Sprintf("%d", i), d.Text)
		assert.Equal(t, "s1", e.Session())
		i++
	}
	assert.Equal(t, 100, i)
}

func TestChannel_SingleSubscriber(t *testing.T) {
	c := NewChannel("s1")

	_, err := c.Subscribe()
	require.NoError(t, err)

	_, err = c.Subscribe()
	assert.ErrorIs(t, err, ErrSubscribed)
}

func TestChannel_DropsWithoutSubscriber(t *testing.T) {
	c := NewChannel("s1")
	ctx := context.Background()

	// No subscriber attached: the event is gone permanently.
	require.NoError(t, c.Send(ctx, StreamStart{SessionID: "s1", MessageID: "m1"}))

	sub, err := c.Subscribe()
	require.NoError(t, err)

	require.NoError(t, c.Send(ctx, Delta{SessionID: "s1", Text: "x"}))
	c.Close()

	var got []Event
	for e := range sub {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.IsType(t, Delta{}, got[0])
}

func TestChannel_SendAfterClose(t *testing.T) {
	c := NewChannel("s1")
	c.Close()

	err := c.Send(context.Background(), Delta{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_BlockedSendCancelled(t *testing.T) {
	c := NewChannel("s1")
	_, err := c.Subscribe()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	// Fill the transport buffer; the subscriber never drains.
	for i := 0; i < transportBuffer; i++ {
		require.NoError(t, c.Send(ctx, Delta{SessionID: "s1"}))
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, Delta{SessionID: "s1"})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("blocked send was not cancelled")
	}
}

func TestChannel_CloseIdempotent(t *testing.T) {
	c := NewChannel("s1")
	_, err := c.Subscribe()
	require.NoError(t, err)
	c.Close()
	c.Close()
}
