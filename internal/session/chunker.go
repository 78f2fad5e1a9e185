package session

import (
	"context"
	"regexp"
	"time"

	"github.com/appforge-ai/appforge/internal/stream"
)

// tokenPattern splits text into whitespace-delimited tokens, each keeping
// its trailing whitespace so concatenating chunks reproduces the input.
var tokenPattern = regexp.MustCompile(`\S+\s*|\s+`)

// chunker re-chunks model text deltas into fixed-size token groups with an
// inter-chunk delay, smoothing client-side rendering of reasoning output.
type chunker struct {
	ch        *stream.Channel
	sessionID string
	size      int
	delay     time.Duration
}

func newChunker(ch *stream.Channel, sessionID string, size int, delay time.Duration) *chunker {
	if size <= 0 {
		size = 1
	}
	return &chunker{ch: ch, sessionID: sessionID, size: size, delay: delay}
}

// write emits the text as delta events, size tokens at a time. The delay is
// applied between chunks, not before the first one.
func (c *chunker) write(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	tokens := tokenPattern.FindAllString(text, -1)
	for i := 0; i < len(tokens); i += c.size {
		if i > 0 && c.delay > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		end := i + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := ""
		for _, tok := range tokens[i:end] {
			chunk += tok
		}

		if err := c.ch.Send(ctx, stream.Delta{SessionID: c.sessionID, Text: chunk}); err != nil {
			return err
		}
	}
	return nil
}
