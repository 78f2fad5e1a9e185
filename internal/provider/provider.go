// Package provider abstracts the language model collaborator. The runtime
// treats the model as opaque: it consumes a prompt plus tool schemas and
// yields a stream of text and tool-call chunks in Eino's message format.
package provider

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Provider is a model collaborator capable of streaming completions.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// CreateCompletion starts a streaming completion. The stream must be
	// closed by the caller. The context deadline bounds the whole call.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (CompletionStream, error)
}

// CompletionRequest is one model invocation.
type CompletionRequest struct {
	Messages  []*schema.Message  `json:"messages"`
	Tools     []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens int                `json:"maxTokens,omitempty"`
}

// CompletionStream yields message chunks until io.EOF.
type CompletionStream interface {
	// Recv returns the next chunk, or io.EOF when the stream is done.
	Recv() (*schema.Message, error)

	// Close releases the stream.
	Close()
}

// StreamReaderAdapter wraps an Eino stream reader as a CompletionStream.
type StreamReaderAdapter struct {
	Reader *schema.StreamReader[*schema.Message]
}

func (s *StreamReaderAdapter) Recv() (*schema.Message, error) {
	return s.Reader.Recv()
}

func (s *StreamReaderAdapter) Close() {
	s.Reader.Close()
}
