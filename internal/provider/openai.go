package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint. Any
// server speaking the chat completions protocol works through BaseURL.
type OpenAIConfig struct {
	// ID overrides the provider identifier, e.g. for a proxy deployment.
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIProvider implements Provider on the OpenAI chat completions API.
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	config    *OpenAIConfig
}

// NewOpenAIProvider creates an OpenAI provider. The API key falls back to
// the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o"
	}

	cfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	return &OpenAIProvider{chatModel: chatModel, config: config}, nil
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

// CreateCompletion creates a streaming completion. Chunks carry incremental
// text deltas.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxCompletionTokens(req.MaxTokens))
	}

	reader, err := chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return &StreamReaderAdapter{Reader: reader}, nil
}
