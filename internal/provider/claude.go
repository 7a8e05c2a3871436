package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/quillworks/quill/pkg/types"
)

// ClaudeProvider implements Provider for Anthropic Claude models.
type ClaudeProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *ClaudeConfig
}

// ClaudeConfig holds configuration for the Claude provider.
type ClaudeConfig struct {
	// ID is the provider identifier; empty defaults to "anthropic".
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// StreamTimeout bounds silence on a completion stream.
	StreamTimeout time.Duration

	// Extended thinking support.
	Thinking *claude.Thinking
}

// NewClaudeProvider creates a Claude provider from config, falling
// back to ANTHROPIC_API_KEY from the environment.
func NewClaudeProvider(ctx context.Context, config *ClaudeConfig) (*ClaudeProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
		Thinking:  config.Thinking,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	return &ClaudeProvider{
		chatModel: chatModel,
		models:    claudeModels(),
		config:    config,
	}, nil
}

// ID returns the provider identifier.
func (p *ClaudeProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "anthropic"
}

// Name returns the human-readable provider name.
func (p *ClaudeProvider) Name() string { return "Anthropic" }

// Models returns the list of available models.
func (p *ClaudeProvider) Models() []types.Model {
	return p.models
}

// ChatModel returns the underlying Eino chat model.
func (p *ClaudeProvider) ChatModel() model.ToolCallingChatModel {
	return p.chatModel
}

// CreateCompletion starts a streaming completion.
func (p *ClaudeProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	stream, err := chatModel.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, Classify(err)
	}

	return NewCompletionStream(stream, p.config.StreamTimeout), nil
}

func claudeModels() []types.Model {
	return []types.Model{
		{
			ID:              "claude-sonnet-4-20250514",
			Name:            "Claude Sonnet 4",
			ContextWindow:   200000,
			MaxOutputTokens: 64000,
			SupportsTools:   true,
		},
		{
			ID:              "claude-opus-4-20250514",
			Name:            "Claude Opus 4",
			ContextWindow:   200000,
			MaxOutputTokens: 32000,
			SupportsTools:   true,
			Reasoning:       true,
		},
		{
			ID:              "claude-3-5-sonnet-20241022",
			Name:            "Claude 3.5 Sonnet",
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
		},
		{
			ID:              "claude-3-5-haiku-20241022",
			Name:            "Claude 3.5 Haiku",
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
		},
	}
}
