package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/pkg/types"
)

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates an empty provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, apperr.Newf(apperr.KindNotFound, "model not found: %s/%s", providerID, modelID)
}

// Default resolves the configured default provider/model pair,
// falling back to any registered provider's first model.
func (r *Registry) Default() (types.ModelRef, error) {
	if r.config != nil && r.config.DefaultProvider != "" {
		ref := types.ModelRef{
			ProviderID: r.config.DefaultProvider,
			ModelID:    r.config.DefaultModel,
		}
		if ref.ModelID == "" {
			provider, err := r.Get(ref.ProviderID)
			if err != nil {
				return types.ModelRef{}, err
			}
			models := provider.Models()
			if len(models) == 0 {
				return types.ModelRef{}, apperr.Newf(apperr.KindNotFound, "provider %s has no models", ref.ProviderID)
			}
			ref.ModelID = models[0].ID
		}
		return ref, nil
	}

	for _, p := range r.List() {
		models := p.Models()
		if len(models) > 0 {
			return types.ModelRef{ProviderID: p.ID(), ModelID: models[0].ID}, nil
		}
	}
	return types.ModelRef{}, apperr.New(apperr.KindNotFound, "no providers configured")
}

// ParseModelRef parses "provider/model" format; a bare model keeps
// the provider empty for the caller to default.
func ParseModelRef(s string) types.ModelRef {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return types.ModelRef{ProviderID: parts[0], ModelID: parts[1]}
	}
	return types.ModelRef{ModelID: s}
}

// InitializeProviders creates and registers all providers the config
// enables and has credentials for.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	log := logging.For("provider")

	streamTimeout := time.Duration(config.StreamTimeoutSec) * time.Second

	if cfg, ok := config.Provider["anthropic"]; ok && !cfg.Disable {
		p, err := NewClaudeProvider(ctx, &ClaudeConfig{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			MaxTokens:     8192,
			StreamTimeout: streamTimeout,
		})
		if err != nil {
			log.Warn().Err(err).Msg("anthropic provider unavailable")
		} else {
			registry.Register(p)
		}
	}

	if cfg, ok := config.Provider["openai"]; ok && !cfg.Disable {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			MaxTokens:     4096,
			StreamTimeout: streamTimeout,
		})
		if err != nil {
			log.Warn().Err(err).Msg("openai provider unavailable")
		} else {
			registry.Register(p)
		}
	}

	return registry, nil
}
