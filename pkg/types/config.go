package types

// Config is the merged server configuration.
type Config struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	DataDir      string `json:"dataDir,omitempty"`
	WorkspaceDir string `json:"workspaceDir,omitempty"`
	LogLevel     string `json:"logLevel,omitempty"`

	DefaultProvider string `json:"defaultProvider,omitempty"`
	DefaultModel    string `json:"defaultModel,omitempty"`

	// InactivityTimeoutSec is the idle period after which a session
	// completes itself. Zero means the built-in default.
	InactivityTimeoutSec int `json:"inactivityTimeoutSec,omitempty"`
	// StreamTimeoutSec bounds how long a provider stream may go silent
	// before the read is treated as a transient failure.
	StreamTimeoutSec int `json:"streamTimeoutSec,omitempty"`
	MaxRetries       int `json:"maxRetries,omitempty"`

	// TokenBudget bounds the assembled prompt context.
	TokenBudget int `json:"tokenBudget,omitempty"`

	Provider map[string]ProviderConfig `json:"provider,omitempty"`
}

// ProviderConfig holds per-provider credentials and overrides.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
	Disable bool   `json:"disable,omitempty"`
}

// Model describes one model offered by a provider.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ContextWindow   int    `json:"contextWindow,omitempty"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
	SupportsTools   bool   `json:"supportsTools"`
	Reasoning       bool   `json:"reasoning,omitempty"`
}
