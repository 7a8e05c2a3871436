// Package config loads server configuration from JSONC files and the
// environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/quillworks/quill/pkg/types"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultPort                 = 4816
	DefaultInactivityTimeoutSec = 300
	DefaultStreamTimeoutSec     = 120
	DefaultMaxRetries           = 3
	DefaultTokenBudget          = 120000
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/quill/quill.json[c])
// 2. Project config (<dir>/quill.json[c], <dir>/.quill/quill.json[c])
// 3. QUILL_CONFIG file override
// 4. Environment variables (highest priority)
func Load(directory string) (*types.Config, error) {
	cfg := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return
		}
		if loadFile(path, cfg) == nil {
			loaded[abs] = true
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, ".config", "quill")
		loadOnce(filepath.Join(global, "quill.json"))
		loadOnce(filepath.Join(global, "quill.jsonc"))
	}

	if directory != "" {
		loadOnce(filepath.Join(directory, "quill.json"))
		loadOnce(filepath.Join(directory, "quill.jsonc"))
		loadOnce(filepath.Join(directory, ".quill", "quill.json"))
		loadOnce(filepath.Join(directory, ".quill", "quill.jsonc"))
	}

	if path := os.Getenv("QUILL_CONFIG"); path != "" {
		loadOnce(path)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// loadFile loads a single config file, stripping JSONC comments and
// interpolating {env:VAR} references.
func loadFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var file types.Config
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	merge(cfg, &file)
	return nil
}

var envRef = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces {env:VAR} references with environment values.
func interpolate(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge overlays src onto dst; src wins where it has a value.
func merge(dst, src *types.Config) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.WorkspaceDir != "" {
		dst.WorkspaceDir = src.WorkspaceDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DefaultProvider != "" {
		dst.DefaultProvider = src.DefaultProvider
	}
	if src.DefaultModel != "" {
		dst.DefaultModel = src.DefaultModel
	}
	if src.InactivityTimeoutSec != 0 {
		dst.InactivityTimeoutSec = src.InactivityTimeoutSec
	}
	if src.StreamTimeoutSec != 0 {
		dst.StreamTimeoutSec = src.StreamTimeoutSec
	}
	if src.MaxRetries != 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.TokenBudget != 0 {
		dst.TokenBudget = src.TokenBudget
	}
	for id, pc := range src.Provider {
		dst.Provider[id] = pc
	}
}

// applyEnvOverrides applies QUILL_* environment variables.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("QUILL_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("QUILL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("QUILL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QUILL_WORKSPACE_DIR"); v != "" {
		cfg.WorkspaceDir = v
	}
	if v := os.Getenv("QUILL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUILL_TOKEN_BUDGET"); v != "" {
		if budget, err := strconv.Atoi(v); err == nil {
			cfg.TokenBudget = budget
		}
	}

	// Provider API keys from conventional variables.
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		pc := cfg.Provider["anthropic"]
		pc.APIKey = v
		cfg.Provider["anthropic"] = pc
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		pc := cfg.Provider["openai"]
		pc.APIKey = v
		cfg.Provider["openai"] = pc
	}
}

// applyDefaults fills zero values with built-in defaults.
func applyDefaults(cfg *types.Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".local", "share", "quill")
		} else {
			cfg.DataDir = ".quill-data"
		}
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(cfg.DataDir, "workspaces")
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.InactivityTimeoutSec == 0 {
		cfg.InactivityTimeoutSec = DefaultInactivityTimeoutSec
	}
	if cfg.StreamTimeoutSec == 0 {
		cfg.StreamTimeoutSec = DefaultStreamTimeoutSec
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.TokenBudget == 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	}
}
