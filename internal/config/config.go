// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for chatomatic.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatomatic/internal/cloud"
	"github.com/jeranaias/chatomatic/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatomatic configuration.
type Config struct {
	// Version tracks the config schema version.
	Version string `toml:"version" json:"version"`

	// Endpoint configures the remote chat completions connection.
	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`

	// Server configures the relay server (--serve).
	Server ServerConfig `toml:"server" json:"server"`

	// UI configures presentation.
	UI UIConfig `toml:"ui" json:"ui"`

	// Prompts maps quick-prompt names to their text. Entries here extend
	// or override the built-in quick prompts.
	Prompts map[string]string `toml:"prompts" json:"prompts"`
}

// EndpointConfig configures the streaming endpoint connection.
type EndpointConfig struct {
	// BaseURL is the endpoint root URL.
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey authenticates requests against the endpoint.
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the model identifier requested per turn.
	Model string `toml:"model" json:"model"`
	// Wire is the response decoding: "sse" or "raw".
	Wire string `toml:"wire" json:"wire"`
	// ConnectTimeoutSecs bounds connection establishment.
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs"`
}

// ServerConfig configures the relay server.
type ServerConfig struct {
	// ListenAddr is the address the relay binds to.
	ListenAddr string `toml:"listen_addr" json:"listen_addr"`
}

// UIConfig contains presentation configuration.
type UIConfig struct {
	// Theme is the color theme: "dark", "light", or "auto".
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders sealed assistant messages as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowTimestamps prefixes messages with their timestamp.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Endpoint: EndpointConfig{
			BaseURL:            cloud.DefaultBaseURL,
			Model:              cloud.DefaultModel,
			Wire:               string(cloud.WireSSE),
			ConnectTimeoutSecs: int(cloud.DefaultConnectTimeout / time.Second),
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8089",
		},
		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
		Prompts: map[string]string{},
	}
}

// =============================================================================
// FILE PATHS
// =============================================================================

// ConfigDir returns the chatomatic configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatomatic"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s). Tries TOML first,
// then JSON, and falls back to defaults. Environment overrides are
// applied last, then validation.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. JSON is selected by extension; anything else decodes as
// TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config from %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
		}
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = defaults.Endpoint.BaseURL
	}
	if c.Endpoint.Model == "" {
		c.Endpoint.Model = defaults.Endpoint.Model
	}
	if c.Endpoint.Wire == "" {
		c.Endpoint.Wire = defaults.Endpoint.Wire
	}
	if c.Endpoint.ConnectTimeoutSecs == 0 {
		c.Endpoint.ConnectTimeoutSecs = defaults.Endpoint.ConnectTimeoutSecs
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaults.Server.ListenAddr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Prompts == nil {
		c.Prompts = map[string]string{}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file with owner-only
// permissions.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file. The write is atomic
// so a crash never leaves a half-written config.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# chatomatic configuration file\n")
	buf.WriteString("# Generated by chatomatic - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Endpoint.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "endpoint.base_url",
			Message: "must be an http(s) URL",
		})
	}

	switch cloud.WireFormat(c.Endpoint.Wire) {
	case cloud.WireSSE, cloud.WireRaw:
	default:
		errs = append(errs, ValidationError{
			Field:   "endpoint.wire",
			Message: `must be "sse" or "raw"`,
		})
	}

	if c.Endpoint.ConnectTimeoutSecs < 1 || c.Endpoint.ConnectTimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "endpoint.connect_timeout_secs",
			Message: "must be between 1 and 600",
		})
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: `must be "dark", "light", or "auto"`,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATOMATIC_BASE_URL: overrides endpoint.base_url
//   - CHATOMATIC_API_KEY: overrides endpoint.api_key
//   - OPENROUTER_API_KEY: fallback for endpoint.api_key
//   - CHATOMATIC_MODEL: overrides endpoint.model
//   - CHATOMATIC_WIRE: overrides endpoint.wire
//   - CHATOMATIC_LISTEN: overrides server.listen_addr
//   - CHATOMATIC_THEME: overrides ui.theme
//   - CHATOMATIC_MARKDOWN: "1"/"true" or "0"/"false"
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATOMATIC_BASE_URL"); v != "" {
		c.Endpoint.BaseURL = v
	}
	if v := os.Getenv("CHATOMATIC_API_KEY"); v != "" {
		c.Endpoint.APIKey = v
	} else if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && c.Endpoint.APIKey == "" {
		c.Endpoint.APIKey = v
	}
	if v := os.Getenv("CHATOMATIC_MODEL"); v != "" {
		c.Endpoint.Model = v
	}
	if v := os.Getenv("CHATOMATIC_WIRE"); v != "" {
		c.Endpoint.Wire = v
	}
	if v := os.Getenv("CHATOMATIC_LISTEN"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("CHATOMATIC_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("CHATOMATIC_MARKDOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.Markdown = b
		}
	}
}

// =============================================================================
// CONVERSION
// =============================================================================

// ClientConfig converts the endpoint section into a streaming client
// configuration.
func (c *Config) ClientConfig() *cloud.Config {
	return &cloud.Config{
		BaseURL:        c.Endpoint.BaseURL,
		APIKey:         c.Endpoint.APIKey,
		Model:          c.Endpoint.Model,
		Wire:           cloud.WireFormat(c.Endpoint.Wire),
		ConnectTimeout: time.Duration(c.Endpoint.ConnectTimeoutSecs) * time.Second,
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance. Loads configuration
// on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
