package config

import (
	"encoding/json"
	"time"
)

// Config represents the main service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Credit ledger storage
	Ledger LedgerConfig `json:"ledger" mapstructure:"ledger"`

	// Session registry
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Execution engines
	Engines EnginesConfig `json:"engines" mapstructure:"engines"`

	// Currency quote sources
	Exchange ExchangeConfig `json:"exchange" mapstructure:"exchange"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Audit log file (empty disables file output)
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`

	// Requests per minute per client for the chat endpoint. Zero disables
	// rate limiting.
	RateLimitPerMinute int `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// LedgerConfig holds credit ledger configuration
type LedgerConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`

	// Watch invalidates cached reference data when table files change on disk.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// SessionsConfig holds session registry configuration
type SessionsConfig struct {
	TTLMinutes    int    `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// TTL returns the idle window as a duration.
func (s SessionsConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// EnginesConfig holds execution engine configuration
type EnginesConfig struct {
	Default      string `json:"default" mapstructure:"default"`
	Model        string `json:"model" mapstructure:"model"`
	OpenAIKey    string `json:"openai_key" mapstructure:"openai_key"`
	AnthropicKey string `json:"anthropic_key" mapstructure:"anthropic_key"`

	// AllowSelection permits per-request engine and model selection.
	AllowSelection bool `json:"allow_selection" mapstructure:"allow_selection"`
}

// ExchangeConfig holds quote source configuration
type ExchangeConfig struct {
	PrimaryURL     string `json:"primary_url" mapstructure:"primary_url"`
	SecondaryURL   string `json:"secondary_url" mapstructure:"secondary_url"`
	BitcoinURL     string `json:"bitcoin_url" mapstructure:"bitcoin_url"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Timeout returns the per-attempt timeout as a duration.
func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			AllowedOrigins:     []string{"*"},
			RateLimitPerMinute: 60,
		},
		Ledger: LedgerConfig{
			Dir:   "data",
			Watch: true,
		},
		Sessions: SessionsConfig{
			TTLMinutes:    30,
			SweepSchedule: "@every 5m",
		},
		Engines: EnginesConfig{
			Default:        "openai",
			AllowSelection: true,
		},
		Exchange: ExchangeConfig{
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	if masked.Engines.OpenAIKey != "" {
		masked.Engines.OpenAIKey = "[REDACTED]"
	}
	if masked.Engines.AnthropicKey != "" {
		masked.Engines.AnthropicKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
