package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and environment. Environment
// variables use the CONCIERGE_ prefix with underscores for nesting, e.g.
// CONCIERGE_ENGINES_OPENAI_KEY.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables only bind for keys viper knows about.
	for _, key := range configKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Logging.File == "" && cfg.AuditFile != "" {
		cfg.Logging.File = filepath.Join(filepath.Dir(cfg.AuditFile), "concierge.log")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if configPath == "" {
		return fmt.Errorf("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("ledger", cfg.Ledger)
	v.Set("sessions", cfg.Sessions)
	v.Set("engines", cfg.Engines)
	v.Set("exchange", cfg.Exchange)
	v.Set("logging", cfg.Logging)
	v.Set("audit_file", cfg.AuditFile)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return defaultConfigPath()
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".concierge", "concierge.json")
}

// configKeys lists every bindable configuration key.
func configKeys() []string {
	return []string{
		"server.host",
		"server.port",
		"server.allowed_origins",
		"server.rate_limit_per_minute",
		"ledger.dir",
		"ledger.watch",
		"sessions.ttl_minutes",
		"sessions.sweep_schedule",
		"engines.default",
		"engines.model",
		"engines.openai_key",
		"engines.anthropic_key",
		"engines.allow_selection",
		"exchange.primary_url",
		"exchange.secondary_url",
		"exchange.bitcoin_url",
		"exchange.timeout_seconds",
		"logging.level",
		"logging.file",
		"logging.console",
		"logging.pretty",
		"logging.redaction",
		"audit_file",
	}
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
