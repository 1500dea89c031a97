package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, engine string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", engine)
	}

	switch engine {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateEngine validates a default engine name
func (v *Validator) ValidateEngine(name string) error {
	validEngines := []string{"openai", "anthropic"}
	for _, valid := range validEngines {
		if name == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid engine: %s (must be one of: %s)", name, strings.Join(validEngines, ", "))
}

// ValidatePort validates a TCP port value
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit_per_minute must be >= 0"))
	}

	if strings.TrimSpace(cfg.Ledger.Dir) == "" {
		errors = append(errors, fmt.Errorf("ledger.dir is required"))
	}

	if cfg.Sessions.TTLMinutes <= 0 {
		errors = append(errors, fmt.Errorf("sessions.ttl_minutes must be > 0"))
	}

	if err := v.ValidateEngine(cfg.Engines.Default); err != nil {
		errors = append(errors, err)
	}
	if cfg.Engines.OpenAIKey == "" && cfg.Engines.AnthropicKey == "" {
		errors = append(errors, fmt.Errorf("no engine credentials configured: set engines.openai_key or engines.anthropic_key"))
	}
	if cfg.Engines.OpenAIKey != "" {
		if err := v.ValidateAPIKey(cfg.Engines.OpenAIKey, "openai"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Engines.AnthropicKey != "" {
		if err := v.ValidateAPIKey(cfg.Engines.AnthropicKey, "anthropic"); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Exchange.TimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("exchange.timeout_seconds must be > 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
