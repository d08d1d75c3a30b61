package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/orca/pkg/gateway"
	"github.com/harun/orca/pkg/session"
	"github.com/robfig/cron/v3"
)

// KnownProviders lists the backends orca can build
var KnownProviders = []string{"anthropic", "openai", "gemini"}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateProvider validates a backend name
func (v *Validator) ValidateProvider(name string) error {
	for _, known := range KnownProviders {
		if name == known {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %q (must be one of: %s)", name, strings.Join(KnownProviders, ", "))
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
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

// ValidateSchedule validates a cron spec such as "@every 30s"
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid heartbeat schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateServer validates a preconfigured tool server
func (v *Validator) ValidateServer(s ServerConfig) error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("label is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", s.URL)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate providers
	p := cfg.Providers
	if err := v.ValidateProvider(p.Primary); err != nil {
		errors = append(errors, fmt.Errorf("providers.primary: %w", err))
	}
	if err := v.ValidateProvider(p.Secondary); err != nil {
		errors = append(errors, fmt.Errorf("providers.secondary: %w", err))
	}
	if p.Primary != "" && p.Primary == p.Secondary {
		errors = append(errors, fmt.Errorf("providers.primary and providers.secondary must differ"))
	}
	if _, err := session.ParseMode(p.DefaultMode); err != nil {
		errors = append(errors, fmt.Errorf("providers.default_mode: %w", err))
	}
	if err := v.ValidateMaxTokens(p.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("providers.max_tokens: %w", err))
	}
	if err := v.ValidateTemperature(p.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("providers.temperature: %w", err))
	}

	// Validate agent loop
	if cfg.Agent.MaxSteps <= 0 {
		errors = append(errors, fmt.Errorf("agent.max_steps must be positive"))
	}
	if strings.TrimSpace(cfg.Agent.CompletionToken) == "" {
		errors = append(errors, fmt.Errorf("agent.completion_token is required"))
	}

	// Validate commands
	prefix := cfg.Commands.Prefix
	if prefix == "" || strings.ContainsAny(prefix, " \t\n") {
		errors = append(errors, fmt.Errorf("commands.prefix must be non-empty and contain no whitespace"))
	}

	// Validate tools
	if cfg.Tools.Timeout < 0 {
		errors = append(errors, fmt.Errorf("tools.timeout must be >= 0"))
	}
	seen := make(map[string]bool)
	for i, s := range cfg.Tools.Servers {
		if err := v.ValidateServer(s); err != nil {
			errors = append(errors, fmt.Errorf("tools.servers[%d]: %w", i, err))
			continue
		}
		if seen[s.Label] {
			errors = append(errors, fmt.Errorf("tools.servers[%d]: duplicate label %q", i, s.Label))
		}
		seen[s.Label] = true
	}

	// Validate attachments
	if _, err := gateway.ParseClearPolicy(cfg.Attachments.ClearPolicy); err != nil {
		errors = append(errors, fmt.Errorf("attachments.clear_policy: %w", err))
	}
	if cfg.Attachments.MaxBytes <= 0 {
		errors = append(errors, fmt.Errorf("attachments.max_bytes must be positive"))
	}

	if cfg.Browser.Timeout < 0 {
		errors = append(errors, fmt.Errorf("browser.timeout must be >= 0"))
	}
	if cfg.Shell.Timeout < 0 {
		errors = append(errors, fmt.Errorf("shell.timeout must be >= 0"))
	}

	// Validate daemon
	if err := v.ValidateSchedule(cfg.Daemon.Heartbeat); err != nil {
		errors = append(errors, fmt.Errorf("daemon.heartbeat: %w", err))
	}

	// Validate error policy
	if _, err := cfg.Policy(); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
