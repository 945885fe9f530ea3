package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.Bind != "loopback" && !cfg.Gateway.TLS.Enabled {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls.enabled",
			Message: "delivery URLs must be served over TLS on non-loopback binds",
		})
	}

	if cfg.Session.TTLHours < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "session.ttlHours",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Session.TTLHours),
		})
	}

	validStores := []string{"sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}

	// The run ceiling must force early abandonment of slow multi-step runs;
	// a ceiling below a single step timeout would make every step race it.
	if cfg.Run.RunTimeoutSeconds < cfg.Run.StepTimeoutSeconds {
		issues = append(issues, ValidationIssue{
			Path:    "run.runTimeoutSeconds",
			Message: fmt.Sprintf("must be >= stepTimeoutSeconds (%d), got %d",
				cfg.Run.StepTimeoutSeconds, cfg.Run.RunTimeoutSeconds),
		})
	}

	validProviders := []string{"none", "http"}
	if cfg.AI.Provider != "" && !slices.Contains(validProviders, cfg.AI.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "ai.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.AI.Provider),
		})
	}
	if cfg.AI.Provider == "http" && cfg.AI.Endpoint == "" {
		issues = append(issues, ValidationIssue{
			Path:    "ai.endpoint",
			Message: "required when ai.provider is \"http\"",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
