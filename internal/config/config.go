package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18990,
			Bind: "loopback",
		},
		Session: SessionConfig{
			TTLHours:     24,
			SweepMinutes: 5,
			Store:        "sqlite",
		},
		Run: RunConfig{
			StepTimeoutSeconds: 30,
			RunTimeoutSeconds:  120,
			MaxResponseBytes:   4096,
		},
		AI: AIConfig{
			Provider:       "none",
			TimeoutSeconds: 20,
		},
		Executor: ExecutorConfig{
			MaxRetries: 2,
		},
		Retry: RetryConfig{
			IntervalSeconds: 60,
			MaxAttempts:     5,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyDefaults fills zero values left after unmarshalling a partial file.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = def.Session.TTLHours
	}
	if cfg.Session.SweepMinutes == 0 {
		cfg.Session.SweepMinutes = def.Session.SweepMinutes
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = def.Session.Store
	}
	if cfg.Run.StepTimeoutSeconds == 0 {
		cfg.Run.StepTimeoutSeconds = def.Run.StepTimeoutSeconds
	}
	if cfg.Run.RunTimeoutSeconds == 0 {
		cfg.Run.RunTimeoutSeconds = def.Run.RunTimeoutSeconds
	}
	if cfg.Run.MaxResponseBytes == 0 {
		cfg.Run.MaxResponseBytes = def.Run.MaxResponseBytes
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = def.AI.Provider
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = def.AI.TimeoutSeconds
	}
	if cfg.Retry.IntervalSeconds == 0 {
		cfg.Retry.IntervalSeconds = def.Retry.IntervalSeconds
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}
