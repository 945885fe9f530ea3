package config

// Config is the root configuration for Hookbench.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Run      RunConfig      `yaml:"run,omitempty"`
	AI       AIConfig       `yaml:"ai,omitempty"`
	Executor ExecutorConfig `yaml:"executor,omitempty"`
	Retry    RetryConfig    `yaml:"retry,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	PublicURL      string      `yaml:"publicUrl,omitempty"` // base for delivery URLs, e.g. https://hooks.example.com
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures authentication for the control surface. Webhook
// delivery endpoints are authenticated by session token alone.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// GatewayTLS configures TLS for the gateway. Delivery URLs must be served
// over an encrypted transport in any non-loopback deployment.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// SessionConfig defines session lifetime behavior.
type SessionConfig struct {
	TTLHours     int    `yaml:"ttlHours,omitempty"`     // fixed TTL from creation
	SweepMinutes int    `yaml:"sweepMinutes,omitempty"` // background expiry sweep interval
	Store        string `yaml:"store,omitempty"`        // "sqlite" | "memory"
}

// RunConfig bounds run execution.
type RunConfig struct {
	StepTimeoutSeconds int `yaml:"stepTimeoutSeconds,omitempty"`
	RunTimeoutSeconds  int `yaml:"runTimeoutSeconds,omitempty"`
	MaxResponseBytes   int `yaml:"maxResponseBytes,omitempty"` // trace response truncation
}

// AIConfig configures the external AI inference capability used by the
// planner and the error classifier.
type AIConfig struct {
	Provider       string `yaml:"provider,omitempty"` // "http" | "none"
	Endpoint       string `yaml:"endpoint,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	Model          string `yaml:"model,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// ExecutorConfig configures the outbound step executor.
type ExecutorConfig struct {
	// AllowedHosts is the egress allowlist. Empty means all hosts are
	// permitted (local development only).
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`
	MaxRetries   int      `yaml:"maxRetries,omitempty"`
}

// RetryConfig controls the durable retry queue for failed non-critical
// notification steps.
type RetryConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds,omitempty"`
	MaxAttempts     int `yaml:"maxAttempts,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" .. "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}
