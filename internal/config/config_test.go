package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// --- Load tests ---

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 18990, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, 24, cfg.Session.TTLHours)
	assert.Equal(t, "none", cfg.AI.Provider)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  port: 9999
session:
  store: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "memory", cfg.Session.Store)
	// Unset fields keep their defaults.
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 30, cfg.Run.StepTimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_EnvVarExpansionInSecrets(t *testing.T) {
	t.Setenv("TEST_HOOKBENCH_SECRET", "expanded-value")
	path := writeConfig(t, `
ai:
  provider: http
  endpoint: http://localhost:9000
  apiKey: ${TEST_HOOKBENCH_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-value", cfg.AI.APIKey)
}

func TestLoad_UnsetEnvVarLeftVerbatim(t *testing.T) {
	path := writeConfig(t, `
ai:
  apiKey: ${DEFINITELY_NOT_SET_ANYWHERE_42}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${DEFINITELY_NOT_SET_ANYWHERE_42}", cfg.AI.APIKey)
}

func TestLoad_EnvOverridesBeatFile(t *testing.T) {
	t.Setenv("HOOKBENCH_GATEWAY_TOKEN", "env-token")
	path := writeConfig(t, `
gateway:
  auth:
    token: file-token
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Gateway.Auth.Token)
}

// --- Validate tests ---

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_BadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = 70000

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.port", issues[0].Path)
}

func TestValidate_BadBindMode(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "everywhere"
	cfg.Gateway.TLS.Enabled = true

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.bind", issues[0].Path)
}

func TestValidate_NonLoopbackRequiresTLS(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "lan"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.tls.enabled", issues[0].Path)

	cfg.Gateway.TLS.Enabled = true
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_RunCeilingBelowStepTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Run.StepTimeoutSeconds = 60
	cfg.Run.RunTimeoutSeconds = 30

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "run.runTimeoutSeconds", issues[0].Path)
}

func TestValidate_HTTPProviderNeedsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.AI.Provider = "http"

	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "ai.endpoint", issues[0].Path)
}

func TestValidate_BadStoreAndLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Store = "postgres"
	cfg.Logging.Level = "verbose"

	issues := Validate(&cfg)
	paths := make([]string, len(issues))
	for i, is := range issues {
		paths[i] = is.Path
	}
	assert.Contains(t, paths, "session.store")
	assert.Contains(t, paths, "logging.level")
}

// --- Raw config path tests ---

func TestParseConfigPath(t *testing.T) {
	path, err := ParseConfigPath("gateway.auth.token")
	require.NoError(t, err)
	assert.Equal(t, []string{"gateway", "auth", "token"}, path)

	_, err = ParseConfigPath("")
	assert.Error(t, err)
}

func TestRawValueRoundTrip(t *testing.T) {
	raw := map[string]any{}

	SetValueAtPath(raw, []string{"gateway", "port"}, 9999)
	val, ok := GetValueAtPath(raw, []string{"gateway", "port"})
	require.True(t, ok)
	assert.Equal(t, 9999, val)

	assert.True(t, UnsetValueAtPath(raw, []string{"gateway", "port"}))
	_, ok = GetValueAtPath(raw, []string{"gateway", "port"})
	assert.False(t, ok)
	assert.False(t, UnsetValueAtPath(raw, []string{"gateway", "port"}))
}

func TestSaveAndLoadRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{}
	SetValueAtPath(raw, []string{"session", "store"}, "memory")
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"session", "store"})
	require.True(t, ok)
	assert.Equal(t, "memory", val)
}

func TestLoadRaw_MissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}
