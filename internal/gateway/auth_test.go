package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hookbench/hookbench/internal/config"
)

// --- Token comparison tests ---

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret-token", "secret-token"))
	assert.False(t, safeEqual("secret-token", "secret-tokeN"))
	assert.False(t, safeEqual("short", "a-much-longer-token"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("", "x"))
}

// --- Auth resolution tests ---

func TestResolveAuth_ConfigTakesPriority(t *testing.T) {
	t.Setenv("HOOKBENCH_GATEWAY_TOKEN", "env-token")

	auth := ResolveAuth(config.GatewayAuth{Token: "config-token"})
	assert.Equal(t, "config-token", auth.Token)
}

func TestResolveAuth_EnvFallback(t *testing.T) {
	t.Setenv("HOOKBENCH_GATEWAY_TOKEN", "env-token")

	auth := ResolveAuth(config.GatewayAuth{})
	assert.Equal(t, "env-token", auth.Token)
	assert.True(t, auth.Enabled())
}

func TestResolveAuth_OpenWhenUnset(t *testing.T) {
	t.Setenv("HOOKBENCH_GATEWAY_TOKEN", "")

	auth := ResolveAuth(config.GatewayAuth{})
	assert.False(t, auth.Enabled())
}

// --- Connect authorization tests ---

func TestAuthorize_OpenServer(t *testing.T) {
	result := Authorize(ResolvedAuth{}, nil)
	assert.True(t, result.OK)
}

func TestAuthorize_MissingToken(t *testing.T) {
	serverAuth := ResolvedAuth{Token: "secret"}

	result := Authorize(serverAuth, nil)
	assert.False(t, result.OK)

	result = Authorize(serverAuth, &ConnectAuth{})
	assert.False(t, result.OK)
	assert.Equal(t, "token required", result.Reason)
}

func TestAuthorize_TokenMismatch(t *testing.T) {
	result := Authorize(ResolvedAuth{Token: "secret"}, &ConnectAuth{Token: "wrong"})
	assert.False(t, result.OK)
	assert.Equal(t, "token_mismatch", result.Reason)
}

func TestAuthorize_ValidToken(t *testing.T) {
	result := Authorize(ResolvedAuth{Token: "secret"}, &ConnectAuth{Token: "secret"})
	assert.True(t, result.OK)
}

// --- REST authorization tests ---

func TestAuthorizeRequest_BearerHeader(t *testing.T) {
	serverAuth := ResolvedAuth{Token: "secret"}

	r := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	assert.False(t, AuthorizeRequest(serverAuth, r).OK)

	r.Header.Set("Authorization", "Bearer wrong")
	result := AuthorizeRequest(serverAuth, r)
	assert.False(t, result.OK)
	assert.Equal(t, "token_mismatch", result.Reason)

	r.Header.Set("Authorization", "Bearer secret")
	assert.True(t, AuthorizeRequest(serverAuth, r).OK)
}

func TestAuthorizeRequest_OpenServer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	assert.True(t, AuthorizeRequest(ResolvedAuth{}, r).OK)
}

// --- Bind address tests ---

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		want string
	}{
		{"loopback", config.GatewayConfig{Bind: "loopback", Port: 18990}, "127.0.0.1:18990"},
		{"lan", config.GatewayConfig{Bind: "lan", Port: 8080}, "0.0.0.0:8080"},
		{"custom", config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 9000}, "10.0.0.5:9000"},
		{"custom without host", config.GatewayConfig{Bind: "custom", Port: 9000}, "0.0.0.0:9000"},
		{"unknown defaults to loopback", config.GatewayConfig{Bind: "", Port: 1234}, "127.0.0.1:1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
		})
	}
}

// --- Origin check tests ---

func TestCheckWebSocketOrigin(t *testing.T) {
	check := checkWebSocketOrigin([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r), "non-browser clients send no Origin")

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	wildcard := checkWebSocketOrigin([]string{"*"})
	assert.True(t, wildcard(r))
}

// --- Rate limiter tests ---

func TestAuthRateLimiter_BlocksAfterRepeatedFailures(t *testing.T) {
	l := newAuthRateLimiter()
	addr := "192.0.2.1:51234"

	for i := 0; i < authRateMaxFails; i++ {
		assert.True(t, l.allow(addr))
		l.recordFailure(addr)
	}
	assert.False(t, l.allow(addr))

	// A different host is unaffected.
	assert.True(t, l.allow("192.0.2.2:51234"))
}

func TestAuthRateLimiter_OldFailuresExpire(t *testing.T) {
	l := newAuthRateLimiter()
	addr := "192.0.2.1:51234"

	for i := 0; i < authRateMaxFails; i++ {
		l.recordFailure(addr)
	}
	assert.False(t, l.allow(addr))

	// Age the recorded failures past the window.
	l.mu.Lock()
	stale := make([]time.Time, authRateMaxFails)
	cutoff := time.Now().Add(-authRateWindow - time.Minute)
	for i := range stale {
		stale[i] = cutoff
	}
	l.failures["192.0.2.1"] = stale
	l.mu.Unlock()

	assert.True(t, l.allow(addr))
}
