package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/hookbench/hookbench/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved control-surface credentials. An empty
// token means the control surface is open; webhook delivery endpoints
// are always authenticated by session token alone.
type ResolvedAuth struct {
	Token string
}

// ResolveAuth resolves the gateway token from config and environment.
// Precedence: config value, then HOOKBENCH_GATEWAY_TOKEN.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Token: cfg.Token}
	if auth.Token == "" {
		auth.Token = os.Getenv("HOOKBENCH_GATEWAY_TOKEN")
	}
	return auth
}

// Enabled reports whether the control surface requires a token.
func (a ResolvedAuth) Enabled() bool { return a.Token != "" }

// Authorize checks the connect-request credentials.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if !serverAuth.Enabled() {
		return AuthResult{OK: true}
	}
	if clientAuth == nil || clientAuth.Token == "" {
		return AuthResult{OK: false, Reason: "token required"}
	}
	if !safeEqual(clientAuth.Token, serverAuth.Token) {
		return AuthResult{OK: false, Reason: "token_mismatch"}
	}
	return AuthResult{OK: true}
}

// AuthorizeRequest checks the Authorization: Bearer header on a control
// REST request.
func AuthorizeRequest(serverAuth ResolvedAuth, r *http.Request) AuthResult {
	if !serverAuth.Enabled() {
		return AuthResult{OK: true}
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return AuthResult{OK: false, Reason: "token required"}
	}
	if !safeEqual(token, serverAuth.Token) {
		return AuthResult{OK: false, Reason: "token_mismatch"}
	}
	return AuthResult{OK: true}
}

// safeEqual performs a constant-time string comparison to prevent timing
// attacks. Length is compared in constant time too, so secret length is
// not leaked via early return.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
