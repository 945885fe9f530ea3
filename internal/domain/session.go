package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session statuses.
const (
	SessionActive  = "active"
	SessionExpired = "expired"
)

// Session is a time-bounded scope correlating one user's testing activity,
// its webhook endpoint, and its run. The token doubles as the opaque path
// segment of the session's delivery URL.
type Session struct {
	Token     string    `json:"token"`
	Secret    string    `json:"secret"` // HMAC secret for signed test deliveries
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Status    string    `json:"status"`
}

// Expired reports whether the session's TTL has elapsed at the given time.
// TTL is fixed from creation, not sliding, so resource lifetime stays
// predictable.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NewSession creates an active session with a fresh token and secret.
func NewSession(ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		Token:     NewToken(),
		Secret:    NewToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    SessionActive,
	}
}

// NewToken returns a 256-bit random hex token. Tokens must be unguessable;
// they are the only credential guarding a session's delivery URL.
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic("token generation: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
