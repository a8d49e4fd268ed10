package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserProfile is an immutable snapshot of the logged-in user as reported by
// the backend. Any change (profile edit, provider link) comes back as a new
// snapshot from a backend round trip; sensitive fields like IsAdmin are
// never derived client-side.
type UserProfile struct {
	ID              int64    `json:"id"`
	Username        string   `json:"username"`
	DisplayName     string   `json:"display_name,omitempty"`
	Email           string   `json:"email,omitempty"`
	IsAdmin         bool     `json:"is_admin"`
	LinkedProviders []string `json:"linked_providers,omitempty"`
	PasskeyCount    int      `json:"passkey_count,omitempty"`
}

// HasProvider reports whether the given identity provider is linked
func (p UserProfile) HasProvider(provider string) bool {
	for _, linked := range p.LinkedProviders {
		if linked == provider {
			return true
		}
	}
	return false
}

// Session is the client-held proof of identity: the user snapshot plus the
// bearer token that authorizes subsequent API calls. At most one Session
// exists at a time; it is owned by the Store and replaced whole, never
// patched in place.
type Session struct {
	User          UserProfile `json:"user"`
	BearerToken   string      `json:"token"`
	EstablishedAt time.Time   `json:"established_at"`
}

// New creates a session established now
func New(user UserProfile, token string) *Session {
	return &Session{
		User:          user,
		BearerToken:   token,
		EstablishedAt: time.Now(),
	}
}

// Expired reports whether the bearer token carries an exp claim in the
// past. The signature is not verified here, that is the backend's job; the
// claim is read only so a stale persisted session is treated as absent
// instead of producing 401s on every call.
func (s *Session) Expired(now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.BearerToken, claims); err != nil {
		// Opaque token, no expiry to read
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
