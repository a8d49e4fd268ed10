package idp

import (
	"context"
)

// Action is what the user is doing with the external identity. It rides
// inside the relay's signed state parameter so the callback knows how to
// treat the returning identity.
type Action string

const (
	// ActionLogin authenticates an existing linked account
	ActionLogin Action = "login"
	// ActionRegister creates a new local account from the external identity
	ActionRegister Action = "register"
	// ActionConnect links the external identity to the already-logged-in
	// account. Whether the backend verifies the connecting identity's email
	// against the existing account is a backend contract question; the
	// client makes no assumption either way.
	ActionConnect Action = "connect"
)

// Provider computes the authorization URL a relay popup navigates to.
// Code exchange and token validation happen server-side; the client's only
// provider-facing responsibility is building the URL that starts the flow.
type Provider interface {
	// Name returns the provider tag ("google", "line") used in backend
	// routes and linked-provider sets.
	Name() string

	// AuthURL builds the authorization URL for one relay attempt. state is
	// the relay's signed state parameter; action is embedded alongside it.
	AuthURL(ctx context.Context, state string, action Action) (string, error)
}
