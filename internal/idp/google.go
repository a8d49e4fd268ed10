package idp

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Ensure GoogleProvider implements the Provider interface
var _ Provider = (*GoogleProvider)(nil)

// GoogleProvider builds Google authorization URLs locally; the client ID
// and redirect URI are public knowledge, the secret stays server-side with
// the code exchange.
type GoogleProvider struct {
	config oauth2.Config
}

// NewGoogleProvider creates a Google provider
func NewGoogleProvider(clientID, redirectURI string) *GoogleProvider {
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      []string{"openid", "email", "profile"},
			Endpoint:    google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

// AuthURL generates the authorization URL. Offline access with forced
// consent matches the original deployment's parameters.
func (p *GoogleProvider) AuthURL(_ context.Context, state string, action Action) (string, error) {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("action", string(action)),
	), nil
}
