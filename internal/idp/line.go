package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// lineEndpoint is LINE Login v2.1
var lineEndpoint = oauth2.Endpoint{
	AuthURL:  "https://access.line.me/oauth2/v2.1/authorize",
	TokenURL: "https://api.line.me/oauth2/v2.1/token",
}

// Ensure LineProvider implements the Provider interface
var _ Provider = (*LineProvider)(nil)

// LineProvider builds LINE Login authorization URLs locally
type LineProvider struct {
	config oauth2.Config
}

// NewLineProvider creates a LINE provider. channelID is LINE's equivalent
// of an OAuth client ID.
func NewLineProvider(channelID, redirectURI string) *LineProvider {
	return &LineProvider{
		config: oauth2.Config{
			ClientID:    channelID,
			RedirectURL: redirectURI,
			Scopes:      []string{"profile", "openid", "email"},
			Endpoint:    lineEndpoint,
		},
	}
}

func (p *LineProvider) Name() string {
	return "line"
}

func (p *LineProvider) AuthURL(_ context.Context, state string, action Action) (string, error) {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("action", string(action)),
	), nil
}
