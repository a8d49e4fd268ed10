package idp

import (
	"context"
	"fmt"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/urlutil"
)

// Ensure BackendProvider implements the Provider interface
var _ Provider = (*BackendProvider)(nil)

// BackendProvider asks the festival-nav backend for the authorization URL.
// Used for providers whose channel credentials are configured only
// server-side (LINE in the original deployment), so the client never needs
// them. The relay's state and action are spliced into whatever URL the
// backend hands back.
type BackendProvider struct {
	name   string
	client *api.Client
}

// NewBackendProvider creates a provider backed by GET /auth/{name}
func NewBackendProvider(name string, client *api.Client) *BackendProvider {
	return &BackendProvider{name: name, client: client}
}

func (p *BackendProvider) Name() string {
	return p.name
}

func (p *BackendProvider) AuthURL(ctx context.Context, state string, action Action) (string, error) {
	raw, err := p.client.AuthURL(ctx, p.name)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s authorization url: %w", p.name, err)
	}

	spliced, err := urlutil.WithParams(raw, map[string]string{
		"state":  state,
		"action": string(action),
	})
	if err != nil {
		return "", fmt.Errorf("backend returned invalid %s authorization url: %w", p.name, err)
	}
	return spliced, nil
}
