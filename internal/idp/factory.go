package idp

import (
	"fmt"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/config"
)

// NewProvider creates a Provider for name based on its config entry
func NewProvider(name string, cfg config.ProviderConfig, client *api.Client) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderKindBackend:
		return NewBackendProvider(name, client), nil

	case config.ProviderKindLocal:
		switch name {
		case "google":
			return NewGoogleProvider(cfg.ClientID, cfg.RedirectURI), nil
		case "line":
			return NewLineProvider(cfg.ClientID, cfg.RedirectURI), nil
		default:
			return nil, fmt.Errorf("unknown local provider: %s", name)
		}

	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}
