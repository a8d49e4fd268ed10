package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/envutil"
)

// Load loads and validates the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks the resolved config for structural problems
func Validate(config *Config) error {
	if config.App.BackendURL == "" {
		return fmt.Errorf("app.backendUrl is required")
	}
	if _, err := url.ParseRequestURI(config.App.BackendURL); err != nil {
		return fmt.Errorf("app.backendUrl is not a valid URL: %w", err)
	}
	if config.App.Origin == "" {
		return fmt.Errorf("app.origin is required")
	}
	origin, err := url.Parse(config.App.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("app.origin must be scheme://host, got %q", config.App.Origin)
	}
	if origin.Scheme != "https" && !envutil.IsDev() {
		return fmt.Errorf("app.origin must be https outside development mode, got %q", config.App.Origin)
	}

	if config.App.SessionFile != "" && len(config.App.EncryptionKey) != 32 {
		return fmt.Errorf("app.encryptionKey must be 32 bytes when sessionFile is set, got %d", len(config.App.EncryptionKey))
	}

	for name, provider := range config.Providers {
		switch provider.Kind {
		case ProviderKindLocal:
			if provider.ClientID == "" {
				return fmt.Errorf("providers.%s.clientId is required for local providers", name)
			}
			if provider.RedirectURI == "" {
				return fmt.Errorf("providers.%s.redirectUri is required for local providers", name)
			}
		case ProviderKindBackend:
			// URL comes from the backend, nothing else needed
		default:
			return fmt.Errorf("providers.%s.kind must be %q or %q, got %q",
				name, ProviderKindLocal, ProviderKindBackend, provider.Kind)
		}
	}

	return nil
}
