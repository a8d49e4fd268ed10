package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind says where a provider's authorization URL comes from
type ProviderKind string

const (
	// ProviderKindLocal builds the URL client-side from a public client ID
	ProviderKindLocal ProviderKind = "local"
	// ProviderKindBackend fetches the URL from GET /auth/{provider}
	ProviderKindBackend ProviderKind = "backend"
)

// Config is the client configuration with env references resolved
type Config struct {
	App       AppConfig                 `json:"app"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// AppConfig covers the backend connection, this app's own origin (the
// trust boundary for relay envelopes), and session persistence.
type AppConfig struct {
	BackendURL      string `json:"backendUrl"`
	Origin          string `json:"origin"`
	CallbackPath    string `json:"callbackPath,omitempty"`
	SessionFile     string `json:"sessionFile,omitempty"`
	EncryptionKey   Secret `json:"encryptionKey,omitempty"`
	StateSigningKey Secret `json:"stateSigningKey,omitempty"`
}

// ProviderConfig configures one identity provider
type ProviderConfig struct {
	Kind        ProviderKind `json:"kind"`
	ClientID    string       `json:"clientId,omitempty"`
	RedirectURI string       `json:"redirectUri,omitempty"`
}

// resolveValue parses a JSON value that is either a plain string or an
// {"$env": "NAME"} reference resolved against the environment.
func resolveValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return value, nil
}

// UnmarshalJSON resolves env references in secret-bearing fields
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BackendURL      string          `json:"backendUrl"`
		Origin          string          `json:"origin"`
		CallbackPath    string          `json:"callbackPath"`
		SessionFile     string          `json:"sessionFile"`
		EncryptionKey   json.RawMessage `json:"encryptionKey"`
		StateSigningKey json.RawMessage `json:"stateSigningKey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.BackendURL = raw.BackendURL
	a.Origin = raw.Origin
	a.CallbackPath = raw.CallbackPath
	a.SessionFile = raw.SessionFile

	if len(raw.EncryptionKey) > 0 {
		value, err := resolveValue(raw.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryptionKey: %w", err)
		}
		a.EncryptionKey = Secret(value)
	}
	if len(raw.StateSigningKey) > 0 {
		value, err := resolveValue(raw.StateSigningKey)
		if err != nil {
			return fmt.Errorf("stateSigningKey: %w", err)
		}
		a.StateSigningKey = Secret(value)
	}
	return nil
}

// UnmarshalJSON resolves env references in the client ID
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind        ProviderKind    `json:"kind"`
		ClientID    json.RawMessage `json:"clientId"`
		RedirectURI string          `json:"redirectUri"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.RedirectURI = raw.RedirectURI

	if len(raw.ClientID) > 0 {
		value, err := resolveValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("clientId: %w", err)
		}
		p.ClientID = value
	}
	return nil
}
