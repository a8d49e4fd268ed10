package auth

import (
	"context"
	"errors"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// Ensure PasswordCeremony implements the Ceremony interface
var _ Ceremony = (*PasswordCeremony)(nil)

// PasswordCeremony is the single round-trip credential exchange. The secret
// is bound at construction so Attempt keeps the shared ceremony signature.
// No retries happen here; the caller may re-invoke.
type PasswordCeremony struct {
	client *api.Client
	secret string
}

// NewPasswordCeremony creates a password ceremony for one attempt
func NewPasswordCeremony(client *api.Client, secret string) *PasswordCeremony {
	return &PasswordCeremony{client: client, secret: secret}
}

func (c *PasswordCeremony) Method() Method {
	return MethodPassword
}

// Attempt performs exactly one /login call. Identifier and secret must be
// non-empty; everything else (strength rules, lockout) is server-side.
func (c *PasswordCeremony) Attempt(ctx context.Context, identifier string) (*session.Session, error) {
	if identifier == "" || c.secret == "" {
		return nil, E(KindInvalidCredentials, errors.New("identifier and secret must be non-empty"))
	}

	result, err := c.client.Login(ctx, identifier, c.secret)
	if err != nil {
		classified := Classify(err, KindInvalidCredentials)
		log.LogDebugWithFields("auth", "Password login failed", map[string]any{
			"kind": classified.Kind.String(),
		})
		return nil, classified
	}

	log.LogInfoWithFields("auth", "Password login succeeded", map[string]any{
		"username": result.User.Username,
	})
	return session.New(result.User, result.Token), nil
}
