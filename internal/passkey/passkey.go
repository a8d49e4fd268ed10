package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// ErrAborted is the error authenticators return when the user or the
// platform cancels the prompt (no authenticator present, user dismissed,
// OS-level denial). All of these end the ceremony the same way.
var ErrAborted = errors.New("authenticator ceremony cancelled")

// Authenticator is the platform credential capability: it accepts a
// server-issued challenge and returns the signed creation or assertion
// response as JSON, exactly as it goes back to the verify endpoint.
// Implementations wrap whatever host platform the client runs on.
type Authenticator interface {
	// Available probes for the capability without touching the server
	Available() bool

	// Create performs a registration ceremony
	Create(ctx context.Context, options *protocol.CredentialCreation) (json.RawMessage, error)

	// Get performs an authentication ceremony
	Get(ctx context.Context, options *protocol.CredentialAssertion) (json.RawMessage, error)
}

// State tracks where in a ceremony the flow currently is
type State int

const (
	StateIdle State = iota
	StateRequestingChallenge
	StatePerformingCeremony
	StateVerifying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingChallenge:
		return "requesting_challenge"
	case StatePerformingCeremony:
		return "performing_ceremony"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ensure Ceremony implements the shared ceremony interface
var _ auth.Ceremony = (*Ceremony)(nil)

// Ceremony runs passkey registration and authentication. Both flows walk
// the same three states: request a fresh challenge, hand it to the
// authenticator, submit the response for verification. A challenge is used
// by at most one verification; every retry starts over with a fresh one,
// nothing here ever re-submits a consumed challenge.
type Ceremony struct {
	client        *api.Client
	authenticator Authenticator

	// bearerToken, when set, is sent with registration calls so a logged-in
	// user adds the passkey to their own account
	bearerToken string

	mu    sync.Mutex
	state State
}

// New creates a passkey ceremony
func New(client *api.Client, authenticator Authenticator) *Ceremony {
	return &Ceremony{client: client, authenticator: authenticator}
}

// NewForAccount creates a passkey ceremony that registers against the
// account authorized by bearerToken.
func NewForAccount(client *api.Client, authenticator Authenticator, bearerToken string) *Ceremony {
	return &Ceremony{client: client, authenticator: authenticator, bearerToken: bearerToken}
}

func (c *Ceremony) Method() auth.Method {
	return auth.MethodPasskey
}

// State returns the current flow state
func (c *Ceremony) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Ceremony) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.LogDebugWithFields("passkey", "State transition", map[string]any{
		"state": s.String(),
	})
}

// Attempt implements the shared ceremony interface as an authentication
func (c *Ceremony) Attempt(ctx context.Context, identifier string) (*session.Session, error) {
	return c.Authenticate(ctx, identifier)
}

// Register runs a registration ceremony for username. Registering a second
// time for the same user adds another credential; it never replaces the
// first one. On success the server issues a session for the new credential.
func (c *Ceremony) Register(ctx context.Context, username string) (*session.Session, error) {
	result, err := c.run(ctx, username, registrationFlow{c})
	if err != nil {
		return nil, err
	}
	return session.New(result.User, result.Token), nil
}

// Authenticate runs an authentication ceremony for username
func (c *Ceremony) Authenticate(ctx context.Context, username string) (*session.Session, error) {
	result, err := c.run(ctx, username, authenticationFlow{c})
	if err != nil {
		return nil, err
	}
	return session.New(result.User, result.Token), nil
}

// flow abstracts the registration/authentication differences: which
// options endpoint issues the challenge, which authenticator ceremony runs,
// and which verify endpoint consumes the response.
type flow interface {
	name() string
	challenge(ctx context.Context, username string) (any, error)
	perform(ctx context.Context, challenge any) (json.RawMessage, error)
	verify(ctx context.Context, response json.RawMessage) (*api.LoginResult, error)
}

func (c *Ceremony) run(ctx context.Context, username string, f flow) (*api.LoginResult, error) {
	if username == "" {
		c.setState(StateFailed)
		return nil, auth.E(auth.KindInvalidCredentials, errors.New("username must be non-empty"))
	}

	// Probe the capability before any server contact
	if !c.authenticator.Available() {
		c.setState(StateFailed)
		return nil, auth.E(auth.KindUnsupportedEnvironment, errors.New("no public-key credential capability"))
	}

	c.setState(StateRequestingChallenge)
	challenge, err := f.challenge(ctx, username)
	if err != nil {
		c.setState(StateFailed)
		log.LogDebugWithFields("passkey", "Challenge request failed", map[string]any{
			"flow":  f.name(),
			"error": err.Error(),
		})
		return nil, auth.E(auth.KindChallengeUnavailable, err)
	}

	c.setState(StatePerformingCeremony)
	response, err := f.perform(ctx, challenge)
	if err != nil {
		// The challenge is abandoned here, never reused: any retry starts
		// with a fresh one
		c.setState(StateFailed)
		return nil, auth.E(auth.KindCeremonyAborted, err)
	}

	c.setState(StateVerifying)
	result, err := f.verify(ctx, response)
	if err != nil {
		c.setState(StateFailed)
		return nil, auth.Classify(err, auth.KindVerificationFailed)
	}

	c.setState(StateSucceeded)
	log.LogInfoWithFields("passkey", "Ceremony succeeded", map[string]any{
		"flow":     f.name(),
		"username": result.User.Username,
	})
	return result, nil
}

type registrationFlow struct{ c *Ceremony }

func (f registrationFlow) name() string { return "registration" }

func (f registrationFlow) challenge(ctx context.Context, username string) (any, error) {
	return f.c.client.RegisterOptions(ctx, username, f.c.bearerToken)
}

func (f registrationFlow) perform(ctx context.Context, challenge any) (json.RawMessage, error) {
	return f.c.authenticator.Create(ctx, challenge.(*protocol.CredentialCreation))
}

func (f registrationFlow) verify(ctx context.Context, response json.RawMessage) (*api.LoginResult, error) {
	return f.c.client.RegisterVerify(ctx, response, f.c.bearerToken)
}

type authenticationFlow struct{ c *Ceremony }

func (f authenticationFlow) name() string { return "authentication" }

func (f authenticationFlow) challenge(ctx context.Context, username string) (any, error) {
	return f.c.client.LoginOptions(ctx, username)
}

func (f authenticationFlow) perform(ctx context.Context, challenge any) (json.RawMessage, error) {
	return f.c.authenticator.Get(ctx, challenge.(*protocol.CredentialAssertion))
}

func (f authenticationFlow) verify(ctx context.Context, response json.RawMessage) (*api.LoginResult, error) {
	return f.c.client.LoginVerify(ctx, response)
}
