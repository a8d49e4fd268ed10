// Package orchestrator presents the three login ceremonies (password,
// passkey, third-party popup) as one state machine. The UI layer drives
// this and nothing else; which ceremony runs underneath is a tagged
// choice, not a branch scattered through rendering code.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/idp"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/passkey"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/relay"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// Phase is where the login flow currently stands. Failures do not get
// their own phase: a failed attempt returns to PhaseMethodSelected with
// the identifier retained, so the user re-tries without re-typing.
type Phase int

const (
	PhaseCollectingIdentifier Phase = iota
	PhaseMethodSelected
	PhaseInProgress
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseCollectingIdentifier:
		return "collecting_identifier"
	case PhaseMethodSelected:
		return "method_selected"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	ErrIdentifierRequired = errors.New("identifier is required before choosing this method")
	ErrWrongPhase         = errors.New("operation not valid in current phase")
	ErrMethodMismatch     = errors.New("selected method does not match this operation")
	ErrUnknownProvider    = errors.New("unknown identity provider")
)

// Orchestrator owns the login flow. All state transitions happen under one
// mutex; ceremony network work runs outside it and re-enters through
// resolve, where a generation check discards resumptions the user has
// since abandoned.
type Orchestrator struct {
	store         *session.Store
	client        *api.Client
	authenticator passkey.Authenticator
	relay         *relay.Relay
	providers     map[string]idp.Provider
	navigate      func(target string)
	onSuccess     func(*session.Session)

	mu         sync.Mutex
	phase      Phase
	method     auth.Method
	identifier string
	lastErr    *auth.Error
	generation uint64
	cancel     context.CancelFunc
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNavigate sets the navigation hook used by the default redirect
// policy when no success callback is configured.
func WithNavigate(navigate func(target string)) Option {
	return func(o *Orchestrator) { o.navigate = navigate }
}

// WithSuccessCallback replaces the default redirect with a caller-supplied
// completion callback. Exactly one of the two runs on success.
func WithSuccessCallback(fn func(*session.Session)) Option {
	return func(o *Orchestrator) { o.onSuccess = fn }
}

// New creates an orchestrator over the shared session store
func New(store *session.Store, client *api.Client, authenticator passkey.Authenticator, popupRelay *relay.Relay, providers map[string]idp.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		client:        client,
		authenticator: authenticator,
		relay:         popupRelay,
		providers:     providers,
		phase:         PhaseCollectingIdentifier,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Identifier returns the identifier collected so far
func (o *Orchestrator) Identifier() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identifier
}

// Method returns the currently selected method
func (o *Orchestrator) Method() auth.Method {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method
}

// LastMessage returns the user-facing message for the most recent failure,
// or "" when the last attempt did not fail. Messages come from the error
// taxonomy; raw errors never reach the user.
func (o *Orchestrator) LastMessage() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastErr == nil {
		return ""
	}
	return o.lastErr.Kind.UserMessage()
}

// SetIdentifier records who is trying to log in. Valid while collecting or
// after a method was chosen; changing it mid-ceremony requires switching
// methods first.
func (o *Orchestrator) SetIdentifier(identifier string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseInProgress || o.phase == PhaseCompleted {
		return ErrWrongPhase
	}
	o.identifier = identifier
	if o.phase == PhaseCollectingIdentifier && identifier != "" {
		o.phase = PhaseMethodSelected
	}
	return nil
}

// SelectMethod chooses which ceremony will run. Selecting a method — even
// re-selecting the current one — abandons any ceremony in flight: its
// challenge is discarded and its eventual result will be ignored.
func (o *Orchestrator) SelectMethod(method auth.Method) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == PhaseCompleted {
		return ErrWrongPhase
	}
	// third-party login learns the identity from the provider
	if o.identifier == "" && method != auth.MethodOAuth {
		return ErrIdentifierRequired
	}

	o.abandonLocked()
	o.method = method
	o.phase = PhaseMethodSelected
	o.lastErr = nil
	return nil
}

// abandonLocked invalidates whatever attempt may be in flight. Caller
// holds o.mu. The relay is cancelled synchronously so an envelope from the
// abandoned popup can no longer reach the session store, not just the
// phase machine.
func (o *Orchestrator) abandonLocked() {
	o.generation++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.relay != nil {
		o.relay.Cancel()
	}
}

// Reset returns to collecting the identifier, discarding any attempt in
// flight and the identifier itself.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandonLocked()
	o.phase = PhaseCollectingIdentifier
	o.method = ""
	o.identifier = ""
	o.lastErr = nil
}

// begin moves to PhaseInProgress and hands back the attempt's generation
// and context. Fails unless a matching method is selected.
func (o *Orchestrator) begin(ctx context.Context, method auth.Method) (uint64, context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseMethodSelected {
		return 0, nil, "", ErrWrongPhase
	}
	if o.method != method {
		return 0, nil, "", ErrMethodMismatch
	}

	o.generation++
	gen := o.generation
	attemptCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.phase = PhaseInProgress
	o.lastErr = nil
	return gen, attemptCtx, o.identifier, nil
}

// SubmitPassword runs the password ceremony with the collected identifier.
// It blocks for the single network round trip; the result is discarded if
// the user switched methods while it was in flight.
func (o *Orchestrator) SubmitPassword(ctx context.Context, secret string) error {
	gen, attemptCtx, identifier, err := o.begin(ctx, auth.MethodPassword)
	if err != nil {
		return err
	}
	sess, err := auth.NewPasswordCeremony(o.client, secret).Attempt(attemptCtx, identifier)
	o.resolve(gen, sess, err, false)
	return nil
}

// BeginPasskeyLogin runs the passkey authentication ceremony
func (o *Orchestrator) BeginPasskeyLogin(ctx context.Context) error {
	return o.runPasskey(ctx, func(c *passkey.Ceremony, attemptCtx context.Context, identifier string) (*session.Session, error) {
		return c.Authenticate(attemptCtx, identifier)
	})
}

// BeginPasskeyRegistration runs the passkey registration ceremony. Running
// it again for the same identifier adds a second credential.
func (o *Orchestrator) BeginPasskeyRegistration(ctx context.Context) error {
	return o.runPasskey(ctx, func(c *passkey.Ceremony, attemptCtx context.Context, identifier string) (*session.Session, error) {
		return c.Register(attemptCtx, identifier)
	})
}

func (o *Orchestrator) runPasskey(ctx context.Context, run func(*passkey.Ceremony, context.Context, string) (*session.Session, error)) error {
	gen, attemptCtx, identifier, err := o.begin(ctx, auth.MethodPasskey)
	if err != nil {
		return err
	}
	sess, err := run(passkey.New(o.client, o.authenticator), attemptCtx, identifier)
	o.resolve(gen, sess, err, false)
	return nil
}

// BeginOAuth opens the provider popup. The attempt completes (or is
// abandoned) asynchronously through the relay; BeginOAuth returns once the
// popup is open.
func (o *Orchestrator) BeginOAuth(ctx context.Context, providerName string, action idp.Action) error {
	provider, ok := o.providers[providerName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	gen, attemptCtx, _, err := o.begin(ctx, auth.MethodOAuth)
	if err != nil {
		return err
	}

	err = o.relay.Start(attemptCtx, provider, action,
		func(sess *session.Session) {
			// the relay already applied the session on delivery
			o.resolve(gen, sess, nil, true)
		},
		func() {
			o.resolve(gen, nil, auth.E(auth.KindCeremonyAborted, errors.New("login window closed")), false)
		},
	)
	if err != nil {
		o.resolve(gen, nil, auth.Classify(err, auth.KindUnknown), false)
	}
	return nil
}

// resolve applies a ceremony outcome. A resumption whose generation no
// longer matches belongs to an abandoned attempt and changes nothing.
func (o *Orchestrator) resolve(gen uint64, sess *session.Session, err error, applied bool) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		log.LogDebugWithFields("orchestrator", "Discarded stale ceremony resumption", map[string]any{
			"generation": gen,
		})
		return
	}
	o.cancel = nil

	if err != nil {
		classified := auth.Classify(err, auth.KindUnknown)
		o.lastErr = classified
		o.phase = PhaseMethodSelected
		method := o.method
		o.mu.Unlock()

		log.LogWarnWithFields("orchestrator", "Login attempt failed", map[string]any{
			"method": string(method),
			"kind":   classified.Kind.String(),
			"error":  classified.Error(),
		})
		return
	}

	o.phase = PhaseCompleted
	o.lastErr = nil
	o.mu.Unlock()

	if !applied {
		o.store.Set(context.Background(), sess)
	}

	log.LogInfoWithFields("orchestrator", "Login completed", map[string]any{
		"username": sess.User.Username,
		"is_admin": sess.User.IsAdmin,
	})

	if o.onSuccess != nil {
		o.onSuccess(sess)
	} else if o.navigate != nil {
		o.navigate(auth.DefaultRoute(sess.User))
	}
}

// Logout clears the session. Safe to call with no session established.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.store.Clear(ctx)
	o.mu.Lock()
	o.abandonLocked()
	o.phase = PhaseCollectingIdentifier
	o.method = ""
	o.identifier = ""
	o.lastErr = nil
	o.mu.Unlock()
	log.LogInfoWithFields("orchestrator", "Logged out", map[string]any{})
}
