package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/emailutil"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// ErrPromptDismissed is returned by a RegistrationPrompt when the user
// backs out of completing registration.
var ErrPromptDismissed = errors.New("registration prompt dismissed")

// CallbackParams are the query parameters the provider redirected back
// with. ErrorCode carries the provider's error parameter when the user
// denied the authorization request.
type CallbackParams struct {
	Code      string
	State     string
	ErrorCode string
}

// RegistrationSuggestion is what the backend learned about an unknown
// identity, offered to prefill the registration form.
type RegistrationSuggestion struct {
	Username string
	Email    string
	Name     string
}

// RegistrationInput is the user's completed registration form. Consent
// must be given before the registration token is spent.
type RegistrationInput struct {
	Username    string
	DisplayName string
	Email       string
	Consent     bool
}

// RegistrationPrompt collects registration details from the user inside
// the popup. Implementations block until the form is submitted or
// dismissed.
type RegistrationPrompt interface {
	Prompt(ctx context.Context, suggestion RegistrationSuggestion) (RegistrationInput, error)
}

// Callback is the popup window's half of the login protocol: it runs once
// on the provider redirect, exchanges the authorization code, and hands
// the result back across the window boundary.
type Callback struct {
	client *api.Client
	codec  StateCodec
	store  *session.Store
	prompt RegistrationPrompt
	origin string

	exchanged atomic.Bool
}

// NewCallback creates the callback runner. store is only used on the
// direct-navigation path, when the callback page was opened without a
// parent window.
func NewCallback(client *api.Client, codec StateCodec, store *session.Store, prompt RegistrationPrompt, origin string) *Callback {
	return &Callback{
		client: client,
		codec:  codec,
		store:  store,
		prompt: prompt,
		origin: origin,
	}
}

// Run processes the provider redirect. Authorization codes are single-use,
// so Run guards itself: a second invocation (the callback page re-rendering)
// is a no-op. With a parent window present the popup always ends closed,
// success or failure; opened directly, this window is the application and
// stays open — success navigates onward, failure navigates home.
func (c *Callback) Run(ctx context.Context, host PopupHost, params CallbackParams) {
	if !c.exchanged.CompareAndSwap(false, true) {
		log.LogDebug("Callback already ran, ignoring re-invocation")
		return
	}

	opener := host.Opener()
	if err := c.run(ctx, host, params); err != nil {
		kind := auth.KindOf(err)
		log.LogWarnWithFields("relay", "Popup callback failed", map[string]any{
			"error": err.Error(),
			"kind":  kind.String(),
		})
		host.ShowError(kind.UserMessage())
		if opener == nil {
			host.Navigate("/")
			return
		}
	}
	if opener != nil {
		host.Close()
	}
}

func (c *Callback) run(ctx context.Context, host PopupHost, params CallbackParams) error {
	if params.ErrorCode != "" {
		return auth.E(auth.KindCeremonyAborted, fmt.Errorf("provider returned error %q", params.ErrorCode))
	}
	if params.Code == "" {
		return auth.E(auth.KindVerificationFailed, errors.New("redirect carried no authorization code"))
	}

	state, err := c.codec.Verify(params.State)
	if err != nil {
		return auth.E(auth.KindVerificationFailed, fmt.Errorf("state validation failed: %w", err))
	}

	result, err := c.client.ExchangeAuthCode(ctx, state.Provider, params.Code)
	if err != nil {
		return auth.Classify(err, auth.KindVerificationFailed)
	}

	var user session.UserProfile
	var token string
	if result.NeedsRegistration() {
		user, token, err = c.completeRegistration(ctx, result)
		if err != nil {
			return err
		}
	} else {
		if result.User == nil || result.Token == "" {
			return auth.E(auth.KindServerError, errors.New("code exchange returned neither session nor registration branch"))
		}
		user, token = *result.User, result.Token
	}

	return c.finish(ctx, host, user, token)
}

// completeRegistration runs the unknown-identity sub-flow: the user
// chooses a username and acknowledges the terms, then the registration
// token (not the spent authorization code) buys the session.
func (c *Callback) completeRegistration(ctx context.Context, result *api.AuthCodeResult) (session.UserProfile, string, error) {
	if c.prompt == nil {
		return session.UserProfile{}, "", auth.E(auth.KindCeremonyAborted, errors.New("registration required but no prompt available"))
	}

	input, err := c.prompt.Prompt(ctx, RegistrationSuggestion{
		Username: result.SuggestedUsername,
		Email:    result.Email,
		Name:     result.Name,
	})
	if err != nil {
		return session.UserProfile{}, "", auth.E(auth.KindCeremonyAborted, err)
	}
	if !input.Consent {
		return session.UserProfile{}, "", auth.E(auth.KindCeremonyAborted, errors.New("terms not acknowledged"))
	}
	if input.Username == "" {
		return session.UserProfile{}, "", auth.E(auth.KindInvalidCredentials, errors.New("username is required"))
	}
	email := emailutil.Normalize(input.Email)
	if email != "" && !emailutil.Valid(email) {
		return session.UserProfile{}, "", auth.E(auth.KindInvalidCredentials, errors.New("email is malformed"))
	}

	registered, err := c.client.SocialRegister(ctx, api.SocialRegisterRequest{
		RegistrationToken: result.RegistrationToken,
		Username:          input.Username,
		DisplayName:       input.DisplayName,
		Email:             email,
	})
	if err != nil {
		return session.UserProfile{}, "", auth.Classify(err, auth.KindVerificationFailed)
	}
	return registered.User, registered.Token, nil
}

// finish hands the session back. With a parent window present the session
// crosses as a posted envelope addressed to our own origin, and the popup
// never touches the session store. Opened directly (no opener), the popup
// is the application: persist the session and navigate.
func (c *Callback) finish(ctx context.Context, host PopupHost, user session.UserProfile, token string) error {
	opener := host.Opener()
	if opener == nil {
		c.store.Set(ctx, session.New(user, token))
		host.Navigate(auth.DefaultRoute(user))
		return nil
	}

	envelope := Envelope{
		Type:  EnvelopeTypeLoginSuccess,
		User:  user,
		Token: token,
	}
	if err := opener.PostMessage(envelope, c.origin); err != nil {
		return auth.E(auth.KindUnknown, fmt.Errorf("failed to post completion envelope: %w", err))
	}

	log.LogInfoWithFields("relay", "Posted login envelope to opener", map[string]any{
		"username": user.Username,
	})
	return nil
}
