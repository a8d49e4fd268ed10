package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/ioutil"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// ErrNoResponse wraps transport-level failures where the backend never
// answered (DNS, refused connection, timeout).
var ErrNoResponse = errors.New("no response from backend")

// Error is a non-2xx backend response with the backend's error message when
// one was provided.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// IsServerError reports whether the response was a 5xx
func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500
}

// Client talks to the festival-nav backend's auth endpoints. It performs no
// retries; each method is exactly one round trip.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. baseURL is the API root, e.g.
// "https://fesnav.example.com/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTP creates a backend client with a caller-supplied
// http.Client, used by tests and by hosts that need custom transports.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// LoginResult is the {token, user} pair every successful authentication
// path ends with.
type LoginResult struct {
	Token string              `json:"token"`
	User  session.UserProfile `json:"user"`
}

// Login performs password authentication. One network call, no client-side
// validation beyond non-emptiness; strength rules live server-side.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.postJSON(ctx, "/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterOptions fetches a fresh registration challenge for username. The
// bearer token is sent when present so a logged-in user can add a passkey
// to their own account.
func (c *Client) RegisterOptions(ctx context.Context, username, bearerToken string) (*protocol.CredentialCreation, error) {
	var options protocol.CredentialCreation
	err := c.postJSON(ctx, "/register/options", bearerToken, map[string]string{
		"username": username,
	}, &options)
	if err != nil {
		return nil, err
	}
	return &options, nil
}

// RegisterVerify submits the authenticator's creation response for
// server-side verification.
func (c *Client) RegisterVerify(ctx context.Context, ceremonyResponse json.RawMessage, bearerToken string) (*LoginResult, error) {
	var result LoginResult
	if err := c.postRaw(ctx, "/register/verify", bearerToken, ceremonyResponse, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LoginOptions fetches a fresh authentication challenge for username
func (c *Client) LoginOptions(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	var options protocol.CredentialAssertion
	err := c.postJSON(ctx, "/login/options", "", map[string]string{
		"username": username,
	}, &options)
	if err != nil {
		return nil, err
	}
	return &options, nil
}

// LoginVerify submits the authenticator's assertion for server-side
// verification.
func (c *Client) LoginVerify(ctx context.Context, ceremonyResponse json.RawMessage) (*LoginResult, error) {
	var result LoginResult
	if err := c.postRaw(ctx, "/login/verify", "", ceremonyResponse, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AuthURL asks the backend for the provider's authorization URL. Providers
// whose client credentials live only server-side (LINE in the original
// deployment) are opened through this.
func (c *Client) AuthURL(ctx context.Context, provider string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/"+provider, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	if payload.URL == "" {
		return "", &Error{StatusCode: http.StatusOK, Message: "backend returned empty authorization url"}
	}
	return payload.URL, nil
}

// AuthCodeResult is the union the code-exchange endpoint answers with:
// either a completed login, or a registration branch when the external
// identity is not linked to any local account.
type AuthCodeResult struct {
	Token string               `json:"token,omitempty"`
	User  *session.UserProfile `json:"user,omitempty"`

	Action            string `json:"action,omitempty"`
	RegistrationToken string `json:"registration_token,omitempty"`
	SuggestedUsername string `json:"suggested_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
}

// NeedsRegistration reports whether the backend wants the registration
// completion sub-flow instead of issuing a session.
func (r *AuthCodeResult) NeedsRegistration() bool {
	return r.Action == "register"
}

// ExchangeAuthCode trades a provider authorization code for a session or a
// registration token. Authorization codes are single-use; callers guard
// against invoking this twice for the same code.
func (c *Client) ExchangeAuthCode(ctx context.Context, provider, code string) (*AuthCodeResult, error) {
	var result AuthCodeResult
	err := c.postJSON(ctx, "/auth/"+provider, "", map[string]string{
		"code": code,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SocialRegisterRequest completes a social login for a previously unknown
// identity. The registration token came from ExchangeAuthCode; the original
// authorization code is already consumed and never resent.
type SocialRegisterRequest struct {
	RegistrationToken string `json:"registration_token"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name,omitempty"`
	Email             string `json:"email,omitempty"`
}

// SocialRegister exchanges a registration token for the final session
func (c *Client) SocialRegister(ctx context.Context, req SocialRegisterRequest) (*LoginResult, error) {
	var result LoginResult
	if err := c.postJSON(ctx, "/auth/social-register", "", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path, bearerToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.postRaw(ctx, path, bearerToken, payload, out)
}

func (c *Client) postRaw(ctx context.Context, path, bearerToken string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, 1<<20)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Message = errBody.Error
		}
		log.LogDebugWithFields("api", "Backend request failed", map[string]any{
			"path":   req.URL.Path,
			"status": resp.StatusCode,
			"body":   ioutil.Snippet(body, 256),
		})
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
