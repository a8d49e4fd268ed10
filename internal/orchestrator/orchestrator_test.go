package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/idp"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/relay"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/storage"
)

const testOrigin = "https://fesnav.example.com"

// blockingAuthenticator holds the passkey prompt open until released,
// standing in for a user staring at an OS dialog.
type blockingAuthenticator struct {
	release chan struct{}
}

func (a *blockingAuthenticator) Available() bool { return true }

func (a *blockingAuthenticator) Create(ctx context.Context, _ *protocol.CredentialCreation) (json.RawMessage, error) {
	<-a.release
	return json.RawMessage(`{"id":"cred-1"}`), nil
}

func (a *blockingAuthenticator) Get(ctx context.Context, _ *protocol.CredentialAssertion) (json.RawMessage, error) {
	<-a.release
	return json.RawMessage(`{"id":"cred-1"}`), nil
}

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

type fakeFactory struct {
	mu  sync.Mutex
	win *fakeWindow
}

func (f *fakeFactory) Open(url, name, features string) (relay.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.win = &fakeWindow{}
	return f.win, nil
}

type fakeProvider struct{}

func (fakeProvider) Name() string { return "google" }

func (fakeProvider) AuthURL(_ context.Context, state string, _ idp.Action) (string, error) {
	return "https://idp.example.com/authorize?state=" + state, nil
}

// loginBackend answers the password and passkey login endpoints
func loginBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Username != "alice" || body.Password != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-password",
			"user":  session.UserProfile{ID: 1, Username: "alice"},
		})
	})

	mux.HandleFunc("POST /login/options", func(w http.ResponseWriter, r *http.Request) {
		creation := protocol.CredentialAssertion{}
		creation.Response.Challenge = protocol.URLEncodedBase64("test-challenge")
		json.NewEncoder(w).Encode(creation)
	})

	mux.HandleFunc("POST /login/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-passkey",
			"user":  session.UserProfile{ID: 1, Username: "alice", PasskeyCount: 1},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	orch    *Orchestrator
	store   *session.Store
	factory *fakeFactory
	relay   *relay.Relay
	auth    *blockingAuthenticator

	mu        sync.Mutex
	navigated []string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	srv := loginBackend(t)
	client := api.NewClient(srv.URL)
	store := session.NewStore(storage.NewMemoryStore())

	h := &harness{
		store:   store,
		factory: &fakeFactory{},
		auth:    &blockingAuthenticator{release: make(chan struct{})},
	}
	h.relay = relay.New(testOrigin, store, h.factory, relay.NewStateCodec([]byte("orchestrator-test-key")),
		relay.WithPollInterval(5*time.Millisecond))

	opts = append([]Option{WithNavigate(func(target string) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.navigated = append(h.navigated, target)
	})}, opts...)

	h.orch = New(store, client, h.auth, h.relay, map[string]idp.Provider{"google": fakeProvider{}}, opts...)
	return h
}

func (h *harness) routes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigated...)
}

func TestOrchestratorPhases(t *testing.T) {
	t.Run("identifier moves flow to method selection", func(t *testing.T) {
		h := newHarness(t)
		assert.Equal(t, PhaseCollectingIdentifier, h.orch.Phase())

		require.NoError(t, h.orch.SetIdentifier("alice"))
		assert.Equal(t, PhaseMethodSelected, h.orch.Phase())
	})

	t.Run("password and passkey need an identifier first", func(t *testing.T) {
		h := newHarness(t)
		assert.ErrorIs(t, h.orch.SelectMethod(auth.MethodPassword), ErrIdentifierRequired)
		assert.ErrorIs(t, h.orch.SelectMethod(auth.MethodPasskey), ErrIdentifierRequired)
		assert.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))
	})

	t.Run("begin requires a matching selected method", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodPasskey))

		assert.ErrorIs(t, h.orch.SubmitPassword(context.Background(), "pw"), ErrMethodMismatch)
	})

	t.Run("reset returns to collecting", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		h.orch.Reset()
		assert.Equal(t, PhaseCollectingIdentifier, h.orch.Phase())
		assert.Empty(t, h.orch.Identifier())
	})
}

func TestOrchestratorPassword(t *testing.T) {
	t.Run("success writes session and redirects", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))

		assert.Equal(t, PhaseCompleted, h.orch.Phase())
		require.NotNil(t, h.store.Current())
		assert.Equal(t, "tok-password", h.store.Current().BearerToken)
		assert.Equal(t, []string{"/festivals"}, h.routes())
	})

	t.Run("failure returns to method selection with identifier retained", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "wrongpass"))

		assert.Equal(t, PhaseMethodSelected, h.orch.Phase())
		assert.Equal(t, "alice", h.orch.Identifier())
		assert.Equal(t, auth.KindInvalidCredentials.UserMessage(), h.orch.LastMessage())
		assert.Nil(t, h.store.Current())
		assert.Empty(t, h.routes())
	})

	t.Run("retry after failure succeeds", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "wrongpass"))
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))

		assert.Equal(t, PhaseCompleted, h.orch.Phase())
		assert.Empty(t, h.orch.LastMessage())
	})

	t.Run("success callback replaces redirect", func(t *testing.T) {
		var got *session.Session
		h := newHarness(t, WithSuccessCallback(func(s *session.Session) { got = s }))
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))

		require.NotNil(t, got)
		assert.Equal(t, "alice", got.User.Username)
		assert.Empty(t, h.routes())
	})
}

func TestOrchestratorStaleResumption(t *testing.T) {
	// Start a passkey ceremony that hangs at the authenticator prompt,
	// switch to password and succeed, then let the abandoned passkey
	// ceremony resolve. The session must stay what the password ceremony
	// produced.
	h := newHarness(t)
	require.NoError(t, h.orch.SetIdentifier("alice"))
	require.NoError(t, h.orch.SelectMethod(auth.MethodPasskey))

	passkeyDone := make(chan struct{})
	go func() {
		defer close(passkeyDone)
		_ = h.orch.BeginPasskeyLogin(context.Background())
	}()

	require.Eventually(t, func() bool {
		return h.orch.Phase() == PhaseInProgress
	}, time.Second, time.Millisecond)

	require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
	require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))
	require.Equal(t, PhaseCompleted, h.orch.Phase())

	close(h.auth.release)
	select {
	case <-passkeyDone:
	case <-time.After(time.Second):
		t.Fatal("abandoned passkey ceremony never resolved")
	}

	require.NotNil(t, h.store.Current())
	assert.Equal(t, "tok-password", h.store.Current().BearerToken)
	assert.Equal(t, PhaseCompleted, h.orch.Phase())
	assert.Empty(t, h.orch.LastMessage())
}

func TestOrchestratorOAuth(t *testing.T) {
	envelope := relay.Envelope{
		Type:  relay.EnvelopeTypeLoginSuccess,
		User:  session.UserProfile{ID: 3, Username: "carol"},
		Token: "tok-oauth",
	}

	t.Run("popup delivery completes the flow", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))
		require.NoError(t, h.orch.BeginOAuth(context.Background(), "google", idp.ActionLogin))
		require.True(t, h.relay.Active())

		h.relay.Deliver(relay.Message{Origin: testOrigin, Envelope: envelope})

		assert.Equal(t, PhaseCompleted, h.orch.Phase())
		require.NotNil(t, h.store.Current())
		assert.Equal(t, "tok-oauth", h.store.Current().BearerToken)
		assert.Equal(t, []string{"/festivals"}, h.routes())
		assert.True(t, h.factory.win.Closed())
	})

	t.Run("abandoned popup returns to method selection", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))
		require.NoError(t, h.orch.BeginOAuth(context.Background(), "google", idp.ActionLogin))

		h.factory.win.Close()

		require.Eventually(t, func() bool {
			return h.orch.Phase() == PhaseMethodSelected
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, auth.KindCeremonyAborted.UserMessage(), h.orch.LastMessage())
		assert.Nil(t, h.store.Current())
	})

	t.Run("switching methods blocks a late popup envelope", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SetIdentifier("alice"))
		require.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))
		require.NoError(t, h.orch.BeginOAuth(context.Background(), "google", idp.ActionLogin))

		// the user gives up on the popup and logs in with a password instead
		require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
		assert.True(t, h.factory.win.Closed())
		require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))
		require.Equal(t, PhaseCompleted, h.orch.Phase())

		// the abandoned popup's envelope arrives afterwards; it must not
		// touch the session the password ceremony established
		h.relay.Deliver(relay.Message{Origin: testOrigin, Envelope: envelope})

		require.NotNil(t, h.store.Current())
		assert.Equal(t, "tok-password", h.store.Current().BearerToken)
		assert.Equal(t, "alice", h.store.Current().User.Username)
	})

	t.Run("caller-cancelled context returns to method selection", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, h.orch.BeginOAuth(ctx, "google", idp.ActionLogin))

		cancel()

		require.Eventually(t, func() bool {
			return h.orch.Phase() == PhaseMethodSelected
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, auth.KindCeremonyAborted.UserMessage(), h.orch.LastMessage())
		assert.True(t, h.factory.win.Closed())
		assert.Nil(t, h.store.Current())
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.orch.SelectMethod(auth.MethodOAuth))
		assert.ErrorIs(t, h.orch.BeginOAuth(context.Background(), "github", idp.ActionLogin), ErrUnknownProvider)
	})
}

func TestOrchestratorLogout(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.SetIdentifier("alice"))
	require.NoError(t, h.orch.SelectMethod(auth.MethodPassword))
	require.NoError(t, h.orch.SubmitPassword(context.Background(), "correct-horse"))
	require.NotNil(t, h.store.Current())

	h.orch.Logout(context.Background())
	assert.Nil(t, h.store.Current())
	assert.Equal(t, PhaseCollectingIdentifier, h.orch.Phase())

	// clearing an already-empty store is a no-op
	h.orch.Logout(context.Background())
	assert.Nil(t, h.store.Current())
}
