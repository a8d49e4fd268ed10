package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/crypto"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// fakeBackend stands in for the festival-nav API: password login, passkey
// ceremonies with single-use challenges, and the social login exchange.
type fakeBackend struct {
	mu          sync.Mutex
	challenges  map[string]string // outstanding challenge -> username
	credentials map[string]int    // username -> registered passkey count
	regTokens   map[string]bool   // outstanding registration tokens
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		challenges:  make(map[string]string),
		credentials: make(map[string]int),
		regTokens:   make(map[string]bool),
	}
}

func (b *fakeBackend) issueChallenge(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	challenge, err := crypto.GenerateSecureToken()
	if err != nil {
		panic(err)
	}
	// keyed by the wire form the authenticator echoes back
	b.challenges[protocol.URLEncodedBase64(challenge).String()] = username
	return challenge
}

// consumeChallenge returns the username the challenge was issued for.
// Challenges are single use; a replay fails.
func (b *fakeBackend) consumeChallenge(challenge string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	username, ok := b.challenges[challenge]
	if ok {
		delete(b.challenges, challenge)
	}
	return username, ok
}

func (b *fakeBackend) credentialCount(username string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credentials[username]
}

func (b *fakeBackend) profile(username string) session.UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return session.UserProfile{
		ID:           1,
		Username:     username,
		IsAdmin:      username == "admin",
		PasskeyCount: b.credentials[username],
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (b *fakeBackend) writeLogin(w http.ResponseWriter, username, token string) {
	json.NewEncoder(w).Encode(map[string]any{
		"token": token,
		"user":  b.profile(username),
	})
}

// ceremonyResponse is what the test authenticator produces: the challenge
// echoed back, which the fake backend treats as a valid signature.
type ceremonyResponse struct {
	Challenge string `json:"challenge"`
}

func (b *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "alice" || body.Password != "correct-horse" {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		b.writeLogin(w, body.Username, "tok-password")
	})

	mux.HandleFunc("POST /register/options", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		var creation protocol.CredentialCreation
		creation.Response.Challenge = protocol.URLEncodedBase64(b.issueChallenge(body.Username))
		json.NewEncoder(w).Encode(creation)
	})

	mux.HandleFunc("POST /register/verify", func(w http.ResponseWriter, r *http.Request) {
		var resp ceremonyResponse
		json.NewDecoder(r.Body).Decode(&resp)
		username, ok := b.consumeChallenge(resp.Challenge)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown or consumed challenge")
			return
		}
		b.mu.Lock()
		b.credentials[username]++
		b.mu.Unlock()
		b.writeLogin(w, username, "tok-passkey-reg")
	})

	mux.HandleFunc("POST /login/options", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		var assertion protocol.CredentialAssertion
		assertion.Response.Challenge = protocol.URLEncodedBase64(b.issueChallenge(body.Username))
		json.NewEncoder(w).Encode(assertion)
	})

	mux.HandleFunc("POST /login/verify", func(w http.ResponseWriter, r *http.Request) {
		var resp ceremonyResponse
		json.NewDecoder(r.Body).Decode(&resp)
		username, ok := b.consumeChallenge(resp.Challenge)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown or consumed challenge")
			return
		}
		if b.credentialCount(username) == 0 {
			writeError(w, http.StatusUnauthorized, "no credential registered")
			return
		}
		b.writeLogin(w, username, "tok-passkey")
	})

	mux.HandleFunc("GET /auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"url": "https://idp.example.com/authorize?client_id=server-side",
		})
	})

	mux.HandleFunc("POST /auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"code"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		switch body.Code {
		case "code-carol":
			b.writeLogin(w, "carol", "t1")
		case "code-stranger":
			b.mu.Lock()
			b.regTokens["reg-tok-1"] = true
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{
				"action":             "register",
				"registration_token": "reg-tok-1",
				"suggested_username": "stranger",
				"email":              "stranger@example.com",
			})
		default:
			writeError(w, http.StatusUnauthorized, "invalid or consumed code")
		}
	})

	mux.HandleFunc("POST /auth/social-register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RegistrationToken string `json:"registration_token"`
			Username          string `json:"username"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		valid := b.regTokens[body.RegistrationToken]
		delete(b.regTokens, body.RegistrationToken)
		b.mu.Unlock()
		if !valid {
			writeError(w, http.StatusUnauthorized, "invalid registration token")
			return
		}
		b.writeLogin(w, body.Username, "tok-registered")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
