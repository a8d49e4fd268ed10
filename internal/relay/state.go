package relay

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/crypto"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/idp"
)

// stateExpiry bounds how long an authorization round trip may take before
// the callback refuses the returning state
const stateExpiry = 10 * time.Minute

// State is the payload signed into the OAuth state parameter. The callback
// uses it to confirm the provider redirect belongs to a flow this client
// started, and to recover which provider and action started it.
type State struct {
	Provider string     `json:"provider"`
	Action   idp.Action `json:"action"`
	WindowID string     `json:"window_id"`
}

// StateCodec signs and verifies relay state parameters
type StateCodec struct {
	signer crypto.TokenSigner
}

// NewStateCodec creates a codec from the signing key
func NewStateCodec(signingKey []byte) StateCodec {
	return StateCodec{signer: crypto.NewTokenSigner(signingKey, stateExpiry)}
}

// Issue signs a fresh state for one relay attempt
func (c StateCodec) Issue(provider string, action idp.Action) (string, State, error) {
	state := State{
		Provider: provider,
		Action:   action,
		WindowID: uuid.NewString(),
	}
	signed, err := c.signer.Sign(state)
	if err != nil {
		return "", State{}, fmt.Errorf("failed to sign relay state: %w", err)
	}
	return signed, state, nil
}

// Verify checks a returning state parameter
func (c StateCodec) Verify(raw string) (State, error) {
	var state State
	if err := c.signer.Verify(raw, &state); err != nil {
		return State{}, fmt.Errorf("invalid relay state: %w", err)
	}
	return state, nil
}
