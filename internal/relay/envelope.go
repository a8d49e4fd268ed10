package relay

import (
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// EnvelopeTypeLoginSuccess is the only envelope type the relay carries
const EnvelopeTypeLoginSuccess = "LOGIN_SUCCESS"

// Envelope is the structured message a popup posts to its opener once a
// third-party login completes. The wire shape matches the backend's
// {token, user} vocabulary.
type Envelope struct {
	Type  string              `json:"type"`
	User  session.UserProfile `json:"user"`
	Token string              `json:"token"`
}

// Message is an envelope as delivered across the window boundary, stamped
// with the sender's origin by the messaging channel. The origin is set by
// the channel, not the sender, which is what makes checking it meaningful.
type Message struct {
	Origin   string
	Envelope Envelope
}
