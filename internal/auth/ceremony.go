package auth

import (
	"context"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// Method names an authentication ceremony kind
type Method string

const (
	MethodPassword Method = "password"
	MethodPasskey  Method = "passkey"
	MethodOAuth    Method = "oauth"
)

// Ceremony is the capability every authentication method implements. The
// orchestrator selects one at runtime; the UI layer never branches on the
// method name. Attempt either produces a full session or a *Error from the
// taxonomy in this package; it never writes to the session store itself,
// that write-through belongs to the orchestrator alone.
type Ceremony interface {
	Method() Method
	Attempt(ctx context.Context, identifier string) (*session.Session, error)
}
