package relay

import "fmt"

// popup dimensions matching the original deployment's login window
const (
	popupWidth  = 500
	popupHeight = 700
	popupName   = "fesnav-login"
)

// Window is the parent's handle to a spawned popup
type Window interface {
	// Closed reports whether the user has closed the window. The parent
	// polls this; a closed popup that never posted is the only signal the
	// parent will ever get for an abandoned login.
	Closed() bool

	// Close closes the window. Closing an already-closed window is a no-op.
	Close()
}

// WindowFactory opens popup windows. Implementations wrap whatever host
// platform the client runs on; tests use an in-process fake.
type WindowFactory interface {
	Open(url, name, features string) (Window, error)
}

// OpenerPort is the popup's handle back to the window that spawned it.
// PostMessage must deliver only when the receiver's origin equals
// targetOrigin; the relay never posts to "*".
type OpenerPort interface {
	PostMessage(envelope Envelope, targetOrigin string) error
}

// PopupHost is what the callback route can do with its own window
type PopupHost interface {
	// Opener returns the port to the spawning window, nil when the user
	// reached the callback directly (deep link through the provider).
	Opener() OpenerPort

	// Close closes this window
	Close()

	// Navigate performs an application navigation in this window. Only the
	// no-opener path uses it; a popup never navigates, it posts and closes.
	Navigate(target string)

	// ShowError surfaces a user-facing failure message before the window
	// is closed or navigated away.
	ShowError(message string)
}

func featureString() string {
	return fmt.Sprintf("width=%d,height=%d,menubar=no,toolbar=no,location=no,status=no", popupWidth, popupHeight)
}
