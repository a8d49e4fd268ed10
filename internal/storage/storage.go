package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no session blob has been persisted
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a persisted blob exists but cannot be read
// (wrong encryption key, truncated file). Callers treat this the same as
// absent, it is separated only so it can be logged.
var ErrCorrupt = errors.New("session data corrupt")

// Store persists the serialized session between process runs. This is the
// Go rendering of the browser's persisted key-value store: one opaque blob,
// load at startup, save on every session change, clear on logout.
type Store interface {
	// Load returns the persisted blob, ErrNotFound if nothing was saved,
	// or ErrCorrupt if the blob exists but is unreadable.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the persisted blob.
	Save(ctx context.Context, data []byte) error

	// Clear removes the persisted blob. Clearing an empty store is a no-op.
	Clear(ctx context.Context) error
}
