package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/storage"
)

// Store is the single source of truth for "who is logged in". Every part of
// the application that renders identity-dependent state reads from here,
// either via Current or a subscription; nothing else holds a writable copy.
//
// Writes fully complete (persist + publish) before Set or Clear returns, so
// no subscriber ever observes a half-applied session. Persistence failures
// are logged and swallowed: the in-memory session stays authoritative for
// this process, a full storage quota must not log the user out.
type Store struct {
	backend storage.Store

	mu      sync.RWMutex
	current *Session
	subs    map[int]func(*Session)
	nextSub int
}

// NewStore creates a session store backed by the given persistence layer
func NewStore(backend storage.Store) *Store {
	return &Store{
		backend: backend,
		subs:    make(map[int]func(*Session)),
	}
}

// Load reads the persisted session at startup. Absent, malformed, or
// expired payloads all come back as nil: a broken session file is never an
// error state shown to the user, it is just "not logged in".
func (s *Store) Load(ctx context.Context) *Session {
	data, err := s.backend.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrCorrupt) {
			log.LogWarnWithFields("session", "Failed to load persisted session", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.LogWarnWithFields("session", "Persisted session malformed, discarding", map[string]any{
			"error": err.Error(),
		})
		if err := s.backend.Clear(ctx); err != nil {
			log.LogWarn("Failed to discard malformed session: %v", err)
		}
		return nil
	}
	if sess.BearerToken == "" {
		return nil
	}
	if sess.Expired(time.Now()) {
		log.LogDebugWithFields("session", "Persisted session expired, discarding", map[string]any{
			"username": sess.User.Username,
		})
		if err := s.backend.Clear(ctx); err != nil {
			log.LogWarn("Failed to discard expired session: %v", err)
		}
		return nil
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	s.publish(&sess)
	return &sess
}

// Set replaces the current session. The new session is persisted and
// published to all subscribers before Set returns.
func (s *Store) Set(ctx context.Context, sess *Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		log.LogError("Failed to serialize session: %v", err)
	} else if err := s.backend.Save(ctx, data); err != nil {
		log.LogWarnWithFields("session", "Failed to persist session, keeping in memory", map[string]any{
			"username": sess.User.Username,
			"error":    err.Error(),
		})
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.publish(sess)
}

// Clear removes the session. Clearing an already-empty store is a no-op.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Clear(ctx); err != nil {
		log.LogWarn("Failed to clear persisted session: %v", err)
	}

	s.mu.Lock()
	wasEmpty := s.current == nil
	s.current = nil
	s.mu.Unlock()

	if !wasEmpty {
		s.publish(nil)
	}
}

// Current returns the session, or nil when logged out
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers a callback invoked synchronously on every session
// change, with the new session or nil on logout. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn func(*Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(sess *Session) {
	s.mu.RLock()
	callbacks := make([]func(*Session), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.RUnlock()

	for _, fn := range callbacks {
		fn(sess)
	}
}
