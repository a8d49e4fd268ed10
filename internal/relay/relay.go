package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/idp"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
)

// defaultPollInterval is how often the parent checks popup liveness
const defaultPollInterval = 500 * time.Millisecond

// Relay is the parent window's half of the popup login protocol. It opens
// the provider authorization window, listens for the completion envelope,
// and applies the resulting session. The popup and the parent run
// independently; the single posted envelope is their only synchronization
// point, and the parent tolerates never receiving one.
type Relay struct {
	origin       string
	store        *session.Store
	windows      WindowFactory
	codec        StateCodec
	navigate     func(target string)
	pollInterval time.Duration

	openGroup singleflight.Group

	mu          sync.Mutex
	popup       Window
	completed   bool
	onComplete  func(*session.Session)
	onAbandoned func()
	stopWatch   context.CancelFunc
}

// Option configures a Relay
type Option func(*Relay)

// WithPollInterval overrides popup liveness polling, used by tests
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.pollInterval = d }
}

// WithNavigate supplies the default-navigation hook used when no
// completion callback is given.
func WithNavigate(navigate func(target string)) Option {
	return func(r *Relay) { r.navigate = navigate }
}

// New creates a relay. origin is this application's own origin; envelopes
// from any other origin are discarded.
func New(origin string, store *session.Store, windows WindowFactory, codec StateCodec, opts ...Option) *Relay {
	r := &Relay{
		origin:       origin,
		store:        store,
		windows:      windows,
		codec:        codec,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the provider's authorization window. If a popup from a
// previous Start is still open, Start is a no-op: one login popup at a
// time, never two. onComplete (optional) runs after the session is
// applied; onAbandoned (optional) runs if the popup closes without ever
// posting, so the caller can put its login affordance back.
func (r *Relay) Start(ctx context.Context, provider idp.Provider, action idp.Action, onComplete func(*session.Session), onAbandoned func()) error {
	_, err, _ := r.openGroup.Do("popup", func() (any, error) {
		r.mu.Lock()
		if r.popup != nil && !r.popup.Closed() {
			r.mu.Unlock()
			log.LogDebugWithFields("relay", "Popup already open, not opening another", map[string]any{
				"provider": provider.Name(),
			})
			return nil, nil
		}
		r.mu.Unlock()

		state, payload, err := r.codec.Issue(provider.Name(), action)
		if err != nil {
			return nil, err
		}

		authURL, err := provider.AuthURL(ctx, state, action)
		if err != nil {
			return nil, fmt.Errorf("failed to build authorization url: %w", err)
		}

		win, err := r.windows.Open(authURL, popupName, featureString())
		if err != nil {
			return nil, fmt.Errorf("failed to open popup: %w", err)
		}

		watchCtx, cancel := context.WithCancel(ctx)

		r.mu.Lock()
		r.popup = win
		r.completed = false
		r.onComplete = onComplete
		r.onAbandoned = onAbandoned
		r.stopWatch = cancel
		r.mu.Unlock()

		log.LogInfoWithFields("relay", "Popup opened", map[string]any{
			"provider":  provider.Name(),
			"action":    string(action),
			"window_id": payload.WindowID,
		})

		go r.watch(watchCtx, win)
		return nil, nil
	})
	return err
}

// Cancel abandons the flow in flight, if any: the popup is closed and any
// envelope delivered afterwards will not apply. Cancellation is effective
// when Cancel returns, so callers switching login methods can rely on the
// abandoned ceremony's result being discarded. Cancel does not invoke the
// abandonment callback; the caller initiated this.
func (r *Relay) Cancel() {
	r.mu.Lock()
	if r.completed || r.popup == nil {
		r.mu.Unlock()
		return
	}
	r.completed = true
	popup := r.popup
	r.popup = nil
	stopWatch := r.stopWatch
	r.stopWatch = nil
	r.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	popup.Close()
	log.LogDebug("Popup login cancelled by caller")
}

// watch polls popup liveness so the parent never waits forever on a popup
// the user simply closed.
func (r *Relay) watch(ctx context.Context, win Window) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		var reason string
		select {
		case <-ctx.Done():
			// The context Start was given ended. Close the popup; the flow
			// is reported abandoned so the caller's UI stays actionable.
			reason = "Popup login context cancelled"
		case <-ticker.C:
			if !win.Closed() {
				continue
			}
			reason = "Popup closed without completing"
		}

		r.mu.Lock()
		abandoned := !r.completed && r.popup == win
		var onAbandoned func()
		if abandoned {
			r.completed = true
			r.popup = nil
			onAbandoned = r.onAbandoned
		}
		r.mu.Unlock()

		if abandoned {
			win.Close()
			log.LogInfoWithFields("relay", reason, map[string]any{})
			if onAbandoned != nil {
				onAbandoned()
			}
		}
		return
	}
}

// Deliver hands the relay a cross-window message. Messages failing origin
// validation are logged and dropped, never surfaced to the user. A
// delivery after the flow already completed (or when no flow is active) is
// a no-op.
func (r *Relay) Deliver(msg Message) {
	if msg.Origin != r.origin {
		log.LogWarnWithFields("relay", "Dropped cross-window message with foreign origin", map[string]any{
			"origin": msg.Origin,
			"kind":   auth.KindOriginMismatch.String(),
		})
		return
	}
	if msg.Envelope.Type != EnvelopeTypeLoginSuccess {
		log.LogDebugWithFields("relay", "Ignored cross-window message of unknown type", map[string]any{
			"type": msg.Envelope.Type,
		})
		return
	}

	r.mu.Lock()
	if r.completed || r.popup == nil {
		r.mu.Unlock()
		log.LogDebug("Ignored relay envelope with no flow in flight")
		return
	}
	r.completed = true
	popup := r.popup
	r.popup = nil
	onComplete := r.onComplete
	stopWatch := r.stopWatch
	r.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	sess := session.New(msg.Envelope.User, msg.Envelope.Token)
	r.store.Set(context.Background(), sess)
	popup.Close()

	log.LogInfoWithFields("relay", "Popup login completed", map[string]any{
		"username": sess.User.Username,
	})

	if onComplete != nil {
		onComplete(sess)
	} else if r.navigate != nil {
		r.navigate(auth.DefaultRoute(sess.User))
	}
}

// Active reports whether a popup flow is currently in flight
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.popup != nil && !r.completed
}
