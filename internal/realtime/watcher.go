package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

// DefaultThrottle is the minimum spacing between two invalidations.
const DefaultThrottle = 500 * time.Millisecond

type Options struct {
	// Poly is the poly to extract from each snapshot, in any spelling
	// NormalizePoly accepts. Empty watches the whole snapshot only.
	Poly     string
	Throttle time.Duration
	// OnUpdate is called for every snapshot with the watched poly's entry.
	// It must not call SetPoly.
	OnUpdate func(poly string, ps PolyStatus, found bool)
	// OnInvalidate is called at most once per Throttle, on the leading edge.
	OnInvalidate func()
	// OnDisconnect is called when the subscription ends without Close or
	// SetEnabled(false). err wraps ErrSubscriptionUnavailable. The watcher is
	// disabled by then, so SetEnabled(ctx, true) subscribes again.
	OnDisconnect func(err error)
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Watcher keeps one subscription to the queue status topic for as long as
// it is enabled. Changing the watched poly only re-filters the snapshot
// already received.
type Watcher struct {
	transport Transport
	opts      Options
	limiter   *rate.Limiter
	now       func() time.Time
	logger    zerolog.Logger

	// dispatch serializes event handling so callbacks see arrival order.
	dispatch sync.Mutex

	mu       sync.Mutex
	sub      Subscription
	poly     string
	snapshot Snapshot
	closed   bool
}

func NewWatcher(t Transport, opts Options) *Watcher {
	throttle := opts.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		transport: t,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Every(throttle), 1),
		now:       now,
		logger:    opts.Logger.With().Str("component", "realtime").Logger(),
		poly:      NormalizePoly(opts.Poly),
	}
}

// Watch creates a watcher and subscribes it.
func Watch(ctx context.Context, t Transport, opts Options) (*Watcher, error) {
	w := NewWatcher(t, opts)
	if err := w.SetEnabled(ctx, true); err != nil {
		return nil, err
	}
	return w, nil
}

// SetEnabled subscribes or unsubscribes. Enabling an enabled watcher is a
// no-op, so a watcher never holds more than one subscription. Failures wrap
// ErrSubscriptionUnavailable.
func (w *Watcher) SetEnabled(ctx context.Context, enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		if enabled {
			return ErrSubscriptionUnavailable
		}
		return nil
	}
	if !enabled {
		return w.unsubscribe()
	}
	if w.sub != nil {
		return nil
	}
	if w.transport == nil {
		return ErrSubscriptionUnavailable
	}
	sub, err := w.transport.Subscribe(ctx, Topic, w.handle)
	if err != nil {
		return err
	}
	w.sub = sub
	go w.monitor(sub)
	w.logger.Debug().Str("topic", Topic).Str("poly", w.poly).Msg("subscribed")
	return nil
}

// monitor releases sub when it ends on its own. Ends caused by unsubscribe
// find w.sub already replaced and do nothing.
func (w *Watcher) monitor(sub Subscription) {
	<-sub.Done()

	w.mu.Lock()
	if w.sub != sub {
		w.mu.Unlock()
		return
	}
	w.sub = nil
	w.mu.Unlock()

	err := sub.Err()
	if err == nil {
		err = ErrSubscriptionUnavailable
	}
	w.logger.Warn().Err(err).Str("topic", Topic).Msg("subscription lost")
	if w.opts.OnDisconnect != nil {
		w.opts.OnDisconnect(err)
	}
}

// unsubscribe must be called with mu held.
func (w *Watcher) unsubscribe() error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Close()
	w.sub = nil
	w.logger.Debug().Str("topic", Topic).Msg("unsubscribed")
	return err
}

// Enabled reports whether a subscription is held.
func (w *Watcher) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub != nil
}

// Close releases the subscription for good. It is safe to call repeatedly
// and from any exit path.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.unsubscribe()
}

// SetPoly changes the watched poly and re-reports it from the last
// snapshot, without touching the subscription. It is ordered with inbound
// events, so a newer snapshot is never overwritten by an older one.
func (w *Watcher) SetPoly(poly string) {
	w.dispatch.Lock()
	defer w.dispatch.Unlock()

	w.mu.Lock()
	w.poly = NormalizePoly(poly)
	snap := w.snapshot
	w.mu.Unlock()

	if snap != nil {
		w.report(snap)
	}
}

// Poly returns the normalized name of the watched poly.
func (w *Watcher) Poly() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.poly
}

// Snapshot returns a copy of the last snapshot received, or nil.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil {
		return nil
	}
	return w.snapshot.Clone()
}

// Current returns the watched poly's entry in the last snapshot.
func (w *Watcher) Current() (PolyStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil || w.poly == "" {
		return PolyStatus{}, false
	}
	ps, ok := w.snapshot[w.poly]
	return ps, ok
}

func (w *Watcher) handle(ev websocket.Event) {
	if ev.Type != EventQueueStatus {
		return
	}
	snap, err := DecodeSnapshot(ev.Data)
	if err != nil {
		w.logger.Warn().Err(err).Msg("discarding queue status event")
		return
	}

	w.dispatch.Lock()
	defer w.dispatch.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.snapshot = snap
	w.mu.Unlock()

	w.report(snap)
	if w.limiter.AllowN(w.now(), 1) && w.opts.OnInvalidate != nil {
		w.opts.OnInvalidate()
	}
}

func (w *Watcher) report(snap Snapshot) {
	if w.opts.OnUpdate == nil {
		return
	}
	w.mu.Lock()
	poly := w.poly
	w.mu.Unlock()
	if poly == "" {
		return
	}
	ps, ok := snap[poly]
	w.opts.OnUpdate(poly, ps, ok)
}
