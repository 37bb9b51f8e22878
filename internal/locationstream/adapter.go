package locationstream

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
)

var (
	ErrAlreadySubscribed = errors.New("location source already has an active subscription")
	ErrNoHandler         = errors.New("location handler is required")
)

// Adapter owns a Source and hands its events to at most one subscriber.
type Adapter struct {
	src     Source
	opts    WatchOptions
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	current *Subscription
}

// New creates an Adapter. The source is not started until Subscribe.
func New(src Source, opts WatchOptions, logger *slog.Logger, metrics *observability.Metrics) *Adapter {
	return &Adapter{
		src:     src,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Options returns the watch options passed to the source.
func (a *Adapter) Options() WatchOptions {
	return a.opts
}

// Subscribe starts watching the source. Fixes are passed to onLocation one at
// a time in source order; onError may be nil.
//
// Only one subscription may be active. If the previous one was unsubscribed
// but its source is still winding down, Subscribe waits for it to finish.
func (a *Adapter) Subscribe(onLocation func(domain.Location), onError func(*domain.LocationError)) (*Subscription, error) {
	if onLocation == nil {
		return nil, ErrNoHandler
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev := a.current; prev != nil {
		if prev.Active() {
			return nil, ErrAlreadySubscribed
		}
		<-prev.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel:     cancel,
		done:       make(chan struct{}),
		onLocation: onLocation,
		onError:    onError,
		logger:     a.logger,
		metrics:    a.metrics,
	}
	sub.active.Store(true)
	a.current = sub

	go a.run(ctx, sub)

	a.logger.Info("location subscription started",
		"high_accuracy", a.opts.HighAccuracy,
		"timeout", a.opts.Timeout,
		"maximum_age", a.opts.MaximumAge,
	)
	return sub, nil
}

// Unsubscribe stops delivery to sub immediately. When called from another
// goroutine it waits for a handler call in progress to return, so no handler
// runs once Unsubscribe has returned. Safe to call more than once and from
// inside a handler.
func (a *Adapter) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if sub.active.CompareAndSwap(true, false) {
		a.logger.Info("location subscription stopped")
	}
	sub.cancel()

	if sub.deliverMu.TryLock() {
		sub.deliverMu.Unlock()
		return
	}
	// A handler is running. It may be the caller itself.
	if calledFromHandler() {
		return
	}
	sub.deliverMu.Lock()
	sub.deliverMu.Unlock()
}

func (a *Adapter) run(ctx context.Context, sub *Subscription) {
	defer close(sub.done)
	defer sub.cancel()

	a.metrics.SourceRunning.Set(1)
	defer a.metrics.SourceRunning.Set(0)

	err := a.src.Watch(ctx, a.opts, emitter{sub})
	stopped := !sub.active.Swap(false)

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	sub.err = err
	a.logger.Error("location source stopped", "error", err)
	if stopped {
		return
	}

	var le *domain.LocationError
	if !errors.As(err, &le) {
		le = domain.NewLocationError(domain.ErrUnavailable, err)
	}
	sub.deliver(false, func() { sub.report(le) })
}

// Subscription is one active watch on an Adapter's source.
type Subscription struct {
	active atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	// deliverMu is held for every handler call.
	deliverMu sync.Mutex

	onLocation func(domain.Location)
	onError    func(*domain.LocationError)
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Active reports whether the subscription still delivers events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Done is closed once the source has returned.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the source, if any. It is only
// meaningful after Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// deliver runs fn under deliverMu. With live set, fn is skipped once the
// subscription has stopped.
func (s *Subscription) deliver(live bool, fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if live && !s.Active() {
		return
	}
	fn()
}

const deliverFrame = "locationstream.(*Subscription).deliver"

// calledFromHandler reports whether the calling goroutine is inside deliver.
func calledFromHandler() bool {
	pcs := make([]uintptr, 128)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if strings.HasSuffix(f.Function, deliverFrame) {
			return true
		}
		if !more {
			return false
		}
	}
}

func (s *Subscription) report(le *domain.LocationError) {
	s.metrics.LocationErrors.WithLabelValues(le.Kind.String()).Inc()
	s.logger.Warn("location error", "kind", le.Kind.String(), "error", le.Err)
	if s.onError != nil {
		s.onError(le)
	}
}

// emitter keeps Fix and Error off the exported Subscription API.
type emitter struct {
	s *Subscription
}

// Fix passes every fix through unchanged. Range checks belong to the
// subscriber.
func (e emitter) Fix(loc domain.Location) {
	e.s.deliver(true, func() { e.s.onLocation(loc) })
}

func (e emitter) Error(le *domain.LocationError) {
	if le == nil {
		return
	}
	e.s.deliver(true, func() { e.s.report(le) })
}
