// Package dispatch delivers hazard announcements without blocking the caller.
//
// Every Dispatch call runs the notifier on its own goroutine. There is no
// timeout, retry, or ordering between announcements, and a failed or
// panicking notifier is logged and forgotten.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
)

// Notifier announces a hazard to the driver or a downstream system.
type Notifier interface {
	Announce(ctx context.Context, a domain.Announcement) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, a domain.Announcement) error

func (f NotifierFunc) Announce(ctx context.Context, a domain.Announcement) error {
	return f(ctx, a)
}

// Dispatcher runs announcements in the background.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// New creates a Dispatcher around notifier.
func New(notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch announces hazard h in lang and returns immediately. Once issued
// an announcement cannot be cancelled.
func (d *Dispatcher) Dispatch(h domain.HazardPoint, lang string) {
	a := newAnnouncement(h, lang)

	d.wg.Add(1)
	d.inFlight.Add(1)
	d.metrics.DispatchInFlight.Inc()

	go d.deliver(a)
}

// InFlight returns the number of announcements not yet finished.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Wait blocks until in-flight announcements finish or ctx is done. It is
// meant for shutdown and does not cancel anything.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(a domain.Announcement) {
	start := time.Now()
	outcome := "failure"

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notifier panicked",
				"announcement_id", a.ID,
				"hazard_id", a.HazardID,
				"panic", r,
			)
		}
		d.metrics.Dispatches.WithLabelValues(outcome).Inc()
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		d.metrics.DispatchInFlight.Dec()
		d.inFlight.Add(-1)
		d.wg.Done()
	}()

	if err := d.notifier.Announce(context.Background(), a); err != nil {
		d.logger.Error("announcement failed",
			"announcement_id", a.ID,
			"hazard_id", a.HazardID,
			"error", err,
		)
		return
	}

	outcome = "success"
	d.logger.Debug("announcement delivered",
		"announcement_id", a.ID,
		"hazard_id", a.HazardID,
		"duration", time.Since(start),
	)
}

func newAnnouncement(h domain.HazardPoint, lang string) domain.Announcement {
	lang = ResolveLanguage(lang)
	return domain.Announcement{
		ID:          uuid.NewString(),
		HazardID:    h.ID,
		RoadName:    h.RoadName,
		Country:     h.Country,
		Kind:        h.Kind,
		Location:    h.Location,
		SpeedLimit:  h.SpeedLimit,
		Language:    lang,
		Message:     Phrase(lang, h.SpeedLimit),
		TriggeredAt: domain.Now(),
	}
}
