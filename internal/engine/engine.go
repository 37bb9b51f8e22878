// Package engine evaluates location fixes against the hazard registry and
// announces each hazard once per approach.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
	"github.com/couchcryptid/hazard-alert-service/internal/registry"
	"github.com/couchcryptid/hazard-alert-service/internal/tracker"
)

var (
	ErrAlreadyAttached = errors.New("engine already attached to a location source")
	ErrDetached        = errors.New("engine detached from its location source")
	errNotAttached     = errors.New("engine not attached to a location source")
)

// Dispatcher hands an announcement off without waiting for it.
type Dispatcher interface {
	Dispatch(h domain.HazardPoint, lang string)
}

// LastFix is the most recent location the engine evaluated.
type LastFix struct {
	Location   domain.Location `json:"location"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Engine owns the per-hazard alert state. OnLocation and Configure are
// serialized; dispatches run outside that critical section.
type Engine struct {
	points     []domain.HazardPoint
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	cfg      domain.EngineConfig
	tracker  *tracker.Tracker
	last     *LastFix
	detached bool
	adapter  *locationstream.Adapter
	sub      *locationstream.Subscription
}

// New creates an engine with every hazard in reg Idle.
func New(reg *registry.Registry, cfg domain.EngineConfig, dispatcher Dispatcher, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := tracker.New(reg.IDs())
	if err != nil {
		return nil, fmt.Errorf("build tracker: %w", err)
	}

	metrics.EngineEnabled.Set(boolGauge(cfg.Enabled))
	metrics.HazardsAlerted.Set(0)

	return &Engine{
		points:     reg.All(),
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		tracker:    tr,
	}, nil
}

// OnLocation evaluates loc against every hazard. Entered hazards are
// dispatched when alerts are enabled; while muted the state still advances
// but nothing is announced. Calls after UnsubscribeSource are ignored.
func (e *Engine) OnLocation(loc domain.Location) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detached {
		e.metrics.LocationsIgnored.Inc()
		return
	}
	if err := loc.Validate(); err != nil {
		e.logger.Warn("ignoring invalid location", "error", err)
		e.metrics.LocationsIgnored.Inc()
		return
	}

	cfg := e.cfg
	e.last = &LastFix{Location: loc, ReceivedAt: domain.Now()}

	for _, h := range e.points {
		d := domain.Distance(loc, h.Location)
		switch e.tracker.Step(h.ID, d, cfg) {
		case domain.TransitionEntered:
			e.metrics.Transitions.WithLabelValues(domain.TransitionEntered.String()).Inc()
			if !cfg.Enabled {
				e.metrics.AlertsSuppressed.Inc()
				e.logger.Debug("hazard entered while muted", "hazard_id", h.ID, "distance_m", d)
				continue
			}
			e.logger.Info("hazard entered",
				"hazard_id", h.ID,
				"road", h.RoadName,
				"distance_m", d,
				"speed_limit", h.SpeedLimit,
			)
			e.dispatcher.Dispatch(h, cfg.Language)
		case domain.TransitionExited:
			e.metrics.Transitions.WithLabelValues(domain.TransitionExited.String()).Inc()
			e.logger.Debug("hazard exited", "hazard_id", h.ID, "distance_m", d)
		}
	}

	e.metrics.HazardsAlerted.Set(float64(e.tracker.CountAlerted()))
	e.metrics.LocationsProcessed.Inc()
	e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
}

// Configure merges patch into the current config. New thresholds apply from
// the next fix. Unmuting does not announce hazards that are already Alerted.
func (e *Engine) Configure(patch domain.ConfigPatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.cfg.Apply(patch)
	if err != nil {
		return err
	}
	if next.Enabled != e.cfg.Enabled {
		e.logger.Info("alerts toggled", "enabled", next.Enabled)
	}
	e.cfg = next
	e.metrics.EngineEnabled.Set(boolGauge(next.Enabled))
	e.logger.Info("engine configured",
		"enabled", next.Enabled,
		"language", next.Language,
		"enter_threshold_m", next.EnterThresholdMeters,
		"exit_threshold_m", next.ExitThresholdMeters,
	)
	return nil
}

// Config returns the current config.
func (e *Engine) Config() domain.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// StateOf returns the phase of hazard id without side effects.
func (e *Engine) StateOf(id string) (domain.Phase, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Phase(id)
}

// States returns every hazard's state in registry order.
func (e *Engine) States() []domain.AlertState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Snapshot()
}

// Hazards returns the registry the engine was built with.
func (e *Engine) Hazards() []domain.HazardPoint {
	return append([]domain.HazardPoint(nil), e.points...)
}

// LastLocation returns the most recent evaluated fix.
func (e *Engine) LastLocation() (LastFix, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return LastFix{}, false
	}
	return *e.last, true
}

// Attach subscribes the engine to a location adapter. onError receives
// location errors and may be nil. Attaching again after UnsubscribeSource
// resumes evaluation.
func (e *Engine) Attach(a *locationstream.Adapter, onError func(*domain.LocationError)) error {
	e.mu.Lock()
	if e.sub != nil && e.sub.Active() {
		e.mu.Unlock()
		return ErrAlreadyAttached
	}
	e.detached = false
	e.mu.Unlock()

	// Subscribe may wait for a previous watch to wind down, and that watch may
	// be blocked in OnLocation, so it runs without the lock.
	sub, err := a.Subscribe(e.OnLocation, onError)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.detached {
		// UnsubscribeSource ran while Subscribe was waiting.
		e.mu.Unlock()
		a.Unsubscribe(sub)
		return ErrDetached
	}
	e.adapter = a
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// UnsubscribeSource stops the location subscription and detaches the engine.
// Fixes that still arrive afterwards, from the source or direct calls, change
// nothing. Dispatches already issued are left to finish.
func (e *Engine) UnsubscribeSource() {
	e.mu.Lock()
	e.detached = true
	a, sub := e.adapter, e.sub
	e.mu.Unlock()

	if a != nil {
		a.Unsubscribe(sub)
	}
	e.logger.Info("engine detached from location source")
}

// Detached reports whether UnsubscribeSource has been called since the last Attach.
func (e *Engine) Detached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

// CheckReadiness returns nil while the engine has an active location
// subscription.
func (e *Engine) CheckReadiness(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detached {
		return ErrDetached
	}
	if e.sub == nil || !e.sub.Active() {
		return errNotAttached
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
