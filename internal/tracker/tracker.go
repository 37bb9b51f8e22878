// Package tracker implements the two-phase hysteresis state machine kept for
// every hazard.
package tracker

import (
	"fmt"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// Evaluate decides the next state for one distance sample.
//
//	Idle    and distance <= enter  ->  Alerted, Entered
//	Alerted and distance >  exit   ->  Idle,    Exited
//	anything else                  ->  unchanged, None
func Evaluate(state domain.AlertState, distance float64, cfg domain.EngineConfig) (domain.AlertState, domain.Transition) {
	switch state.Phase {
	case domain.PhaseIdle:
		if distance <= cfg.EnterThresholdMeters {
			state.Phase = domain.PhaseAlerted
			return state, domain.TransitionEntered
		}
	case domain.PhaseAlerted:
		if distance > cfg.ExitThresholdMeters {
			state.Phase = domain.PhaseIdle
			return state, domain.TransitionExited
		}
	}
	return state, domain.TransitionNone
}

// Tracker owns one AlertState per hazard id. The set of ids is fixed at
// construction. A Tracker is not safe for concurrent use; its owner
// serializes access.
type Tracker struct {
	order  []string
	states map[string]domain.AlertState
}

// New creates a tracker with every id in the Idle phase.
func New(ids []string) (*Tracker, error) {
	t := &Tracker{
		order:  make([]string, 0, len(ids)),
		states: make(map[string]domain.AlertState, len(ids)),
	}
	for _, id := range ids {
		if _, dup := t.states[id]; dup {
			return nil, fmt.Errorf("tracker: duplicate hazard id %q", id)
		}
		t.states[id] = domain.AlertState{HazardID: id, Phase: domain.PhaseIdle}
		t.order = append(t.order, id)
	}
	return t, nil
}

// Step evaluates a distance sample for id and stores the resulting state.
// Unknown ids are ignored and report TransitionNone.
func (t *Tracker) Step(id string, distance float64, cfg domain.EngineConfig) domain.Transition {
	state, ok := t.states[id]
	if !ok {
		return domain.TransitionNone
	}
	next, tr := Evaluate(state, distance, cfg)
	if tr != domain.TransitionNone {
		t.states[id] = next
	}
	return tr
}

// Phase returns the current phase for id.
func (t *Tracker) Phase(id string) (domain.Phase, bool) {
	state, ok := t.states[id]
	return state.Phase, ok
}

// Snapshot returns every state in construction order.
func (t *Tracker) Snapshot() []domain.AlertState {
	out := make([]domain.AlertState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.states[id])
	}
	return out
}

// CountAlerted returns how many hazards are currently Alerted.
func (t *Tracker) CountAlerted() int {
	n := 0
	for _, s := range t.states {
		if s.Phase == domain.PhaseAlerted {
			n++
		}
	}
	return n
}

// Len returns the number of tracked hazards.
func (t *Tracker) Len() int {
	return len(t.states)
}
