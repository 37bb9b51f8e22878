package domain

import "time"

// Phase is the hysteresis state of a single hazard.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAlerted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAlerted:
		return "alerted"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// AlertState is the per-hazard state owned by the tracker.
type AlertState struct {
	HazardID string `json:"hazard_id"`
	Phase    Phase  `json:"phase"`
}

// Transition is the outcome of evaluating one distance sample.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEntered
	TransitionExited
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionEntered:
		return "entered"
	case TransitionExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Announcement is the payload handed to a notifier when a hazard is entered.
type Announcement struct {
	ID          string     `json:"id"`
	HazardID    string     `json:"hazard_id"`
	RoadName    string     `json:"road_name"`
	Country     Country    `json:"country"`
	Kind        HazardKind `json:"kind,omitempty"`
	Location    Location   `json:"location"`
	SpeedLimit  int        `json:"speed_limit"`
	Language    string     `json:"language"`
	Message     string     `json:"message"`
	TriggeredAt time.Time  `json:"triggered_at"`
}
