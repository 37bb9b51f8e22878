// Package registry holds the immutable set of hazard points an engine
// evaluates. A Registry is built once by Load and never mutated afterwards;
// a different hazard set requires a new Registry and a new engine.
package registry

import (
	"fmt"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// Registry is a validated, read-only list of hazards in load order.
type Registry struct {
	points []domain.HazardPoint
	byID   map[string]int
}

// Load validates points and builds a Registry. It fails with a
// *domain.ValidationError on the first entry with an empty id, out-of-range
// coordinates, an unknown country or kind, a negative speed limit, or an id
// already seen.
func Load(points []domain.HazardPoint) (*Registry, error) {
	r := &Registry{
		points: make([]domain.HazardPoint, 0, len(points)),
		byID:   make(map[string]int, len(points)),
	}

	for i, p := range points {
		if p.ID == "" {
			return nil, &domain.ValidationError{Index: i, Reason: "missing id"}
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, &domain.ValidationError{HazardID: p.ID, Index: i, Reason: "duplicate id"}
		}
		if err := p.Location.Validate(); err != nil {
			return nil, &domain.ValidationError{HazardID: p.ID, Index: i, Reason: err.Error()}
		}
		if p.SpeedLimit < 0 {
			return nil, &domain.ValidationError{HazardID: p.ID, Index: i, Reason: fmt.Sprintf("negative speed limit %d", p.SpeedLimit)}
		}
		country, err := domain.ParseCountry(string(p.Country))
		if err != nil {
			return nil, &domain.ValidationError{HazardID: p.ID, Index: i, Reason: err.Error()}
		}
		kind, err := domain.ParseHazardKind(string(p.Kind))
		if err != nil {
			return nil, &domain.ValidationError{HazardID: p.ID, Index: i, Reason: err.Error()}
		}
		p.Country = country
		p.Kind = kind

		r.byID[p.ID] = len(r.points)
		r.points = append(r.points, p)
	}

	return r, nil
}

// All returns the hazards in load order. The slice is a copy.
func (r *Registry) All() []domain.HazardPoint {
	out := make([]domain.HazardPoint, len(r.points))
	copy(out, r.points)
	return out
}

// Get looks up a hazard by id.
func (r *Registry) Get(id string) (domain.HazardPoint, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.HazardPoint{}, false
	}
	return r.points[i], true
}

// IDs returns hazard ids in load order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.points))
	for i, p := range r.points {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of hazards.
func (r *Registry) Len() int {
	return len(r.points)
}
