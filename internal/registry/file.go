package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// LoadFile reads a JSON array of hazard points and validates it with Load.
//
//	[{"id":"PT-01","location":{"lat":38.7436,"lng":-9.1602},
//	  "speed_limit":80,"road_name":"A1 - Lisboa","country":"PT","kind":"fixed"}]
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hazards file: %w", err)
	}

	var points []domain.HazardPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parse hazards file %s: %w", path, err)
	}
	return Load(points)
}
