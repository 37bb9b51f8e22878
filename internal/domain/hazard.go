package domain

import (
	"fmt"
	"strings"
)

// Country identifies the jurisdiction a hazard belongs to.
type Country string

const (
	CountryPortugal Country = "PT"
	CountrySpain    Country = "ES"
)

// ParseCountry normalizes a country code. Only the jurisdictions with a
// known speed camera network are accepted.
func ParseCountry(s string) (Country, error) {
	switch c := Country(strings.ToUpper(strings.TrimSpace(s))); c {
	case CountryPortugal, CountrySpain:
		return c, nil
	default:
		return "", fmt.Errorf("unknown country %q", s)
	}
}

// HazardKind describes how a speed camera measures. It is informational and
// never changes alert behavior.
type HazardKind string

const (
	KindFixed   HazardKind = "fixed"
	KindMobile  HazardKind = "mobile"
	KindAverage HazardKind = "average"
)

// ParseHazardKind normalizes a kind string. Empty input means fixed.
func ParseHazardKind(s string) (HazardKind, error) {
	switch k := HazardKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindFixed, nil
	case KindFixed, KindMobile, KindAverage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown hazard kind %q", s)
	}
}

// HazardPoint is a fixed location with a speed limit and road identity.
// Values are immutable once loaded into a registry.
type HazardPoint struct {
	ID         string     `json:"id"`
	Location   Location   `json:"location"`
	SpeedLimit int        `json:"speed_limit"`
	RoadName   string     `json:"road_name"`
	Country    Country    `json:"country"`
	Kind       HazardKind `json:"kind,omitempty"`
}
