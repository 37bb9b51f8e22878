package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	DefaultEnterThresholdMeters = 500.0
	DefaultExitThresholdMeters  = 1200.0
	DefaultLanguage             = "pt"
)

// Languages lists the announcement languages, default first.
var Languages = []string{"pt", "en", "es", "fr", "de"}

// EngineConfig controls alerting. EnterThresholdMeters must be strictly less
// than ExitThresholdMeters; the gap is the hysteresis band.
type EngineConfig struct {
	Enabled              bool    `json:"enabled"`
	Language             string  `json:"language"`
	EnterThresholdMeters float64 `json:"enter_threshold_meters"`
	ExitThresholdMeters  float64 `json:"exit_threshold_meters"`
}

// DefaultEngineConfig returns an enabled Portuguese config with 500/1200 m thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Enabled:              true,
		Language:             DefaultLanguage,
		EnterThresholdMeters: DefaultEnterThresholdMeters,
		ExitThresholdMeters:  DefaultExitThresholdMeters,
	}
}

// Validate checks thresholds and language.
func (c EngineConfig) Validate() error {
	if !isFinite(c.EnterThresholdMeters) || c.EnterThresholdMeters < 0 {
		return fmt.Errorf("%w: enter threshold %v must be a non-negative number", ErrInvalidConfig, c.EnterThresholdMeters)
	}
	if !isFinite(c.ExitThresholdMeters) {
		return fmt.Errorf("%w: exit threshold %v must be a finite number", ErrInvalidConfig, c.ExitThresholdMeters)
	}
	if c.EnterThresholdMeters >= c.ExitThresholdMeters {
		return fmt.Errorf("%w: enter threshold %v must be below exit threshold %v",
			ErrInvalidConfig, c.EnterThresholdMeters, c.ExitThresholdMeters)
	}
	if !slices.Contains(Languages, c.Language) {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidConfig, c.Language)
	}
	return nil
}

// ConfigPatch carries the fields to change; nil fields are left as they are.
type ConfigPatch struct {
	Enabled              *bool    `json:"enabled,omitempty"`
	Language             *string  `json:"language,omitempty"`
	EnterThresholdMeters *float64 `json:"enter_threshold_meters,omitempty"`
	ExitThresholdMeters  *float64 `json:"exit_threshold_meters,omitempty"`
}

// Apply merges the patch into c and validates the result. c is unchanged
// when the merged config is invalid.
func (c EngineConfig) Apply(p ConfigPatch) (EngineConfig, error) {
	next := c
	if p.Enabled != nil {
		next.Enabled = *p.Enabled
	}
	if p.Language != nil {
		next.Language = strings.ToLower(strings.TrimSpace(*p.Language))
	}
	if p.EnterThresholdMeters != nil {
		next.EnterThresholdMeters = *p.EnterThresholdMeters
	}
	if p.ExitThresholdMeters != nil {
		next.ExitThresholdMeters = *p.ExitThresholdMeters
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
