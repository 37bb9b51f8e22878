package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationError_KindOf(t *testing.T) {
	cause := errors.New("fetch deadline")
	err := fmt.Errorf("watch: %w", NewLocationError(ErrTimeout, cause))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrTimeout, kind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "watch: location timeout: fetch deadline", err.Error())

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "permission_denied", ErrPermissionDenied.String())
	assert.Equal(t, "timeout", ErrTimeout.String())
	assert.Equal(t, "unavailable", ErrUnavailable.String())
	assert.Equal(t, "unknown", ErrorKind(0).String())
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{HazardID: "PT-01", Index: 3, Reason: "duplicate id"}
	assert.Equal(t, `hazard "PT-01" (#3): duplicate id`, err.Error())

	err = &ValidationError{Index: 0, Reason: "missing id"}
	assert.Equal(t, "hazard #0: missing id", err.Error())
}

func TestParseCountryAndKind(t *testing.T) {
	c, err := ParseCountry(" pt ")
	assert.NoError(t, err)
	assert.Equal(t, CountryPortugal, c)

	_, err = ParseCountry("FR")
	assert.Error(t, err)

	k, err := ParseHazardKind("")
	assert.NoError(t, err)
	assert.Equal(t, KindFixed, k)

	k, err = ParseHazardKind("Average")
	assert.NoError(t, err)
	assert.Equal(t, KindAverage, k)

	_, err = ParseHazardKind("laser")
	assert.Error(t, err)
}

func TestPhaseAndTransitionStrings(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "alerted", PhaseAlerted.String())
	assert.Equal(t, "entered", TransitionEntered.String())
	assert.Equal(t, "exited", TransitionExited.String())
	assert.Equal(t, "none", TransitionNone.String())
}
