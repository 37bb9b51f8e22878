// Package nmea reads location fixes from a serial GPS receiver speaking
// NMEA 0183. Only RMC sentences are used; they carry position, validity,
// and the positioning mode in one line.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

var (
	ErrNotRMC      = errors.New("not an RMC sentence")
	ErrBadChecksum = errors.New("nmea checksum mismatch")
)

// Positioning modes from the RMC mode field (NMEA 2.3 and later).
const (
	ModeAutonomous   = 'A'
	ModeDifferential = 'D'
	ModeEstimated    = 'E'
	ModeManual       = 'M'
	ModeSimulated    = 'S'
	ModeNotValid     = 'N'
)

// RMC is the recommended minimum navigation sentence.
type RMC struct {
	Time       time.Time
	Valid      bool
	Location   domain.Location
	SpeedKnots float64
	Mode       byte // 0 when the receiver predates NMEA 2.3
}

// Accurate reports whether the fix came from satellites rather than
// dead reckoning or a missing solution.
func (r RMC) Accurate() bool {
	return r.Mode != ModeEstimated && r.Mode != ModeNotValid
}

// ParseRMC parses a $GPRMC or $GNRMC line. Other talkers' RMC sentences are
// accepted too; any other sentence type returns ErrNotRMC.
func ParseRMC(line string) (RMC, error) {
	body, err := verifyChecksum(strings.TrimSpace(line))
	if err != nil {
		return RMC{}, err
	}

	fields := strings.Split(body, ",")
	if len(fields[0]) != 5 || !strings.HasSuffix(fields[0], "RMC") {
		return RMC{}, ErrNotRMC
	}
	if len(fields) < 10 {
		return RMC{}, fmt.Errorf("rmc: expected at least 10 fields, got %d", len(fields))
	}

	r := RMC{Valid: fields[2] == "A"}
	if len(fields) > 12 && fields[12] != "" {
		r.Mode = fields[12][0]
	}
	if !r.Valid {
		return r, nil
	}

	lat, err := parseCoordinate(fields[3], fields[4], 2)
	if err != nil {
		return RMC{}, fmt.Errorf("rmc latitude: %w", err)
	}
	lng, err := parseCoordinate(fields[5], fields[6], 3)
	if err != nil {
		return RMC{}, fmt.Errorf("rmc longitude: %w", err)
	}
	r.Location = domain.Location{Lat: lat, Lng: lng}
	if err := r.Location.Validate(); err != nil {
		return RMC{}, fmt.Errorf("rmc: %w", err)
	}

	if fields[7] != "" {
		if r.SpeedKnots, err = strconv.ParseFloat(fields[7], 64); err != nil {
			return RMC{}, fmt.Errorf("rmc speed: %w", err)
		}
	}

	if fields[1] != "" && fields[9] != "" {
		r.Time, err = parseDateTime(fields[9], fields[1])
		if err != nil {
			return RMC{}, err
		}
	}
	return r, nil
}

// verifyChecksum strips the leading $ and trailing *hh and checks the XOR
// of the characters in between.
func verifyChecksum(line string) (string, error) {
	if !strings.HasPrefix(line, "$") {
		return "", fmt.Errorf("nmea: missing $ in %q", line)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return "", fmt.Errorf("nmea: missing checksum in %q", line)
	}

	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return "", fmt.Errorf("nmea: bad checksum %q", line[star+1:])
	}
	if checksum(body) != byte(want) {
		return "", ErrBadChecksum
	}
	return body, nil
}

func checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// parseCoordinate converts ddmm.mmmm (or dddmm.mmmm) and a hemisphere letter
// to signed decimal degrees.
func parseCoordinate(value, hemisphere string, degreeDigits int) (float64, error) {
	if len(value) < degreeDigits+2 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	deg, err := strconv.Atoi(value[:degreeDigits])
	if err != nil {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	minutes, err := strconv.ParseFloat(value[degreeDigits:], 64)
	if err != nil || minutes >= 60 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}

	v := float64(deg) + minutes/60
	switch hemisphere {
	case "N", "E":
		return v, nil
	case "S", "W":
		return -v, nil
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", hemisphere)
	}
}

func parseDateTime(date, clock string) (time.Time, error) {
	if len(clock) < 6 {
		return time.Time{}, fmt.Errorf("rmc time: malformed %q", clock)
	}
	t, err := time.Parse("020106 150405", date+" "+clock[:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("rmc time: %w", err)
	}
	if len(clock) > 7 && clock[6] == '.' {
		frac, err := strconv.ParseFloat("0"+clock[6:], 64)
		if err == nil {
			t = t.Add(time.Duration(frac * float64(time.Second)))
		}
	}
	return t, nil
}
