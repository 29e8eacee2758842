package timing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidLapTime is returned by ValidateLapTime for input with no separators that is
// not a number either.
var ErrInvalidLapTime = errors.New("timing: time must be in a recognisable format (mm:ss.sss, mm.ss.sss, ss.sss, or seconds)")

// slowestLapTime is what an unreadable lap time is worth. It never wins a comparison.
var slowestLapTime = math.Inf(1)

// LapTime is a lap as it was entered, e.g. "1:23.456", "1.23.456", "83.456" or "83".
// The numeric value is always derived from Time.
type LapTime struct {
	Time      string
	IsFastest bool
}

func (l LapTime) Seconds() float64 {
	return ParseLapTime(l.Time)
}

func (l LapTime) MarshalJSON() ([]byte, error) {
	var seconds *float64

	if s := l.Seconds(); !math.IsInf(s, 0) {
		seconds = &s
	}

	return json.Marshal(struct {
		Time        string   `json:"time"`
		IsFastest   bool     `json:"is_fastest"`
		TimeSeconds *float64 `json:"time_seconds"`
	}{
		Time:        l.Time,
		IsFastest:   l.IsFastest,
		TimeSeconds: seconds,
	})
}

// ParseLapTime converts a lap time string to seconds. Strings which can't be read
// return +Inf rather than an error.
func ParseLapTime(s string) float64 {
	switch {
	case strings.Contains(s, ":"):
		parts := strings.Split(s, ":")

		if len(parts) != 2 {
			return slowestLapTime
		}

		minutes, err := parseSeconds(parts[0])

		if err != nil {
			return slowestLapTime
		}

		seconds, err := parseSeconds(parts[1])

		if err != nil {
			return slowestLapTime
		}

		return minutes*60 + seconds
	case strings.Contains(s, "."):
		parts := strings.Split(s, ".")

		switch len(parts) {
		case 3:
			minutes, err1 := parseSeconds(parts[0])
			seconds, err2 := parseSeconds(parts[1])
			fraction, err3 := parseSeconds("0." + parts[2])

			if err1 != nil || err2 != nil || err3 != nil {
				return slowestLapTime
			}

			return minutes*60 + seconds + fraction
		case 2:
			seconds, err1 := parseSeconds(parts[0])
			fraction, err2 := parseSeconds("0." + parts[1])

			if err1 != nil || err2 != nil {
				return slowestLapTime
			}

			return seconds + fraction
		default:
			return slowestLapTime
		}
	default:
		seconds, err := parseSeconds(s)

		if err != nil {
			return slowestLapTime
		}

		return seconds
	}
}

// parseSeconds reads a finite, non-negative decimal number. ParseFloat's hex, infinity
// and NaN forms are not lap times.
func parseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)

	if strings.ContainsAny(s, "xX") {
		return 0, errors.Errorf("timing: %q is not a decimal number", s)
	}

	f, err := strconv.ParseFloat(s, 64)

	if err != nil {
		return 0, err
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("timing: %q is not a number", s)
	}

	if f < 0 || strings.HasPrefix(s, "-") {
		return 0, errors.Errorf("timing: %q is negative", s)
	}

	return f, nil
}

// ValidateLapTime is the input check applied to submitted lap times. Negative times are
// rejected, anything else with a separator passes and is left to ParseLapTime.
func ValidateLapTime(s string) error {
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		return ErrInvalidLapTime
	}

	if strings.ContainsAny(s, ":.") {
		return nil
	}

	if _, err := parseSeconds(s); err != nil {
		return ErrInvalidLapTime
	}

	return nil
}

// FormatMilliseconds renders a lap time in milliseconds as M:SS.mmm.
func FormatMilliseconds(ms uint32) string {
	minutes := ms / 60000
	seconds := (ms / 1000) % 60
	millis := ms % 1000

	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}
