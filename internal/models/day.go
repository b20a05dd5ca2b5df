package models

import (
	"time"

	"github.com/pkg/errors"
)

// DayLayout is the canonical day key format.
const DayLayout = "2006-01-02"

// ParseDay reads the calendar day written at the start of s, as a UTC
// midnight. "2024-01-01", "2024-01-01 13:00:00" and
// "2024-01-01T13:00:00.000Z" all yield 2024-01-01: the date is taken as
// written, never shifted through a local or UTC conversion.
func ParseDay(s string) (time.Time, error) {
	if len(s) < len(DayLayout) {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	if len(s) > len(DayLayout) && s[len(DayLayout)] != ' ' && s[len(DayLayout)] != 'T' {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	t, err := time.ParseInLocation(DayLayout, s[:len(DayLayout)], time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q", s)
	}
	return t, nil
}
