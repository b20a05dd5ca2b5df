package funnel

import (
	"github.com/radiusdt/inapp-report/internal/models"
)

// DayKeyer derives the canonical YYYY-MM-DD day of a record. The date is
// read as written (UTC, date only) and then moved by OffsetDays, the one
// place a business-day shift is allowed to happen.
type DayKeyer struct {
	OffsetDays int
}

// Key returns the day key of r.
func (k DayKeyer) Key(r models.HourlyRecord) (string, error) {
	t, err := models.ParseDay(r.DateValue())
	if err != nil {
		return "", err
	}
	if k.OffsetDays != 0 {
		t = t.AddDate(0, 0, k.OffsetDays)
	}
	return t.Format(models.DayLayout), nil
}

// FormatDisplayDate turns a day key into the DD-MM-YYYY table heading.
// Unparseable input comes back unchanged.
func FormatDisplayDate(day string) string {
	t, err := models.ParseDay(day)
	if err != nil {
		return day
	}
	return t.Format("02-01-2006")
}
