// Package funnel holds the filtering, aggregation and conversion-rate
// pipeline behind the hourly PIN funnel report. Everything here is pure:
// inputs are never mutated and results are rebuilt on every call.
package funnel

import (
	"fmt"
	"math"
)

// NotAvailable marks an hour slot with no record behind it.
const NotAvailable = "NA"

// ConversionRate is verified/generated as a percentage in [0, 100].
// It returns 0 when nothing was generated; noisy upstream slices where
// verifications exceed generations are clamped to 100.
func ConversionRate(verified, generated int64) float64 {
	if generated <= 0 {
		return 0
	}
	cr := float64(verified) / float64(generated) * 100
	switch {
	case cr > 100:
		return 100
	case cr < 0:
		return 0
	}
	return cr
}

// TablePrecision rounds a rate for table cells.
func TablePrecision(cr float64) int {
	return int(math.Round(cr))
}

// TooltipPrecision rounds a rate to two decimals for chart tooltips.
func TooltipPrecision(cr float64) float64 {
	return math.Round(cr*100) / 100
}

// FormatCR renders a table cell, e.g. "40%".
func FormatCR(cr float64) string {
	return fmt.Sprintf("%d%%", TablePrecision(cr))
}
