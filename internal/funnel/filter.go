package funnel

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
)

// ErrUnknownField is returned when options are requested for a field
// that has no option list.
var ErrUnknownField = errors.New("unknown filter field")

// Evaluator applies FilterSpecs to record sets. Records are expected in
// normalized form (see models.HourlyRecord.Normalized); specs are
// normalized on entry.
type Evaluator struct {
	days DayKeyer
}

// NewEvaluator creates an evaluator that reads record days with days.
func NewEvaluator(days DayKeyer) *Evaluator {
	return &Evaluator{days: days}
}

// Apply returns the records matching every non-empty clause of spec, in
// input order. The result is always a fresh slice. Categorical clauses
// compare against the uppercased values of normalized records, so raw
// records must go through HourlyRecord.Normalized first.
func (e *Evaluator) Apply(records []models.HourlyRecord, spec models.FilterSpec) []models.HourlyRecord {
	spec = spec.Normalized()
	out := make([]models.HourlyRecord, 0, len(records))
	for _, r := range records {
		if e.matches(r, spec, "") {
			out = append(out, r)
		}
	}
	return out
}

// Matches reports whether r satisfies spec.
func (e *Evaluator) Matches(r models.HourlyRecord, spec models.FilterSpec) bool {
	return e.matches(r, spec.Normalized(), "")
}

// matches evaluates every clause except the one on skip. The clauses are
// independent, so their order has no effect on the outcome.
func (e *Evaluator) matches(r models.HourlyRecord, spec models.FilterSpec, skip models.Field) bool {
	for _, f := range models.OptionFields {
		if f == skip {
			continue
		}
		if v := spec.Get(f); v != "" && r.Value(f) != v {
			return false
		}
	}
	if spec.AppServiceID != "" && skip != models.FieldAppServiceID && r.AppServiceID != spec.AppServiceID {
		return false
	}
	return e.inRange(r, spec.DateRange)
}

func (e *Evaluator) inRange(r models.HourlyRecord, dr models.DateRange) bool {
	if dr.IsEmpty() {
		return true
	}
	day, err := e.days.Key(r)
	if err != nil {
		return false
	}
	if dr.From != "" && day < dr.From {
		return false
	}
	if dr.To != "" && day > dr.To {
		return false
	}
	return true
}

// OptionsFor lists the distinct values of field across the records that
// satisfy every other clause of spec. The field's own selection is
// ignored so the current choice always stays listed.
func (e *Evaluator) OptionsFor(field models.Field, records []models.HourlyRecord, spec models.FilterSpec) ([]string, error) {
	if !isOptionField(field) && field != models.FieldAppServiceID {
		return nil, errors.Wrapf(ErrUnknownField, "%q", field)
	}
	return e.optionsFor(field, records, spec.Normalized()), nil
}

func (e *Evaluator) optionsFor(field models.Field, records []models.HourlyRecord, spec models.FilterSpec) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		v := r.Value(field)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		if e.matches(r, spec, field) {
			seen[v] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func isOptionField(f models.Field) bool {
	for _, of := range models.OptionFields {
		if of == f {
			return true
		}
	}
	return false
}
