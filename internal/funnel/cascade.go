package funnel

import (
	"github.com/radiusdt/inapp-report/internal/models"
)

// CascadeResult is a filter spec reconciled against the record set.
type CascadeResult struct {
	Spec    models.FilterSpec         `json:"spec"`
	Options map[models.Field][]string `json:"options"`
	// Cleared lists the selections dropped because their value was no
	// longer among the options left by higher-priority fields.
	Cleared []models.Field `json:"cleared"`
}

// Cascade re-derives every option list after a change to spec and resets
// selections that point at filtered-out values.
//
// Priority runs: the field just changed, then the tab's hierarchy, then
// any remaining option field. A selection is kept only when its value is
// among the options derived from the selections kept before it, so the
// returned spec is always satisfiable field by field.
func (e *Evaluator) Cascade(records []models.HourlyRecord, spec models.FilterSpec, tab models.Tab, changed models.Field) CascadeResult {
	spec = spec.Normalized()

	kept := spec
	for _, f := range models.OptionFields {
		kept = kept.Without(f)
	}

	var cleared []models.Field
	for _, f := range cascadeOrder(tab, changed) {
		v := spec.Get(f)
		if v == "" {
			continue
		}
		if contains(e.optionsFor(f, records, kept), v) {
			kept = kept.With(f, v)
		} else {
			cleared = append(cleared, f)
		}
	}

	options := make(map[models.Field][]string, len(models.OptionFields))
	for _, f := range models.OptionFields {
		options[f] = e.optionsFor(f, records, kept)
	}

	return CascadeResult{Spec: kept, Options: options, Cleared: cleared}
}

func cascadeOrder(tab models.Tab, changed models.Field) []models.Field {
	order := make([]models.Field, 0, len(models.OptionFields))
	add := func(f models.Field) {
		if isOptionField(f) && !contains(order, f) {
			order = append(order, f)
		}
	}

	add(changed)
	for _, f := range tab.Hierarchy() {
		add(f)
	}
	for _, f := range models.OptionFields {
		add(f)
	}
	return order
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
