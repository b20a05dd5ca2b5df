package models

import (
	"fmt"
	"strings"
	"time"
)

// Field names a categorical filter field.
type Field string

const (
	FieldServiceOwner Field = "serviceOwner"
	FieldServiceName  Field = "serviceName"
	FieldTerritory    Field = "territory"
	FieldOperator     Field = "operator"
	FieldPartnerName  Field = "partnerName"
	FieldAppServiceID Field = "appServiceId"
)

// OptionFields are the fields that get cascading option lists.
var OptionFields = []Field{
	FieldServiceOwner,
	FieldServiceName,
	FieldTerritory,
	FieldOperator,
	FieldPartnerName,
}

// ParseField accepts an option field name; "" is allowed and means none.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if f == "" {
		return "", nil
	}
	for _, of := range OptionFields {
		if of == f {
			return f, nil
		}
	}
	return "", &ValidationError{Field: "changed", Reason: fmt.Sprintf("unknown field %q", s)}
}

// Value returns the record's value for f.
func (r HourlyRecord) Value(f Field) string {
	switch f {
	case FieldServiceOwner:
		return r.ServiceOwner
	case FieldServiceName:
		return r.ServiceName
	case FieldTerritory:
		return r.Territory
	case FieldOperator:
		return r.OperatorName
	case FieldPartnerName:
		return r.PartnerName
	case FieldAppServiceID:
		return r.AppServiceID
	}
	return ""
}

// ===========================================
// TABS
// ===========================================

// Tab selects one of the two filter hierarchies of the dashboard.
type Tab string

const (
	// TabOwner is rooted at the service owner.
	TabOwner Tab = "owner"
	// TabPartner is rooted at the traffic partner.
	TabPartner Tab = "partner"
)

// ParseTab defaults to the owner tab.
func ParseTab(s string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case "", TabOwner:
		return TabOwner, nil
	case TabPartner:
		return TabPartner, nil
	}
	return "", &ValidationError{Field: "tab", Reason: fmt.Sprintf("unknown tab %q", s)}
}

// Hierarchy is the cascading order of the tab, root first.
func (t Tab) Hierarchy() []Field {
	if t == TabPartner {
		return []Field{FieldPartnerName, FieldTerritory, FieldOperator, FieldServiceName}
	}
	return []Field{FieldServiceOwner, FieldServiceName, FieldTerritory, FieldOperator, FieldPartnerName}
}

// Root is the field that names the export entity.
func (t Tab) Root() Field {
	return t.Hierarchy()[0]
}

// ===========================================
// FILTER SPEC
// ===========================================

// DateRange bounds the day component, both ends inclusive, as
// YYYY-MM-DD strings. Empty bounds are open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// IsEmpty reports whether neither bound is set.
func (d DateRange) IsEmpty() bool {
	return d.From == "" && d.To == ""
}

// FilterSpec is a set of optional predicates; an empty field places no
// constraint.
type FilterSpec struct {
	ServiceOwner string    `json:"serviceOwner,omitempty"`
	DateRange    DateRange `json:"dateRange"`
	ServiceName  string    `json:"serviceName,omitempty"`
	Territory    string    `json:"territory,omitempty"`
	Operator     string    `json:"operator,omitempty"`
	PartnerName  string    `json:"partnerName,omitempty"`
	AppServiceID string    `json:"appServiceId,omitempty"`
}

// Get returns the spec's value for f.
func (s FilterSpec) Get(f Field) string {
	switch f {
	case FieldServiceOwner:
		return s.ServiceOwner
	case FieldServiceName:
		return s.ServiceName
	case FieldTerritory:
		return s.Territory
	case FieldOperator:
		return s.Operator
	case FieldPartnerName:
		return s.PartnerName
	case FieldAppServiceID:
		return s.AppServiceID
	}
	return ""
}

// With returns a copy of s with f set to v.
func (s FilterSpec) With(f Field, v string) FilterSpec {
	switch f {
	case FieldServiceOwner:
		s.ServiceOwner = v
	case FieldServiceName:
		s.ServiceName = v
	case FieldTerritory:
		s.Territory = v
	case FieldOperator:
		s.Operator = v
	case FieldPartnerName:
		s.PartnerName = v
	case FieldAppServiceID:
		s.AppServiceID = v
	}
	return s
}

// Without returns a copy of s with f cleared.
func (s FilterSpec) Without(f Field) FilterSpec {
	return s.With(f, "")
}

// IsEmpty reports whether no predicate is set.
func (s FilterSpec) IsEmpty() bool {
	if !s.DateRange.IsEmpty() || s.AppServiceID != "" {
		return false
	}
	for _, f := range OptionFields {
		if s.Get(f) != "" {
			return false
		}
	}
	return true
}

// Normalized brings categorical values into the record store's canonical
// case and trims ids and bounds.
func (s FilterSpec) Normalized() FilterSpec {
	for _, f := range OptionFields {
		s = s.With(f, NormalizeValue(s.Get(f)))
	}
	s.AppServiceID = strings.TrimSpace(s.AppServiceID)
	s.DateRange.From = strings.TrimSpace(s.DateRange.From)
	s.DateRange.To = strings.TrimSpace(s.DateRange.To)
	return s
}

// ValidationOptions tune Validate.
type ValidationOptions struct {
	// RequireDates rejects a spec without both bounds.
	RequireDates bool
	// RejectFuture rejects bounds after Now.
	RejectFuture bool
	Now          time.Time
}

// Validate checks the date range before the spec reaches evaluation and
// rewrites both bounds to canonical YYYY-MM-DD form.
func (s *FilterSpec) Validate(opts ValidationOptions) error {
	dr := s.DateRange
	if dr.IsEmpty() {
		if opts.RequireDates {
			return &ValidationError{Field: "dateRange", Reason: "dates are required"}
		}
		return nil
	}
	if dr.From == "" || dr.To == "" {
		return &ValidationError{Field: "dateRange", Reason: "both dates are required"}
	}

	from, err := ParseDay(dr.From)
	if err != nil {
		return &ValidationError{Field: "dateRange.from", Reason: err.Error()}
	}
	to, err := ParseDay(dr.To)
	if err != nil {
		return &ValidationError{Field: "dateRange.to", Reason: err.Error()}
	}
	if from.After(to) {
		return &ValidationError{Field: "dateRange", Reason: "from is after to"}
	}
	if opts.RejectFuture {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		today, _ := ParseDay(now.UTC().Format(DayLayout))
		if from.After(today) || to.After(today) {
			return &ValidationError{Field: "dateRange", Reason: "invalid date selection"}
		}
	}

	s.DateRange = DateRange{From: from.Format(DayLayout), To: to.Format(DayLayout)}
	return nil
}

// ValidationError rejects filter input before evaluation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
