package funnel

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/radiusdt/inapp-report/internal/models"
	"go.uber.org/zap"
)

// HoursPerDay is the width of the hour-slot view.
const HoursPerDay = 24

// HourSlot is one hour of a group. Present distinguishes "no record for
// this hour" (CR renders as NA) from a record carrying zero counts.
type HourSlot struct {
	Hour    int     `json:"hour"`
	Present bool    `json:"present"`
	PinGen  int64   `json:"pinGen"`
	PinVer  int64   `json:"pinVer"`
	CR      float64 `json:"cr"`
}

// CRLabel is the table cell for the slot: "NA" when absent.
func (s HourSlot) CRLabel() string {
	if !s.Present {
		return NotAvailable
	}
	return FormatCR(s.CR)
}

// Group is the bundle of one service's records on one day. Descriptive
// fields come from the first record seen; later disagreeing records do
// not change them. A Group is read-only once built.
type Group struct {
	day          string
	appServiceID string
	serviceName  string
	territory    string
	operatorName string
	partnerName  string
	serviceOwner string

	records []models.HourlyRecord
	// hourIndex maps an hour to its first record, offset by one so the
	// zero value means "absent".
	hourIndex [HoursPerDay]int

	totalPinGen int64
	totalPinVer int64
	totalCR     float64
	slots       [HoursPerDay]HourSlot
}

func newGroup(day string, r models.HourlyRecord) *Group {
	return &Group{
		day:          day,
		appServiceID: r.AppServiceID,
		serviceName:  r.ServiceName,
		territory:    r.Territory,
		operatorName: r.OperatorName,
		partnerName:  r.PartnerName,
		serviceOwner: r.ServiceOwner,
	}
}

func (g *Group) add(r models.HourlyRecord) {
	g.records = append(g.records, r)
	if g.hourIndex[r.Hrs] == 0 {
		g.hourIndex[r.Hrs] = len(g.records)
	}
	g.totalPinGen += r.PinGenSucCount
	g.totalPinVer += r.PinVerSucCount
}

// seal caches the derived totals and slots.
func (g *Group) seal() {
	g.totalCR = ConversionRate(g.totalPinVer, g.totalPinGen)
	for h := 0; h < HoursPerDay; h++ {
		slot := HourSlot{Hour: h}
		if rec, ok := g.Hour(h); ok {
			slot.Present = true
			slot.PinGen = rec.PinGenSucCount
			slot.PinVer = rec.PinVerSucCount
			slot.CR = ConversionRate(rec.PinVerSucCount, rec.PinGenSucCount)
		}
		g.slots[h] = slot
	}
}

func (g *Group) Day() string          { return g.day }
func (g *Group) AppServiceID() string { return g.appServiceID }
func (g *Group) ServiceName() string  { return g.serviceName }
func (g *Group) Territory() string    { return g.territory }
func (g *Group) OperatorName() string { return g.operatorName }
func (g *Group) PartnerName() string  { return g.partnerName }
func (g *Group) ServiceOwner() string { return g.serviceOwner }
func (g *Group) TotalPinGen() int64   { return g.totalPinGen }
func (g *Group) TotalPinVer() int64   { return g.totalPinVer }
func (g *Group) TotalCR() float64     { return g.totalCR }

// Value returns the group's descriptive value for f.
func (g *Group) Value(f models.Field) string {
	switch f {
	case models.FieldServiceOwner:
		return g.serviceOwner
	case models.FieldServiceName:
		return g.serviceName
	case models.FieldTerritory:
		return g.territory
	case models.FieldOperator:
		return g.operatorName
	case models.FieldPartnerName:
		return g.partnerName
	case models.FieldAppServiceID:
		return g.appServiceID
	}
	return ""
}

// Records returns a copy of the group's records in arrival order.
func (g *Group) Records() []models.HourlyRecord {
	out := make([]models.HourlyRecord, len(g.records))
	copy(out, g.records)
	return out
}

// Hour looks up the record for hour h. When the upstream sent the same
// hour twice, the first one answers; both still count toward totals.
func (g *Group) Hour(h int) (models.HourlyRecord, bool) {
	if h < 0 || h >= HoursPerDay || g.hourIndex[h] == 0 {
		return models.HourlyRecord{}, false
	}
	return g.records[g.hourIndex[h]-1], true
}

// Slots is the fixed 24-hour view.
func (g *Group) Slots() [HoursPerDay]HourSlot {
	return g.slots
}

// MarshalJSON renders the group for the presentation layer.
func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Day          string               `json:"day"`
		DisplayDate  string               `json:"displayDate"`
		AppServiceID string               `json:"appServiceId"`
		ServiceName  string               `json:"serviceName"`
		Territory    string               `json:"territory"`
		OperatorName string               `json:"operatorname"`
		PartnerName  string               `json:"partnerName"`
		ServiceOwner string               `json:"service_owner"`
		TotalPinGen  int64                `json:"totalPinGen"`
		TotalPinVer  int64                `json:"totalPinVer"`
		TotalCR      float64              `json:"totalCR"`
		Hours        [HoursPerDay]HourSlot `json:"hours"`
	}{
		Day:          g.day,
		DisplayDate:  FormatDisplayDate(g.day),
		AppServiceID: g.appServiceID,
		ServiceName:  g.serviceName,
		Territory:    g.territory,
		OperatorName: g.operatorName,
		PartnerName:  g.partnerName,
		ServiceOwner: g.serviceOwner,
		TotalPinGen:  g.totalPinGen,
		TotalPinVer:  g.totalPinVer,
		TotalCR:      g.totalCR,
		Hours:        g.slots,
	})
}

// ===========================================
// REPORT
// ===========================================

// Report is the day -> service -> Group view of a record set.
type Report struct {
	days     []string
	services map[string][]string
	groups   map[string]map[string]*Group
	skipped  int
}

// Days lists the day keys in ascending order.
func (r *Report) Days() []string {
	return append([]string(nil), r.days...)
}

// Services lists the service ids present on day, numeric ids in numeric
// order.
func (r *Report) Services(day string) []string {
	return append([]string(nil), r.services[day]...)
}

// Group returns the bucket for (day, service).
func (r *Report) Group(day, appServiceID string) (*Group, bool) {
	g, ok := r.groups[day][appServiceID]
	return g, ok
}

// DayGroups returns the groups of one day in service order.
func (r *Report) DayGroups(day string) []*Group {
	ids := r.services[day]
	out := make([]*Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.groups[day][id])
	}
	return out
}

// Len is the number of groups.
func (r *Report) Len() int {
	n := 0
	for _, byService := range r.groups {
		n += len(byService)
	}
	return n
}

// IsEmpty reports whether no record survived grouping.
func (r *Report) IsEmpty() bool {
	return len(r.days) == 0
}

// Skipped counts malformed records left out of the report.
func (r *Report) Skipped() int {
	return r.skipped
}

// DayReport is the JSON form of one day.
type DayReport struct {
	Day         string   `json:"day"`
	DisplayDate string   `json:"displayDate"`
	Services    []*Group `json:"services"`
}

// MarshalJSON renders days in order with their groups.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := make([]DayReport, 0, len(r.days))
	for _, day := range r.days {
		out = append(out, DayReport{
			Day:         day,
			DisplayDate: FormatDisplayDate(day),
			Services:    r.DayGroups(day),
		})
	}
	return json.Marshal(out)
}

// ===========================================
// AGGREGATOR
// ===========================================

// Aggregator buckets records by (day, service) in a single pass.
type Aggregator struct {
	days   DayKeyer
	logger *zap.Logger
}

// NewAggregator creates an aggregator. A nil logger discards warnings.
func NewAggregator(days DayKeyer, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{days: days, logger: logger}
}

// Group partitions records into a Report. Records missing their identity
// or date, or with an hour outside 0-23, are skipped with a warning and
// counted in Report.Skipped; they never abort the batch.
func (a *Aggregator) Group(records []models.HourlyRecord) *Report {
	rep := &Report{
		services: make(map[string][]string),
		groups:   make(map[string]map[string]*Group),
	}

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			a.logger.Warn("skipping malformed record",
				zap.Int("index", i),
				zap.String("app_service_id", rec.AppServiceID),
				zap.String("date", rec.DateValue()),
				zap.Int("hrs", rec.Hrs),
				zap.Error(err),
			)
			rep.skipped++
			continue
		}
		day, err := a.days.Key(rec)
		if err != nil {
			rep.skipped++
			continue
		}

		byService, ok := rep.groups[day]
		if !ok {
			byService = make(map[string]*Group)
			rep.groups[day] = byService
			rep.days = append(rep.days, day)
		}
		g, ok := byService[rec.AppServiceID]
		if !ok {
			g = newGroup(day, rec)
			byService[rec.AppServiceID] = g
			rep.services[day] = append(rep.services[day], rec.AppServiceID)
		}
		g.add(rec)
	}

	sort.Strings(rep.days)
	for day, ids := range rep.services {
		sort.Slice(ids, func(i, j int) bool { return lessServiceID(ids[i], ids[j]) })
		for _, id := range ids {
			rep.groups[day][id].seal()
		}
	}
	return rep
}

// lessServiceID orders numeric ids numerically and everything else
// lexically after them.
func lessServiceID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	}
	return a < b
}
