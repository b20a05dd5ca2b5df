package funnel

// SeriesPoint is one hour of a service's chart line.
type SeriesPoint struct {
	Hour   int     `json:"hour"`
	CR     float64 `json:"cr"`
	PinGen int64   `json:"pinGenSucCount"`
	PinVer int64   `json:"pinVerSucCount"`
}

// Series returns the hours that have a record, ascending, with CR at
// tooltip precision.
func (g *Group) Series() []SeriesPoint {
	out := make([]SeriesPoint, 0, HoursPerDay)
	for _, s := range g.slots {
		if !s.Present {
			continue
		}
		out = append(out, SeriesPoint{
			Hour:   s.Hour,
			CR:     TooltipPrecision(s.CR),
			PinGen: s.PinGen,
			PinVer: s.PinVer,
		})
	}
	return out
}

// DailyCRPoint is one bar of the daily CR chart.
type DailyCRPoint struct {
	Date         string  `json:"date"`
	AppServiceID string  `json:"appServiceId"`
	ServiceName  string  `json:"serviceName"`
	CR           float64 `json:"cr"`
	PinGen       int64   `json:"pinGenSucCount"`
	PinVer       int64   `json:"pinVerSucCount"`
}

// DailyCR lists each group's day total, ordered by day then service.
func (r *Report) DailyCR() []DailyCRPoint {
	out := make([]DailyCRPoint, 0, r.Len())
	for _, day := range r.days {
		for _, g := range r.DayGroups(day) {
			out = append(out, DailyCRPoint{
				Date:         day,
				AppServiceID: g.appServiceID,
				ServiceName:  g.serviceName,
				CR:           TooltipPrecision(g.totalCR),
				PinGen:       g.totalPinGen,
				PinVer:       g.totalPinVer,
			})
		}
	}
	return out
}
