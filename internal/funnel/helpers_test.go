package funnel

import (
	"fmt"

	"github.com/radiusdt/inapp-report/internal/models"
)

func rec(id, day string, hrs int, gen, ver int64) models.HourlyRecord {
	return models.HourlyRecord{
		AppServiceID:   id,
		ActDate:        day,
		Hrs:            hrs,
		PinGenSucCount: gen,
		PinVerSucCount: ver,
	}
}

type attrs struct {
	owner, service, territory, operator, partner string
}

func recWith(id, day string, hrs int, gen, ver int64, a attrs) models.HourlyRecord {
	r := rec(id, day, hrs, gen, ver)
	r.ServiceOwner = a.owner
	r.ServiceName = a.service
	r.Territory = a.territory
	r.OperatorName = a.operator
	r.PartnerName = a.partner
	return r.Normalized()
}

// fixture spans two owners with disjoint territories, three days and a
// handful of hours per service.
func fixture() []models.HourlyRecord {
	catalog := []struct {
		id string
		a  attrs
	}{
		{"1", attrs{"acme", "Games", "in", "jio", "adnet"}},
		{"2", attrs{"acme", "Music", "pk", "zong", "adnet"}},
		{"3", attrs{"globex", "Games", "uk", "ee", "clickco"}},
		{"4", attrs{"globex", "News", "us", "att", "adnet"}},
	}
	days := []string{"2024-01-01", "2024-01-02", "2024-01-03"}

	var out []models.HourlyRecord
	for di, day := range days {
		for ci, c := range catalog {
			for h := 0; h < 24; h += 5 + ci {
				gen := int64((h + 1) * (ci + 2) * (di + 1))
				ver := gen * int64(ci+1) / 5
				out = append(out, recWith(c.id, day, h, gen, ver, c.a))
			}
		}
	}
	return out
}

func key(r models.HourlyRecord) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d|%s", r.AppServiceID, r.DateValue(), r.Hrs, r.PinGenSucCount, r.PinVerSucCount, r.Territory)
}

func multiset(records []models.HourlyRecord) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		out[key(r)]++
	}
	return out
}
