package funnel

import (
	"testing"

	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeClearsStaleChild(t *testing.T) {
	ev := NewEvaluator(DayKeyer{})

	spec := models.FilterSpec{ServiceOwner: "acme", Territory: "UK"}
	res := ev.Cascade(fixture(), spec, models.TabOwner, models.FieldServiceOwner)

	assert.Equal(t, "ACME", res.Spec.ServiceOwner)
	assert.Empty(t, res.Spec.Territory)
	assert.Equal(t, []models.Field{models.FieldTerritory}, res.Cleared)
	assert.Equal(t, []string{"IN", "PK"}, res.Options[models.FieldTerritory])
	// The owner list stays whole so the user can switch back.
	assert.Equal(t, []string{"ACME", "GLOBEX"}, res.Options[models.FieldServiceOwner])
}

func TestCascadeChangedFieldWins(t *testing.T) {
	ev := NewEvaluator(DayKeyer{})

	spec := models.FilterSpec{ServiceOwner: "acme", Territory: "UK"}
	res := ev.Cascade(fixture(), spec, models.TabOwner, models.FieldTerritory)

	assert.Equal(t, "UK", res.Spec.Territory)
	assert.Empty(t, res.Spec.ServiceOwner)
	assert.Equal(t, []models.Field{models.FieldServiceOwner}, res.Cleared)
	assert.Equal(t, []string{"GLOBEX"}, res.Options[models.FieldServiceOwner])
	assert.Equal(t, []string{"EE"}, res.Options[models.FieldOperator])
}

func TestCascadePartnerTab(t *testing.T) {
	ev := NewEvaluator(DayKeyer{})

	spec := models.FilterSpec{
		PartnerName: "clickco",
		ServiceName: "news",
		DateRange:   models.DateRange{From: "2024-01-01", To: "2024-01-03"},
	}
	res := ev.Cascade(fixture(), spec, models.TabPartner, "")

	assert.Equal(t, "CLICKCO", res.Spec.PartnerName)
	assert.Empty(t, res.Spec.ServiceName)
	assert.Equal(t, spec.DateRange, res.Spec.DateRange)
	assert.Equal(t, []string{"GAMES"}, res.Options[models.FieldServiceName])
	assert.Equal(t, []string{"UK"}, res.Options[models.FieldTerritory])
}

func TestCascadeKeepsConsistentSelection(t *testing.T) {
	ev := NewEvaluator(DayKeyer{})
	records := fixture()

	spec := models.FilterSpec{ServiceOwner: "globex", ServiceName: "games", Territory: "uk", Operator: "ee"}
	res := ev.Cascade(records, spec, models.TabOwner, models.FieldServiceName)

	assert.Empty(t, res.Cleared)
	assert.Equal(t, spec.Normalized(), res.Spec)
	require.NotEmpty(t, ev.Apply(records, res.Spec))
}

func TestCascadeResultIsSatisfiable(t *testing.T) {
	ev := NewEvaluator(DayKeyer{})
	records := fixture()

	specs := []models.FilterSpec{
		{ServiceOwner: "acme", PartnerName: "clickco"},
		{Territory: "us", Operator: "jio", ServiceName: "music"},
		{ServiceOwner: "nobody"},
		{PartnerName: "adnet", Territory: "uk"},
	}
	for _, tab := range []models.Tab{models.TabOwner, models.TabPartner} {
		for _, spec := range specs {
			res := ev.Cascade(records, spec, tab, "")
			for _, f := range models.OptionFields {
				if v := res.Spec.Get(f); v != "" {
					assert.Contains(t, res.Options[f], v, "tab %s field %s", tab, f)
				}
			}
			if !res.Spec.IsEmpty() {
				assert.NotEmpty(t, ev.Apply(records, res.Spec), "tab %s spec %+v", tab, res.Spec)
			}
		}
	}
}

func TestCascadeOrder(t *testing.T) {
	assert.Equal(t,
		[]models.Field{models.FieldOperator, models.FieldServiceOwner, models.FieldServiceName, models.FieldTerritory, models.FieldPartnerName},
		cascadeOrder(models.TabOwner, models.FieldOperator))
	assert.Equal(t,
		[]models.Field{models.FieldPartnerName, models.FieldTerritory, models.FieldOperator, models.FieldServiceName, models.FieldServiceOwner},
		cascadeOrder(models.TabPartner, models.FieldAppServiceID))
}
