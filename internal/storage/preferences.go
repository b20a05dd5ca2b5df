package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/inapp-report/internal/models"
)

// PreferenceStore remembers the last filter an operator applied on each
// tab. Load returns an empty spec when nothing was saved.
type PreferenceStore interface {
	Load(ctx context.Context, tab models.Tab) (models.FilterSpec, error)
	Save(ctx context.Context, tab models.Tab, spec models.FilterSpec) error
}

// Persisted field keys. Every backend stores a spec under these names.
const (
	prefKeyServiceOwner = "serviceOwner"
	prefKeyFrom         = "dateFrom"
	prefKeyTo           = "dateTo"
	prefKeyServiceName  = "serviceName"
	prefKeyTerritory    = "territory"
	prefKeyOperator     = "operator"
	prefKeyPartnerName  = "partnerName"
	prefKeyAppServiceID = "appServiceId"
)

// specToFields flattens a spec to its persisted keys, empty values
// included so a save clears what it does not set.
func specToFields(spec models.FilterSpec) map[string]string {
	return map[string]string{
		prefKeyServiceOwner: spec.ServiceOwner,
		prefKeyFrom:         spec.DateRange.From,
		prefKeyTo:           spec.DateRange.To,
		prefKeyServiceName:  spec.ServiceName,
		prefKeyTerritory:    spec.Territory,
		prefKeyOperator:     spec.Operator,
		prefKeyPartnerName:  spec.PartnerName,
		prefKeyAppServiceID: spec.AppServiceID,
	}
}

func specFromFields(fields map[string]string) models.FilterSpec {
	return models.FilterSpec{
		ServiceOwner: fields[prefKeyServiceOwner],
		DateRange: models.DateRange{
			From: fields[prefKeyFrom],
			To:   fields[prefKeyTo],
		},
		ServiceName:  fields[prefKeyServiceName],
		Territory:    fields[prefKeyTerritory],
		Operator:     fields[prefKeyOperator],
		PartnerName:  fields[prefKeyPartnerName],
		AppServiceID: fields[prefKeyAppServiceID],
	}
}

// InMemoryPreferenceStore keeps preferences for the life of the process.
type InMemoryPreferenceStore struct {
	mu    sync.RWMutex
	specs map[models.Tab]models.FilterSpec
}

func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{
		specs: make(map[models.Tab]models.FilterSpec),
	}
}

func (s *InMemoryPreferenceStore) Load(_ context.Context, tab models.Tab) (models.FilterSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.specs[tab], nil
}

func (s *InMemoryPreferenceStore) Save(_ context.Context, tab models.Tab, spec models.FilterSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[tab] = spec
	return nil
}
