package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
)

// pgQuerier is the slice of *pgxpool.Pool the preference store uses.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const preferencesSchema = `
	CREATE TABLE IF NOT EXISTS filter_preferences (
		tab            TEXT PRIMARY KEY,
		service_owner  TEXT NOT NULL DEFAULT '',
		date_from      TEXT NOT NULL DEFAULT '',
		date_to        TEXT NOT NULL DEFAULT '',
		service_name   TEXT NOT NULL DEFAULT '',
		territory      TEXT NOT NULL DEFAULT '',
		operator       TEXT NOT NULL DEFAULT '',
		partner_name   TEXT NOT NULL DEFAULT '',
		app_service_id TEXT NOT NULL DEFAULT '',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// PostgresPreferenceStore keeps one row per tab in filter_preferences.
type PostgresPreferenceStore struct {
	db pgQuerier
}

func NewPostgresPreferenceStore(db pgQuerier) *PostgresPreferenceStore {
	return &PostgresPreferenceStore{db: db}
}

// EnsureSchema creates the preferences table when it does not exist.
func (s *PostgresPreferenceStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, preferencesSchema); err != nil {
		return errors.Wrap(err, "create filter_preferences")
	}
	return nil
}

func (s *PostgresPreferenceStore) Load(ctx context.Context, tab models.Tab) (models.FilterSpec, error) {
	var spec models.FilterSpec
	err := s.db.QueryRow(ctx, `
		SELECT service_owner, date_from, date_to, service_name,
			   territory, operator, partner_name, app_service_id
		FROM filter_preferences WHERE tab = $1
	`, string(tab)).Scan(
		&spec.ServiceOwner, &spec.DateRange.From, &spec.DateRange.To, &spec.ServiceName,
		&spec.Territory, &spec.Operator, &spec.PartnerName, &spec.AppServiceID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.FilterSpec{}, nil
	}
	if err != nil {
		return models.FilterSpec{}, errors.Wrap(err, "load preferences")
	}
	return spec, nil
}

func (s *PostgresPreferenceStore) Save(ctx context.Context, tab models.Tab, spec models.FilterSpec) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO filter_preferences (tab, service_owner, date_from, date_to, service_name,
			territory, operator, partner_name, app_service_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (tab) DO UPDATE SET
			service_owner = EXCLUDED.service_owner,
			date_from = EXCLUDED.date_from,
			date_to = EXCLUDED.date_to,
			service_name = EXCLUDED.service_name,
			territory = EXCLUDED.territory,
			operator = EXCLUDED.operator,
			partner_name = EXCLUDED.partner_name,
			app_service_id = EXCLUDED.app_service_id,
			updated_at = EXCLUDED.updated_at
	`, string(tab), spec.ServiceOwner, spec.DateRange.From, spec.DateRange.To, spec.ServiceName,
		spec.Territory, spec.Operator, spec.PartnerName, spec.AppServiceID)
	if err != nil {
		return errors.Wrap(err, "save preferences")
	}
	return nil
}
