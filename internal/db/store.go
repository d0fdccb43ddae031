// exposes a Store interface that is passed to services w/ param requirements
package db

import (
	"context"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/jmoiron/sqlx"
)

type Store interface {
	// organization functions
	GetOrganizationByID(ctx context.Context, id string) (*model.Organization, error)
	ListOrganizations(ctx context.Context) ([]model.Organization, error)

	// schedule functions
	GetDailyTable(ctx context.Context, orgID, date string) (*model.DailyTable, error)
	GetDailyTableRange(ctx context.Context, orgID, start, end string) ([]model.DailyTable, error)

	// preference functions
	GetPreference(ctx context.Context, userID string) (*model.Preference, error)
	SetPreference(ctx context.Context, pref model.Preference) error
}

type pgStore struct {
	db *sqlx.DB
}

// compile-time check that pgStore implements Store
var _ Store = (*pgStore)(nil)

func NewStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}
