package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

func (s *pgStore) GetOrganizationByID(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	err := s.db.GetContext(ctx, &org, `
		SELECT id, name, address, latitude, longitude, timezone
		FROM organizations
		WHERE id = $1;
		`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
		}
		log.Error().Err(err).Str("org_id", id).Msg("GetOrganizationByID failed")
		return nil, err
	}
	return &org, nil
}

func (s *pgStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	var out []model.Organization
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, name, address, latitude, longitude, timezone
		FROM organizations
		WHERE active = true
		ORDER BY id;
		`)
	if err != nil {
		log.Error().Err(err).Msg("ListOrganizations failed")
		return nil, err
	}
	return out, nil
}
