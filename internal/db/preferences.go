package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/rs/zerolog/log"
)

// GetPreference returns the stored preference, or the default auto
// preference for users that never saved one.
func (s *pgStore) GetPreference(ctx context.Context, userID string) (*model.Preference, error) {
	var p model.Preference
	err := s.db.GetContext(ctx, &p, `
		SELECT user_id, mode, pinned_org_id, notifications
		FROM user_preferences
		WHERE user_id = $1;
		`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := model.DefaultPreference(userID)
			return &def, nil
		}
		log.Error().Err(err).Str("user_id", userID).Msg("GetPreference failed")
		return nil, err
	}
	return &p, nil
}

func (s *pgStore) SetPreference(ctx context.Context, pref model.Preference) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO user_preferences (user_id, mode, pinned_org_id, notifications, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (user_id) DO UPDATE
	   SET mode = EXCLUDED.mode,
	       pinned_org_id = EXCLUDED.pinned_org_id,
	       notifications = EXCLUDED.notifications,
	       updated_at = now();`,
		pref.UserID, pref.Mode, pref.PinnedOrgID, pref.Notifications)
	if err != nil {
		log.Error().Err(err).Str("user_id", pref.UserID).Msg("SetPreference failed")
	}
	return err
}
