package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/rs/zerolog/log"
)

const dailyTableColumns = `
	org_id, to_char(date, 'YYYY-MM-DD') AS date,
	fajr_athan, fajr_iqama, sunrise,
	dhuhr_athan, dhuhr_iqama,
	asr_athan, asr_iqama,
	maghrib_athan, maghrib_iqama,
	isha_athan, isha_iqama,
	tomorrow_fajr_athan, tomorrow_fajr_iqama`

// GetDailyTable returns nil, nil when the organization posted no times for date.
func (s *pgStore) GetDailyTable(ctx context.Context, orgID, date string) (*model.DailyTable, error) {
	var row model.DailyTableRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+dailyTableColumns+`
		FROM daily_schedules
		WHERE org_id = $1 AND date = $2::date;
		`, orgID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("org_id", orgID).Str("date", date).Msg("GetDailyTable failed")
		return nil, err
	}
	table := row.Table()
	return &table, nil
}

// GetDailyTableRange returns the posted tables in [start, end], ordered by date.
func (s *pgStore) GetDailyTableRange(ctx context.Context, orgID, start, end string) ([]model.DailyTable, error) {
	var rows []model.DailyTableRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+dailyTableColumns+`
		FROM daily_schedules
		WHERE org_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date;
		`, orgID, start, end)
	if err != nil {
		log.Error().Err(err).Str("org_id", orgID).Str("start", start).Str("end", end).Msg("GetDailyTableRange failed")
		return nil, err
	}
	out := make([]model.DailyTable, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Table())
	}
	return out, nil
}
