package model

import "time"

// ResolutionCacheEntry records the latest successful nearest-masjid
// computation for a user. It is overwritten on every re-resolution.
type ResolutionCacheEntry struct {
	UserID         string    `json:"user_id"`
	LastLat        float64   `json:"last_lat"`
	LastLon        float64   `json:"last_lon"`
	LastOrgID      string    `json:"last_org_id"`
	LastDistanceM  int       `json:"last_distance_m"`
	LastResolvedAt time.Time `json:"last_resolved_at"`
}
