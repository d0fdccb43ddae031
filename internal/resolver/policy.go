package resolver

import (
	"math"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

// invalidation returns why the cache entry cannot be reused, or "" when it
// can. Any single condition forces a fresh lookup.
func (r *Resolver) invalidation(entry *model.ResolutionCacheEntry, c geo.Coordinates, now time.Time) string {
	if entry == nil {
		return "missing"
	}
	moved := movedBeyondThreshold(entry, c, r.threshold)
	expired := ttlExpired(entry, now, r.ttl)
	newDay := dayChanged(entry, now, r.loc)

	switch {
	case moved:
		return "moved"
	case expired:
		return "ttl"
	case newDay:
		return "day"
	}
	return ""
}

// movedBeyondThreshold treats a missing entry as infinitely far away.
func movedBeyondThreshold(entry *model.ResolutionCacheEntry, c geo.Coordinates, threshold float64) bool {
	if entry == nil {
		return true
	}
	d := geo.DistanceMeters(entry.LastLat, entry.LastLon, c.Lat, c.Lon)
	return math.IsNaN(d) || d > threshold
}

func ttlExpired(entry *model.ResolutionCacheEntry, now time.Time, ttl time.Duration) bool {
	if entry == nil || entry.LastResolvedAt.IsZero() {
		return true
	}
	return now.Sub(entry.LastResolvedAt) > ttl
}

// dayChanged compares calendar dates in loc.
func dayChanged(entry *model.ResolutionCacheEntry, now time.Time, loc *time.Location) bool {
	if entry == nil || entry.LastResolvedAt.IsZero() {
		return true
	}
	y1, m1, d1 := entry.LastResolvedAt.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}
