package resolver

import (
	"math"
	"testing"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMovedBeyondThreshold(t *testing.T) {
	entry := &model.ResolutionCacheEntry{LastLat: 41.8781, LastLon: -87.6298}

	assert.True(t, movedBeyondThreshold(nil, loop, 500))
	assert.False(t, movedBeyondThreshold(entry, loop, 500))
	assert.True(t, movedBeyondThreshold(entry, evanston, 500))

	// 0.0045 degrees of latitude is roughly 500 m.
	near := geo.Coordinates{Lat: entry.LastLat + 0.0044, Lon: entry.LastLon}
	far := geo.Coordinates{Lat: entry.LastLat + 0.0046, Lon: entry.LastLon}
	assert.False(t, movedBeyondThreshold(entry, near, 500))
	assert.True(t, movedBeyondThreshold(entry, far, 500))

	assert.True(t, movedBeyondThreshold(entry, geo.Coordinates{Lat: math.NaN()}, 500))
}

func TestTTLExpired(t *testing.T) {
	ttl := 360 * time.Minute
	assert.True(t, ttlExpired(nil, fixedNow, ttl))
	assert.True(t, ttlExpired(&model.ResolutionCacheEntry{}, fixedNow, ttl))

	at := func(ago time.Duration) *model.ResolutionCacheEntry {
		return &model.ResolutionCacheEntry{LastResolvedAt: fixedNow.Add(-ago)}
	}
	assert.False(t, ttlExpired(at(359*time.Minute), fixedNow, ttl))
	assert.False(t, ttlExpired(at(360*time.Minute), fixedNow, ttl))
	assert.True(t, ttlExpired(at(361*time.Minute), fixedNow, ttl))
}

func TestDayChanged(t *testing.T) {
	at := func(ts time.Time) *model.ResolutionCacheEntry {
		return &model.ResolutionCacheEntry{LastResolvedAt: ts}
	}
	assert.True(t, dayChanged(nil, fixedNow, chicago))
	assert.False(t, dayChanged(at(fixedNow.Add(-11*time.Hour)), fixedNow, chicago))
	assert.True(t, dayChanged(at(fixedNow.Add(-13*time.Hour)), fixedNow, chicago))

	// 01:00 UTC on Aug 6 is still Aug 5 in Chicago.
	utcNextDay := time.Date(2025, 8, 6, 1, 0, 0, 0, time.UTC)
	assert.False(t, dayChanged(at(fixedNow), utcNextDay, chicago))
	assert.True(t, dayChanged(at(fixedNow), utcNextDay, time.UTC))
}

func TestInvalidationReasons(t *testing.T) {
	r := New(Deps{}, Config{Timezone: chicago})
	fresh := &model.ResolutionCacheEntry{LastLat: loop.Lat, LastLon: loop.Lon, LastResolvedAt: fixedNow.Add(-time.Minute)}

	assert.Equal(t, "missing", r.invalidation(nil, loop, fixedNow))
	assert.Equal(t, "", r.invalidation(fresh, loop, fixedNow))
	assert.Equal(t, "moved", r.invalidation(fresh, evanston, fixedNow))
	assert.Equal(t, "ttl", r.invalidation(fresh, loop, fixedNow.Add(7*time.Hour)))
}
