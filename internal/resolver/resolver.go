// Package resolver decides which organization's schedule a user sees.
//
// A pinned preference always wins. In automatic mode the nearest
// organization is looked up from the directory, and the answer is cached
// per user until the user moves beyond the update threshold, the cache
// entry outlives its TTL or the local calendar day changes.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/metrics"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/Nixie-Tech-LLC/minaret/internal/notify"
	"github.com/Nixie-Tech-LLC/minaret/internal/report"
	"github.com/rs/zerolog/log"
)

const (
	DateLayout = "2006-01-02"
	DefaultTTL = 360 * time.Minute

	sideEffectTimeout = 10 * time.Second
)

var (
	// ErrNoLocationNoCache means automatic mode had neither coordinates nor
	// a previous resolution. Retrying with a location fixes it.
	ErrNoLocationNoCache = errors.New("location unavailable and no cached resolution")
	// ErrDirectoryLookup wraps nearest-neighbor failures. It is never cached.
	ErrDirectoryLookup = errors.New("directory lookup failed")
	// ErrNoOrganizationNearby means the directory answered with no results.
	ErrNoOrganizationNearby = errors.New("no organization found nearby")
	ErrInvalidDate          = errors.New("invalid date")
)

type Preferences interface {
	GetPreference(ctx context.Context, userID string) (*model.Preference, error)
}

type Organizations interface {
	GetOrganizationByID(ctx context.Context, id string) (*model.Organization, error)
}

type Schedules interface {
	// Lookup returns nil, nil when the organization has no times for date.
	Lookup(ctx context.Context, orgID, date string) (*model.DailyTable, error)
}

type Directory interface {
	FindNearest(ctx context.Context, lat, lon float64) ([]geo.Neighbor, error)
}

type CacheStore interface {
	Read(ctx context.Context, userID string) (*model.ResolutionCacheEntry, error)
	Write(ctx context.Context, entry model.ResolutionCacheEntry) error
}

// LocationSource supplies a user's live coordinates.
type LocationSource interface {
	Current(ctx context.Context, userID string) (geo.Coordinates, error)
}

// Prefetcher is told about every successful resolution so it can warm
// surrounding dates for the resolved organization.
type Prefetcher interface {
	Activate(userID, orgID string) bool
	Prefetch(ctx context.Context, orgID, today string)
}

type Deps struct {
	Preferences   Preferences
	Organizations Organizations
	Schedules     Schedules
	Directory     Directory
	Cache         CacheStore
	Location      LocationSource // optional
	Topics        notify.TopicSync
	Prefetcher    Prefetcher // optional
}

type Config struct {
	ThresholdMeters float64
	TTL             time.Duration
	// Timezone decides when a calendar day changes and what "today" is.
	Timezone *time.Location
}

type Options struct {
	Date     string           // YYYY-MM-DD, defaults to today
	Override *geo.Coordinates // takes precedence over a live read
}

type Result struct {
	Organization   *model.Organization `json:"organization"`
	Table          *model.DailyTable   `json:"table"` // nil when nothing is posted
	DistanceMeters *int                `json:"distance_meters,omitempty"`
	Mode           model.Mode          `json:"mode"`
	Date           string              `json:"date"`
}

type Resolver struct {
	deps      Deps
	threshold float64
	ttl       time.Duration
	loc       *time.Location
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userWrites

	wg sync.WaitGroup
}

func New(deps Deps, cfg Config) *Resolver {
	if cfg.ThresholdMeters <= 0 {
		cfg.ThresholdMeters = geo.OrgUpdateThresholdMeters
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	if deps.Topics == nil {
		deps.Topics = notify.Noop{}
	}
	return &Resolver{
		deps:        deps,
		threshold:   cfg.ThresholdMeters,
		ttl:         cfg.TTL,
		loc:         cfg.Timezone,
		now:         time.Now,
		users:       make(map[string]*userWrites),
	}
}

// Today is the current date in the resolver's timezone.
func (r *Resolver) Today() string {
	return r.now().In(r.loc).Format(DateLayout)
}

// Resolve picks the organization for userID and loads its table for the
// requested date.
func (r *Resolver) Resolve(ctx context.Context, userID string, opts Options) (*Result, error) {
	date := opts.Date
	if date == "" {
		date = r.Today()
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	pref, err := r.deps.Preferences.GetPreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preference: %w", err)
	}

	var res *Result
	if pref.Mode == model.ModePinned && pref.PinnedOrgID != nil {
		res, err = r.resolvePinned(ctx, userID, *pref.PinnedOrgID, date, opts.Override)
	} else {
		res, err = r.resolveAuto(ctx, userID, date, opts.Override)
	}
	if err != nil {
		metrics.RecordResolution(string(pref.Mode), "error")
		return nil, err
	}
	metrics.RecordResolution(string(res.Mode), "ok")

	r.afterResolve(ctx, userID, pref, res.Organization.ID)
	return res, nil
}

// Wait blocks until background side effects have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) resolvePinned(ctx context.Context, userID, orgID, date string, override *geo.Coordinates) (*Result, error) {
	org, err := r.deps.Organizations.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load pinned organization: %w", err)
	}
	table, err := r.deps.Schedules.Lookup(ctx, org.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	res := &Result{Organization: org, Table: table, Mode: model.ModePinned, Date: date}
	if c, ok := r.coordinates(ctx, userID, override); ok {
		d := geo.RoundMeters(geo.DistanceMeters(c.Lat, c.Lon, org.Latitude, org.Longitude))
		res.DistanceMeters = &d
	}
	return res, nil
}

func (r *Resolver) resolveAuto(ctx context.Context, userID, date string, override *geo.Coordinates) (*Result, error) {
	w, seq := r.begin(userID)
	defer r.finish(userID, w)
	now := r.now()

	entry, err := r.deps.Cache.Read(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("resolution cache read failed, treating as empty")
		entry = nil
	}

	coords, haveCoords := r.coordinates(ctx, userID, override)

	var (
		orgID    string
		distance int
		reused   bool
	)
	switch {
	case !haveCoords:
		if entry == nil {
			return nil, ErrNoLocationNoCache
		}
		metrics.RecordCacheDecision("no_location")
		orgID, distance, reused = entry.LastOrgID, entry.LastDistanceM, true

	default:
		reason := r.invalidation(entry, coords, now)
		if reason == "" {
			metrics.RecordCacheDecision("fresh")
			orgID, distance, reused = entry.LastOrgID, entry.LastDistanceM, true
			break
		}
		metrics.RecordCacheDecision(reason)
		log.Debug().Str("user_id", userID).Str("reason", reason).Msg("refreshing resolution")
		if orgID, distance, err = r.refresh(ctx, userID, w, seq, coords, now); err != nil {
			return nil, err
		}
	}

	org, err := r.deps.Organizations.GetOrganizationByID(ctx, orgID)
	if err != nil {
		if !reused || !haveCoords {
			return nil, fmt.Errorf("load organization: %w", err)
		}
		log.Warn().Err(err).Str("org_id", orgID).Msg("cached organization unavailable, refreshing")
		metrics.RecordCacheDecision("stale_org")
		if orgID, distance, err = r.refresh(ctx, userID, w, seq, coords, now); err != nil {
			return nil, err
		}
		if org, err = r.deps.Organizations.GetOrganizationByID(ctx, orgID); err != nil {
			return nil, fmt.Errorf("load organization: %w", err)
		}
	}

	table, err := r.deps.Schedules.Lookup(ctx, org.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	return &Result{
		Organization:   org,
		Table:          table,
		DistanceMeters: &distance,
		Mode:           model.ModeAuto,
		Date:           date,
	}, nil
}

// refresh asks the directory for the nearest organization and overwrites
// the cache entry, unless a call that started later already wrote it.
func (r *Resolver) refresh(ctx context.Context, userID string, w *userWrites, seq uint64, c geo.Coordinates, now time.Time) (string, int, error) {
	start := time.Now()
	neighbors, err := r.deps.Directory.FindNearest(ctx, c.Lat, c.Lon)
	if err != nil {
		metrics.RecordDirectoryLookup("error", time.Since(start).Seconds())
		return "", 0, fmt.Errorf("%w: %w", ErrDirectoryLookup, err)
	}
	metrics.RecordDirectoryLookup("ok", time.Since(start).Seconds())
	if len(neighbors) == 0 {
		return "", 0, ErrNoOrganizationNearby
	}

	nearest := neighbors[0]
	distance := geo.RoundMeters(nearest.DistanceMeters)

	r.commit(ctx, w, seq, model.ResolutionCacheEntry{
		UserID:         userID,
		LastLat:        c.Lat,
		LastLon:        c.Lon,
		LastOrgID:      nearest.OrgID,
		LastDistanceM:  distance,
		LastResolvedAt: now,
	})
	return nearest.OrgID, distance, nil
}

// commit writes entry unless a later-started call already stored its own.
// Calls that failed or reused the cache never write, so they do not block
// an older successful lookup.
func (r *Resolver) commit(ctx context.Context, w *userWrites, seq uint64, entry model.ResolutionCacheEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq < w.written {
		log.Debug().Str("user_id", entry.UserID).Msg("skipping cache write from superseded resolution")
		return
	}
	if err := r.deps.Cache.Write(ctx, entry); err != nil {
		report.Warn(err, "resolver.cache_write", map[string]string{"user_id": entry.UserID})
		return
	}
	w.written = seq
}

// coordinates returns the override when present, otherwise a live read.
// A failed live read means "no coordinates".
func (r *Resolver) coordinates(ctx context.Context, userID string, override *geo.Coordinates) (geo.Coordinates, bool) {
	if override != nil {
		return *override, override.Valid()
	}
	if r.deps.Location == nil {
		return geo.Coordinates{}, false
	}
	c, err := r.deps.Location.Current(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("no live location")
		return geo.Coordinates{}, false
	}
	return c, c.Valid()
}

func (r *Resolver) afterResolve(ctx context.Context, userID string, pref *model.Preference, orgID string) {
	if p := r.deps.Prefetcher; p != nil {
		p.Activate(userID, orgID)
		p.Prefetch(ctx, orgID, r.Today())
	}

	if pref.Notifications == model.NotifyNone {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		if err := r.deps.Topics.SyncSubscription(ctx, userID, &orgID, pref.Notifications); err != nil {
			report.Warn(err, "resolver.topic_sync", map[string]string{"user_id": userID, "org_id": orgID})
		}
	}()
}

// userWrites orders cache writes for one user. started and inflight are
// guarded by Resolver.mu, written by mu.
type userWrites struct {
	started  uint64
	inflight int

	mu      sync.Mutex
	written uint64
}

// begin numbers an automatic call in start order.
func (r *Resolver) begin(userID string) (*userWrites, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.users[userID]
	if !ok {
		w = &userWrites{}
		r.users[userID] = w
	}
	w.started++
	w.inflight++
	return w, w.started
}

// finish drops the user's bookkeeping once no call is in flight.
func (r *Resolver) finish(userID string, w *userWrites) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.inflight--
	if w.inflight == 0 && r.users[userID] == w {
		delete(r.users, userID)
	}
}
