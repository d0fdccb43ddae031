// Package directory answers nearest-organization queries from an in-memory
// index of the organization store.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/rs/zerolog/log"
)

// searchRadiusMeters sizes the first ring of index cells a query scans.
const searchRadiusMeters = 50_000

type OrganizationLister interface {
	ListOrganizations(ctx context.Context) ([]model.Organization, error)
}

type Service struct {
	store  OrganizationLister
	index  *geo.Index
	limit  int
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
}

// NewService builds a directory that reloads its index when it is older
// than maxAge. A zero maxAge loads once and only reloads on Refresh.
func NewService(store OrganizationLister, maxAge time.Duration) *Service {
	return &Service{
		store:  store,
		index:  geo.NewIndex(searchRadiusMeters),
		limit:  5,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// FindNearest returns organizations ordered ascending by distance.
func (s *Service) FindNearest(ctx context.Context, lat, lon float64) ([]geo.Neighbor, error) {
	if !geo.IsValidLatLon(lat, lon) {
		return nil, fmt.Errorf("invalid coordinates %f,%f", lat, lon)
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.index.Nearest(lat, lon, s.limit), nil
}

// Refresh reloads the index from the store.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loadedAt.IsZero() && (s.maxAge == 0 || s.now().Sub(s.loadedAt) < s.maxAge) {
		return nil
	}
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) error {
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("load organizations: %w", err)
	}

	points := make([]geo.Point, 0, len(orgs))
	for _, o := range orgs {
		points = append(points, geo.Point{ID: o.ID, Lat: o.Latitude, Lon: o.Longitude})
	}
	skipped := s.index.Load(points)
	s.loadedAt = s.now()

	log.Info().Int("organizations", len(points)-skipped).Int("skipped", skipped).Msg("loaded directory index")
	return nil
}
