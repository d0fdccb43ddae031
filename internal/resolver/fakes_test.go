package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

var errNotFound = errors.New("not found")

type fakePrefs struct {
	pref model.Preference
}

func (f *fakePrefs) GetPreference(_ context.Context, userID string) (*model.Preference, error) {
	p := f.pref
	p.UserID = userID
	return &p, nil
}

type fakeOrgs struct {
	orgs map[string]model.Organization
}

func (f *fakeOrgs) GetOrganizationByID(_ context.Context, id string) (*model.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, errNotFound
	}
	return &o, nil
}

type fakeSchedules struct {
	tables map[string]*model.DailyTable // org|date
}

func (f *fakeSchedules) Lookup(_ context.Context, orgID, date string) (*model.DailyTable, error) {
	return f.tables[orgID+"|"+date], nil
}

type spyDirectory struct {
	mu        sync.Mutex
	neighbors []geo.Neighbor
	err       error
	calls     int
	// block, when set, is waited on before answering.
	block chan struct{}
}

func (d *spyDirectory) FindNearest(context.Context, float64, float64) ([]geo.Neighbor, error) {
	d.mu.Lock()
	d.calls++
	block := d.block
	neighbors, err := d.neighbors, d.err
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	return neighbors, err
}

func (d *spyDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type spyCache struct {
	mu     sync.Mutex
	entry  *model.ResolutionCacheEntry
	reads  int
	writes int
}

func (c *spyCache) Read(context.Context, string) (*model.ResolutionCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.entry == nil {
		return nil, nil
	}
	e := *c.entry
	return &e, nil
}

func (c *spyCache) Write(_ context.Context, e model.ResolutionCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.entry = &e
	return nil
}

type fakeLocation struct {
	coords geo.Coordinates
	err    error
}

func (f *fakeLocation) Current(context.Context, string) (geo.Coordinates, error) {
	return f.coords, f.err
}

type syncCall struct {
	userID string
	orgID  string
	level  model.NotificationLevel
}

type spyTopics struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (s *spyTopics) SyncSubscription(_ context.Context, userID string, orgID *string, level model.NotificationLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, syncCall{userID: userID, orgID: *orgID, level: level})
	return s.err
}

type spyPrefetcher struct {
	mu        sync.Mutex
	activated []string
	prefetch  []string
}

func (p *spyPrefetcher) Activate(_, orgID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activated = append(p.activated, orgID)
	return true
}

func (p *spyPrefetcher) Prefetch(_ context.Context, orgID, today string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefetch = append(p.prefetch, orgID+"|"+today)
}

func (r *Resolver) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
