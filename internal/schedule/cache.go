// Package schedule caches organization prayer tables by date so that day
// navigation is served from memory.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/metrics"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/Nixie-Tech-LLC/minaret/internal/report"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DateLayout is the calendar date key format.
const DateLayout = "2006-01-02"

const prefetchTimeout = 15 * time.Second

type Source interface {
	GetDailyTable(ctx context.Context, orgID, date string) (*model.DailyTable, error)
	GetDailyTableRange(ctx context.Context, orgID, start, end string) ([]model.DailyTable, error)
}

// Window is the number of days around "today" that a prefetch covers.
type Window struct {
	Back    int
	Forward int
}

var DefaultWindow = Window{Back: 2, Forward: 14}

// Bounds returns the first and last date of the window around today.
func (w Window) Bounds(today string) (string, string, error) {
	day, err := time.Parse(DateLayout, today)
	if err != nil {
		return "", "", fmt.Errorf("invalid date %q: %w", today, err)
	}
	return day.AddDate(0, 0, -w.Back).Format(DateLayout), day.AddDate(0, 0, w.Forward).Format(DateLayout), nil
}

// RangeCache maps organization id to date to table. Organizations are
// bounded by an LRU. Merges never remove unrelated dates; an organization's
// dates are only dropped when no user has it active any more or when it is
// evicted.
type RangeCache struct {
	source Source
	window Window

	mu     sync.RWMutex
	orgs   *lru.Cache[string, map[string]*model.DailyTable]
	active map[string]string // user id -> org id

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewRangeCache(source Source, window Window, maxOrgs int) (*RangeCache, error) {
	orgs, err := lru.New[string, map[string]*model.DailyTable](maxOrgs)
	if err != nil {
		return nil, err
	}
	return &RangeCache{
		source: source,
		window: window,
		orgs:   orgs,
		active: make(map[string]string),
	}, nil
}

// Activate records orgID as the user's current organization and reports
// whether it differs from the previous one. The previous organization's
// dates are dropped when nobody else is viewing it.
func (c *RangeCache) Activate(userID, orgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.active[userID]
	if ok && prev == orgID {
		return false
	}
	c.active[userID] = orgID
	if ok && !c.inUseLocked(prev) {
		c.orgs.Remove(prev)
		log.Debug().Str("user_id", userID).Str("org_id", prev).Msg("dropped schedule window")
	}
	return true
}

// Deactivate forgets the user's organization.
func (c *RangeCache) Deactivate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.active[userID]
	if !ok {
		return
	}
	delete(c.active, userID)
	if !c.inUseLocked(prev) {
		c.orgs.Remove(prev)
		log.Debug().Str("user_id", userID).Str("org_id", prev).Msg("dropped schedule window")
	}
}

func (c *RangeCache) inUseLocked(orgID string) bool {
	for _, id := range c.active {
		if id == orgID {
			return true
		}
	}
	return false
}

// ActiveOrgs lists organizations currently viewed by at least one user.
func (c *RangeCache) ActiveOrgs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(c.active))
	out := make([]string, 0, len(c.active))
	for _, id := range c.active {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Get returns the cached table for an organization and date.
func (c *RangeCache) Get(orgID, date string) (*model.DailyTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	days, ok := c.orgs.Get(orgID)
	if !ok {
		return nil, false
	}
	t, ok := days[date]
	return t, ok
}

// Lookup reads through the cache. A nil table with a nil error means the
// organization has no posted times for the date.
func (c *RangeCache) Lookup(ctx context.Context, orgID, date string) (*model.DailyTable, error) {
	if t, ok := c.Get(orgID, date); ok {
		return t, nil
	}
	t, err := c.source.GetDailyTable(ctx, orgID, date)
	if err != nil {
		return nil, err
	}
	if t != nil {
		c.merge(orgID, []model.DailyTable{*t})
	}
	return t, nil
}

// Prefetch warms the window around today in the background. Failures are
// logged and otherwise ignored.
func (c *RangeCache) Prefetch(ctx context.Context, orgID, today string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), prefetchTimeout)
		defer cancel()

		if err := c.Warm(ctx, orgID, today); err != nil {
			metrics.RecordPrefetch("error")
			report.Warn(err, "schedule.prefetch", map[string]string{"org_id": orgID, "date": today})
			return
		}
		metrics.RecordPrefetch("ok")
	}()
}

// Warm fetches the window around today and merges it. Concurrent calls for
// the same organization and day share one fetch.
func (c *RangeCache) Warm(ctx context.Context, orgID, today string) error {
	start, end, err := c.window.Bounds(today)
	if err != nil {
		return err
	}

	_, err, _ = c.group.Do(orgID+"|"+today, func() (interface{}, error) {
		tables, err := c.source.GetDailyTableRange(ctx, orgID, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetch %s..%s for %s: %w", start, end, orgID, err)
		}
		c.merge(orgID, tables)
		log.Debug().Str("org_id", orgID).Str("start", start).Str("end", end).Int("days", len(tables)).Msg("warmed schedule window")
		return nil, nil
	})
	return err
}

// Wait blocks until in-flight prefetches finish.
func (c *RangeCache) Wait() {
	c.wg.Wait()
}

func (c *RangeCache) merge(orgID string, tables []model.DailyTable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	days, ok := c.orgs.Get(orgID)
	if !ok {
		days = make(map[string]*model.DailyTable, len(tables))
		c.orgs.Add(orgID, days)
	}
	for i := range tables {
		t := tables[i]
		days[t.Date] = &t
	}
}
