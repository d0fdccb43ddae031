package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Refresher re-warms the windows of active organizations after local
// midnight so the new "today" and its neighbors are already cached.
type Refresher struct {
	cache *RangeCache
	loc   *time.Location
	cron  *cron.Cron
	now   func() time.Time
	jobs  []refreshJob
}

type refreshJob struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRefresher(cache *RangeCache, loc *time.Location) *Refresher {
	return &Refresher{
		cache: cache,
		loc:   loc,
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		now:   time.Now,
	}
}

// Before adds a job run ahead of the window warm-up on every refresh.
// Register jobs before Start.
func (r *Refresher) Before(name string, fn func(ctx context.Context) error) {
	r.jobs = append(r.jobs, refreshJob{name: name, fn: fn})
}

func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc("5 0 0 * * *", r.run); err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Str("timezone", r.loc.String()).Msg("schedule refresher started")
	return nil
}

func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("schedule refresher stopped")
}

func (r *Refresher) run() {
	for _, job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		err := job.fn(ctx)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("job", job.name).Msg("refresh job failed")
		}
	}

	today := r.now().In(r.loc).Format(DateLayout)
	orgs := r.cache.ActiveOrgs()

	warmed := 0
	for _, orgID := range orgs {
		ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		err := r.cache.Warm(ctx, orgID, today)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("org_id", orgID).Msg("failed to re-warm schedule window")
			continue
		}
		warmed++
	}
	log.Info().Int("warmed", warmed).Int("active", len(orgs)).Str("date", today).Msg("refreshed schedule windows")
}
