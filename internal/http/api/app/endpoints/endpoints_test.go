package endpoints

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/minaret/internal/db"
	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	"github.com/Nixie-Tech-LLC/minaret/internal/tracking"
)

const secret = "endpoint-secret"

func str(s string) *string { return &s }

func dhuhrTable() *model.DailyTable {
	return &model.DailyTable{
		OrgID:        "org-loop",
		Date:         "2025-08-05",
		Fajr:         model.EventTimes{Announcement: str("04:30"), Assembly: str("05:00")},
		Sunrise:      model.EventTimes{Announcement: str("05:55")},
		Dhuhr:        model.EventTimes{Announcement: str("12:30"), Assembly: str("12:45")},
		Asr:          model.EventTimes{Announcement: str("16:40"), Assembly: str("17:00")},
		Maghrib:      model.EventTimes{Announcement: str("20:05"), Assembly: str("20:10")},
		Isha:         model.EventTimes{Announcement: str("21:30"), Assembly: str("21:45")},
		TomorrowFajr: model.EventTimes{Announcement: str("04:31")},
	}
}

type fakeResolver struct {
	mu    sync.Mutex
	res   *resolver.Result
	err   error
	opts  []resolver.Options
	today string
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, opts resolver.Options) (*resolver.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	if opts.Date != "" {
		res.Date = opts.Date
	}
	return &res, nil
}

func (f *fakeResolver) Today() string { return f.today }

type fakeSchedules struct {
	cached  map[string]*model.DailyTable
	stored  map[string]*model.DailyTable
	lookups int
}

func (f *fakeSchedules) Get(orgID, date string) (*model.DailyTable, bool) {
	t, ok := f.cached[orgID+"|"+date]
	return t, ok
}

func (f *fakeSchedules) Lookup(_ context.Context, orgID, date string) (*model.DailyTable, error) {
	f.lookups++
	return f.stored[orgID+"|"+date], nil
}

type fakeTracker struct {
	mu        sync.Mutex
	positions []geo.Coordinates
	resumes   []*geo.Coordinates
	granted   []bool
	ended     []string
	state     tracking.State
}

func (f *fakeTracker) Position(_ context.Context, _ string, c geo.Coordinates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, c)
	return nil
}

func (f *fakeTracker) Resume(_ context.Context, _ string, c *geo.Coordinates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, c)
	return nil
}

func (f *fakeTracker) Permission(_ context.Context, _ string, granted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = append(f.granted, granted)
	return nil
}

func (f *fakeTracker) State(context.Context, string) (tracking.State, error) {
	return f.state, nil
}

func (f *fakeTracker) End(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, userID)
}

type fakePrefStore struct {
	mu    sync.Mutex
	prefs map[string]model.Preference
	orgs  map[string]bool
}

func (f *fakePrefStore) GetPreference(_ context.Context, userID string) (*model.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prefs[userID]; ok {
		return &p, nil
	}
	p := model.DefaultPreference(userID)
	return &p, nil
}

func (f *fakePrefStore) SetPreference(_ context.Context, pref model.Preference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[pref.UserID] = pref
	return nil
}

func (f *fakePrefStore) GetOrganizationByID(_ context.Context, id string) (*model.Organization, error) {
	if !f.orgs[id] {
		return nil, fmt.Errorf("organization %s: %w", id, db.ErrNotFound)
	}
	return &model.Organization{ID: id}, nil
}

type spyTopics struct {
	calls chan *string
}

func (s *spyTopics) SyncSubscription(_ context.Context, _ string, orgID *string, _ model.NotificationLevel) error {
	s.calls <- orgID
	return nil
}

type fixture struct {
	router    *gin.Engine
	resolver  *fakeResolver
	schedules *fakeSchedules
	tracker   *fakeTracker
	prefs     *fakePrefStore
	topics    *spyTopics
	token     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	now := time.Date(2025, 8, 5, 12, 40, 0, 0, chicago)

	f := &fixture{
		resolver: &fakeResolver{
			today: "2025-08-05",
			res: &resolver.Result{
				Organization:   &model.Organization{ID: "org-loop", Name: "Downtown Masjid", Timezone: "America/Chicago"},
				Table:          dhuhrTable(),
				DistanceMeters: func() *int { d := 210; return &d }(),
				Mode:           model.ModeAuto,
				Date:           "2025-08-05",
			},
		},
		schedules: &fakeSchedules{
			cached: map[string]*model.DailyTable{"org-loop|2025-08-06": {OrgID: "org-loop", Date: "2025-08-06"}},
			stored: map[string]*model.DailyTable{"org-loop|2025-07-01": {OrgID: "org-loop", Date: "2025-07-01"}},
		},
		tracker: &fakeTracker{},
		prefs:   &fakePrefStore{prefs: map[string]model.Preference{}, orgs: map[string]bool{"org-evanston": true}},
		topics:  &spyTopics{calls: make(chan *string, 4)},
	}

	resolveCtl := NewResolveController(f.resolver)
	resolveCtl.now = func() time.Time { return now }

	f.router = gin.New()
	api.MountGroup(f.router, api.GroupConfig{Prefix: "/api/app", Auth: true, SecretKey: secret},
		api.ModuleFunc(func(c *api.Controller) {
			c.GET("/resolve", resolveCtl.resolve)
			c.GET("/next-event", resolveCtl.nextEvent)
			c.GET("/countdown/stream", resolveCtl.streamCountdown)
		}),
		ScheduleModule(f.schedules, f.resolver),
		TrackingModule(f.tracker),
		PreferenceModule(f.prefs, f.topics),
	)

	f.token, err = middleware.GenerateJWT("user-1", secret, time.Hour)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestResolveEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/app/resolve", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Organization   model.Organization `json:"organization"`
		DistanceMeters int                `json:"distance_meters"`
		NextEvent      struct {
			Name      string `json:"name"`
			Kind      string `json:"kind"`
			Time      string `json:"time"`
			Countdown string `json:"countdown"`
			Seconds   int64  `json:"seconds"`
		} `json:"next_event"`
	}
	decode(t, w, &body)
	assert.Equal(t, "org-loop", body.Organization.ID)
	assert.Equal(t, 210, body.DistanceMeters)
	assert.Equal(t, "Dhuhr", body.NextEvent.Name)
	assert.Equal(t, "assembly", body.NextEvent.Kind)
	assert.Equal(t, "12:45", body.NextEvent.Time)
	assert.Equal(t, "5m 0s", body.NextEvent.Countdown)
	assert.Equal(t, int64(300), body.NextEvent.Seconds)
}

func TestResolveEndpointPassesOverrideAndDate(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/app/resolve?lat=42.0451&lon=-87.6877&date=2025-08-09", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "next_event")

	require.Len(t, f.resolver.opts, 1)
	assert.Equal(t, "2025-08-09", f.resolver.opts[0].Date)
	assert.Equal(t, &geo.Coordinates{Lat: 42.0451, Lon: -87.6877}, f.resolver.opts[0].Override)
}

func TestResolveEndpointErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		path   string
		status int
		code   string
	}{
		{"no location", resolver.ErrNoLocationNoCache, "/api/app/resolve", http.StatusConflict, "location_required"},
		{"directory down", fmt.Errorf("%w: timeout", resolver.ErrDirectoryLookup), "/api/app/resolve", http.StatusBadGateway, "directory_unavailable"},
		{"nothing nearby", resolver.ErrNoOrganizationNearby, "/api/app/resolve", http.StatusNotFound, "no_organization"},
		{"bad date", resolver.ErrInvalidDate, "/api/app/resolve?date=tomorrow", http.StatusBadRequest, "invalid_date"},
		{"bad lat", nil, "/api/app/resolve?lat=north&lon=1", http.StatusBadRequest, "bad_request"},
		{"out of range", nil, "/api/app/resolve?lat=91&lon=1", http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.resolver.err = tc.err

			w := f.do(http.MethodGet, tc.path, "")
			assert.Equal(t, tc.status, w.Code)
			var body struct {
				Code string `json:"code"`
			}
			decode(t, w, &body)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestNextEventEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/app/next-event", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"countdown":"5m 0s"`)

	f.resolver.res.Table = nil
	w = f.do(http.MethodGet, "/api/app/next-event", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"next_event":null`)
}

func TestScheduleEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/app/organizations/org-loop/schedule?date=2025-08-06", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
	assert.Equal(t, 0, f.schedules.lookups)

	w = f.do(http.MethodGet, "/api/app/organizations/org-loop/schedule?date=2025-07-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":false`)
	assert.Equal(t, 1, f.schedules.lookups)

	w = f.do(http.MethodGet, "/api/app/organizations/org-loop/schedule?date=2025-12-25", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"table":null`)

	w = f.do(http.MethodGet, "/api/app/organizations/org-loop/schedule?date=12/25", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackingEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/app/location", `{"lat":41.8781,"lon":-87.6298}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"update_interval_seconds":10`)
	assert.Contains(t, w.Body.String(), `"update_distance_meters":100`)
	assert.Equal(t, []geo.Coordinates{{Lat: 41.8781, Lon: -87.6298}}, f.tracker.positions)

	w = f.do(http.MethodPost, "/api/app/location", `{"lat":41.8781}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/app/lifecycle", `{"state":"active"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.tracker.resumes, 1)
	assert.Nil(t, f.tracker.resumes[0])

	w = f.do(http.MethodPost, "/api/app/lifecycle", `{"state":"closed"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"user-1"}, f.tracker.ended)

	w = f.do(http.MethodPost, "/api/app/lifecycle", `{"state":"asleep"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/app/permission", `{"granted":false}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []bool{false}, f.tracker.granted)

	f.tracker.state = tracking.State{Ready: true, Err: tracking.ErrPermissionDenied}
	w = f.do(http.MethodGet, "/api/app/tracking", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
	assert.Contains(t, w.Body.String(), tracking.ErrPermissionDenied.Error())
}

func TestPreferenceEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/app/preference", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"auto"`)

	w = f.do(http.MethodPut, "/api/app/preference", `{"mode":"pinned"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/app/preference", `{"mode":"pinned","pinned_org_id":"org-unknown"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, "/api/app/preference", `{"mode":"pinned","pinned_org_id":"org-evanston"}`)
	require.Equal(t, http.StatusOK, w.Code)
	saved := f.prefs.prefs["user-1"]
	assert.Equal(t, model.ModePinned, saved.Mode)
	assert.Equal(t, "org-evanston", *saved.PinnedOrgID)

	w = f.do(http.MethodPut, "/api/app/preference", `{"mode":"auto","notifications":"none"}`)
	require.Equal(t, http.StatusOK, w.Code)
	saved = f.prefs.prefs["user-1"]
	assert.Equal(t, model.ModeAuto, saved.Mode)
	assert.Nil(t, saved.PinnedOrgID)

	select {
	case orgID := <-f.topics.calls:
		assert.Nil(t, orgID)
	case <-time.After(time.Second):
		t.Fatal("expected the topic subscription to be cleared")
	}

	w = f.do(http.MethodPut, "/api/app/preference", `{"mode":"auto","notifications":"loud"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// firstStreamEvent opens the countdown stream and returns its first event.
func firstStreamEvent(t *testing.T, f *fixture) string {
	t.Helper()
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/app/countdown/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	var event bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" && event.Len() > 0 {
			break
		}
		event.WriteString(line)
	}
	return event.String()
}

func TestCountdownStream(t *testing.T) {
	f := newFixture(t)

	event := firstStreamEvent(t, f)
	assert.Contains(t, event, "event:tick")
	assert.Contains(t, event, `"countdown":"5m 0s"`)
}

func TestCountdownStreamFollowsOrganizationDay(t *testing.T) {
	f := newFixture(t)
	f.resolver.res.Organization.Timezone = "Asia/Tokyo"

	event := firstStreamEvent(t, f)
	assert.Contains(t, event, `"name":"Fajr"`)
	assert.Contains(t, event, `"time":"04:30"`)

	f.resolver.mu.Lock()
	defer f.resolver.mu.Unlock()
	require.GreaterOrEqual(t, len(f.resolver.opts), 2)
	assert.Equal(t, "2025-08-06", f.resolver.opts[1].Date)
}

func TestCountdownStreamRequiresLocation(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = resolver.ErrNoLocationNoCache

	w := f.do(http.MethodGet, "/api/app/countdown/stream", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNextEventUsesOrganizationLocalDate(t *testing.T) {
	f := newFixture(t)
	// 12:40 in Chicago is 02:40 the next morning in Tokyo.
	f.resolver.res.Organization.Timezone = "Asia/Tokyo"

	w := f.do(http.MethodGet, "/api/app/next-event", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Date      string `json:"date"`
		NextEvent struct {
			Name string `json:"name"`
			Time string `json:"time"`
		} `json:"next_event"`
	}
	decode(t, w, &body)
	assert.Equal(t, "2025-08-06", body.Date)
	assert.Equal(t, "Fajr", body.NextEvent.Name)
	assert.Equal(t, "04:30", body.NextEvent.Time)

	require.Len(t, f.resolver.opts, 2)
	assert.Equal(t, "2025-08-06", f.resolver.opts[1].Date)
}

func TestResolveOmitsNextEventWhenOrganizationIsOnAnotherDay(t *testing.T) {
	f := newFixture(t)
	f.resolver.res.Organization.Timezone = "Asia/Tokyo"

	w := f.do(http.MethodGet, "/api/app/resolve", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "next_event")

	w = f.do(http.MethodGet, "/api/app/resolve?date=2025-08-06", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Fajr"`)
}
