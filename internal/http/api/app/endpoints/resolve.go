package endpoints

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/app/packets"
	"github.com/Nixie-Tech-LLC/minaret/internal/prayer"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	"github.com/rs/zerolog/log"
)

type Resolver interface {
	Resolve(ctx context.Context, userID string, opts resolver.Options) (*resolver.Result, error)
	Today() string
}

type ResolveController struct {
	resolver Resolver
	now      func() time.Time
}

func NewResolveController(r Resolver) *ResolveController {
	return &ResolveController{resolver: r, now: time.Now}
}

func ResolveModule(r Resolver) api.Module {
	ctl := NewResolveController(r)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/resolve", ctl.resolve)
		c.GET("/next-event", ctl.nextEvent)
		c.GET("/countdown/stream", ctl.streamCountdown)
	})
}

// resolve picks the user's organization and returns its table for ?date=
// (default today). ?lat=&lon= override the last reported position.
func (r *ResolveController) resolve(ctx *gin.Context, userID string) (any, *api.APIError) {
	override, apiErr := overrideFromQuery(ctx)
	if apiErr != nil {
		return nil, apiErr
	}

	res, err := r.resolver.Resolve(ctx.Request.Context(), userID, resolver.Options{
		Date:     ctx.Query("date"),
		Override: override,
	})
	if err != nil {
		return nil, apiError(err, "resolve")
	}

	response := packets.ResolveResponse{
		Organization:   res.Organization,
		Mode:           res.Mode,
		Date:           res.Date,
		DistanceMeters: res.DistanceMeters,
		Table:          res.Table,
	}
	now := r.now()
	if res.Date == localDate(res, now) {
		response.NextEvent = nextEvent(res, now)
	}
	return response, nil
}

func (r *ResolveController) nextEvent(ctx *gin.Context, userID string) (any, *api.APIError) {
	res, err := r.resolveLocalToday(ctx.Request.Context(), userID)
	if err != nil {
		return nil, apiError(err, "next_event")
	}
	return packets.CurrentEventResponse{
		OrgID:     res.Organization.ID,
		Date:      res.Date,
		NextEvent: nextEvent(res, r.now()),
	}, nil
}

// resolveLocalToday resolves the user's organization for the app's today
// and, when the organization's own calendar is already on another date,
// reloads the table for that date so the countdown never runs against the
// wrong day around midnight.
func (r *ResolveController) resolveLocalToday(ctx context.Context, userID string) (*resolver.Result, error) {
	res, err := r.resolver.Resolve(ctx, userID, resolver.Options{})
	if err != nil {
		return nil, err
	}
	date := localDate(res, r.now())
	if date == res.Date {
		return res, nil
	}
	local, err := r.resolver.Resolve(ctx, userID, resolver.Options{Date: date})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("date", date).Msg("failed to load organization-local table")
		return res, nil
	}
	return local, nil
}

// localDate is the organization's calendar date at now.
func localDate(res *resolver.Result, now time.Time) string {
	return now.In(organizationLocation(res)).Format(resolver.DateLayout)
}

func overrideFromQuery(ctx *gin.Context) (*geo.Coordinates, *api.APIError) {
	latStr, lonStr := ctx.Query("lat"), ctx.Query("lon")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, badRequest("invalid lat")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, badRequest("invalid lon")
	}
	c := geo.Coordinates{Lat: lat, Lon: lon}
	if !c.Valid() {
		return nil, badRequest("coordinates out of range")
	}
	return &c, nil
}

// nextEvent evaluates the table at now in the organization's timezone. It
// returns nil when the organization has no posted times.
func nextEvent(res *resolver.Result, now time.Time) *packets.NextEventResponse {
	if res.Table == nil {
		return nil
	}
	tick, ok := prayer.Evaluate(res.Table, now.In(organizationLocation(res)))
	if !ok {
		return nil
	}
	return tickResponse(tick)
}

func tickResponse(tick prayer.Tick) *packets.NextEventResponse {
	return &packets.NextEventResponse{
		Name:      tick.Event.Name,
		Kind:      tick.Event.Kind,
		Time:      tick.Event.Time,
		Display:   tick.Event.Display,
		Tomorrow:  tick.Event.Tomorrow,
		Countdown: tick.Countdown,
		Seconds:   int64(tick.Remaining / time.Second),
	}
}

func organizationLocation(res *resolver.Result) *time.Location {
	loc, err := res.Organization.Location()
	if err != nil {
		log.Warn().Err(err).Str("org_id", res.Organization.ID).Str("timezone", res.Organization.Timezone).Msg("invalid organization timezone, using UTC")
		return time.UTC
	}
	return loc
}
