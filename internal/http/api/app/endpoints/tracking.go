package endpoints

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/app/packets"
	"github.com/Nixie-Tech-LLC/minaret/internal/tracking"
)

type Tracker interface {
	Position(ctx context.Context, userID string, c geo.Coordinates) error
	Resume(ctx context.Context, userID string, c *geo.Coordinates) error
	Permission(ctx context.Context, userID string, granted bool) error
	State(ctx context.Context, userID string) (tracking.State, error)
	End(userID string)
}

type TrackingController struct {
	tracker Tracker
}

func NewTrackingController(t Tracker) *TrackingController {
	return &TrackingController{tracker: t}
}

func TrackingModule(t Tracker) api.Module {
	ctl := NewTrackingController(t)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/location", ctl.reportLocation)
		c.POST("/lifecycle", ctl.reportLifecycle)
		c.POST("/permission", ctl.reportPermission)
		c.GET("/tracking", ctl.getTracking)
	})
}

func (t *TrackingController) reportLocation(ctx *gin.Context, userID string) (any, *api.APIError) {
	var request packets.LocationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}
	c := geo.Coordinates{Lat: *request.Lat, Lon: *request.Lon}
	if !c.Valid() {
		return nil, badRequest("coordinates out of range")
	}

	if err := t.tracker.Position(ctx.Request.Context(), userID, c); err != nil {
		return nil, apiError(err, "report_location")
	}
	return api.Accepted{Body: cadence()}, nil
}

func (t *TrackingController) reportLifecycle(ctx *gin.Context, userID string) (any, *api.APIError) {
	var request packets.LifecycleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}

	switch request.State {
	case "active":
		var c *geo.Coordinates
		if request.Lat != nil && request.Lon != nil {
			c = &geo.Coordinates{Lat: *request.Lat, Lon: *request.Lon}
			if !c.Valid() {
				return nil, badRequest("coordinates out of range")
			}
		}
		if err := t.tracker.Resume(ctx.Request.Context(), userID, c); err != nil {
			return nil, apiError(err, "report_lifecycle")
		}
	case "closed":
		t.tracker.End(userID)
	}
	return api.Accepted{Body: gin.H{"state": request.State}}, nil
}

func (t *TrackingController) reportPermission(ctx *gin.Context, userID string) (any, *api.APIError) {
	var request packets.PermissionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}
	if err := t.tracker.Permission(ctx.Request.Context(), userID, *request.Granted); err != nil {
		return nil, apiError(err, "report_permission")
	}
	return api.Accepted{Body: gin.H{"granted": *request.Granted}}, nil
}

func (t *TrackingController) getTracking(ctx *gin.Context, userID string) (any, *api.APIError) {
	st, err := t.tracker.State(ctx.Request.Context(), userID)
	if err != nil {
		return nil, apiError(err, "get_tracking")
	}

	response := cadence()
	response.Ready = st.Ready
	response.Current = coordinates(st.Current)
	response.Checkpoint = coordinates(st.Checkpoint)
	if st.Err != nil {
		response.Error = st.Err.Error()
	}
	if st.Result != nil {
		response.Organization = st.Result.Organization
	}
	return response, nil
}

func cadence() packets.TrackingResponse {
	return packets.TrackingResponse{
		UpdateIntervalSeconds: tracking.UpdateIntervalSeconds,
		UpdateDistanceMeters:  tracking.UpdateDistanceMeters,
	}
}

func coordinates(c *geo.Coordinates) *packets.Coordinates {
	if c == nil {
		return nil
	}
	return &packets.Coordinates{Lat: c.Lat, Lon: c.Lon}
}

