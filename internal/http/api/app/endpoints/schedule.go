package endpoints

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/app/packets"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

type ScheduleCache interface {
	Get(orgID, date string) (*model.DailyTable, bool)
	Lookup(ctx context.Context, orgID, date string) (*model.DailyTable, error)
}

type ScheduleController struct {
	schedules ScheduleCache
	resolver  Resolver
}

func NewScheduleController(schedules ScheduleCache, r Resolver) *ScheduleController {
	return &ScheduleController{schedules: schedules, resolver: r}
}

func ScheduleModule(schedules ScheduleCache, r Resolver) api.Module {
	ctl := NewScheduleController(schedules, r)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/organizations/:id/schedule", ctl.getSchedule)
	})
}

// getSchedule serves one day of an organization's table, from the range
// cache when the date was prefetched.
func (s *ScheduleController) getSchedule(ctx *gin.Context, _ string) (any, *api.APIError) {
	orgID := ctx.Param("id")
	date := ctx.DefaultQuery("date", s.resolver.Today())
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, badRequest("date must be YYYY-MM-DD")
	}

	if table, ok := s.schedules.Get(orgID, date); ok {
		return packets.ScheduleResponse{OrgID: orgID, Date: date, Cached: true, Table: table}, nil
	}

	table, err := s.schedules.Lookup(ctx.Request.Context(), orgID, date)
	if err != nil {
		return nil, apiError(err, "get_schedule")
	}
	return packets.ScheduleResponse{OrgID: orgID, Date: date, Table: table}, nil
}
