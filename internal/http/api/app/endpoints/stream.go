package endpoints

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/minaret/internal/prayer"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
)

// streamCountdown sends a "tick" event every second with the next event
// and the countdown to it. Days follow the organization's timezone, not
// the app's: the user's organization is re-resolved for the new date when
// the organization's local day changes. The ticker stops when the client
// disconnects.
func (r *ResolveController) streamCountdown(ctx *gin.Context) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	reqCtx := ctx.Request.Context()

	current, err := r.resolveLocalToday(reqCtx, userID)
	if err != nil {
		apiErr := apiError(err, "countdown_stream")
		ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message, "code": apiErr.Reason})
		return
	}
	date := current.Date

	ticks := make(chan time.Time, 1)
	ticker := prayer.NewTicker()
	ticker.Now = r.now
	ticker.Start(reqCtx, func(now time.Time) {
		select {
		case ticks <- now:
		default:
		}
	})
	defer ticker.Stop()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")

	ctx.Stream(func(w io.Writer) bool {
		select {
		case <-reqCtx.Done():
			return false
		case now := <-ticks:
			if today := localDate(current, now); today != date {
				date = today
				next, err := r.resolver.Resolve(reqCtx, userID, resolver.Options{Date: today})
				if err != nil {
					log.Warn().Err(err).Str("user_id", userID).Msg("re-resolve after day change failed, keeping previous table")
				} else {
					current = next
				}
			}

			tick, ok := prayer.Evaluate(current.Table, now.In(organizationLocation(current)))
			if !ok {
				ctx.SSEvent("idle", gin.H{"org_id": current.Organization.ID, "date": current.Date})
				return true
			}
			ctx.SSEvent("tick", tickResponse(tick))
			return true
		}
	})
}
