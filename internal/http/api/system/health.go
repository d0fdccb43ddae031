package system

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

func HealthModule(checks map[string]Check) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/healthz", func(ctx *gin.Context) {
			reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			defer cancel()

			status := http.StatusOK
			results := make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(reqCtx); err != nil {
					log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
					results[name] = err.Error()
					status = http.StatusServiceUnavailable
					continue
				}
				results[name] = "ok"
			}
			ctx.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
		})
		c.GET("/metrics", gin.WrapH(promhttp.Handler()))
	})
}
