package main

import (
	"context"
	"errors"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/minaret/internal/config"
	"github.com/Nixie-Tech-LLC/minaret/internal/db"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	appapi "github.com/Nixie-Tech-LLC/minaret/internal/http/api/app/endpoints"
	authapi "github.com/Nixie-Tech-LLC/minaret/internal/http/api/auth/endpoints"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/system"
	"github.com/Nixie-Tech-LLC/minaret/internal/notify"
	"github.com/Nixie-Tech-LLC/minaret/internal/redis"
	"github.com/Nixie-Tech-LLC/minaret/internal/schedule"
	"github.com/Nixie-Tech-LLC/minaret/internal/tracking"
)

// Services bundles what the route modules need.
type Services struct {
	Store     db.Store
	Resolver  appapi.Resolver
	Schedules *schedule.RangeCache
	Tracker   *tracking.Manager
	Topics    notify.TopicSync
	Checks    map[string]system.Check
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, svc Services) {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
			"Last-Event-ID",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	api.MountGroup(r, api.GroupConfig{},
		system.HealthModule(svc.Checks),
	)

	if cfg.IsDevelopment() {
		api.MountGroup(r, api.GroupConfig{
			Prefix: "/api/dev",
		},
			authapi.DevTokenModule(cfg.JWTSecret),
		)
	}

	api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api/app",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		appapi.ResolveModule(svc.Resolver),
		appapi.ScheduleModule(svc.Schedules, svc.Resolver),
		appapi.TrackingModule(svc.Tracker),
		appapi.PreferenceModule(svc.Store, svc.Topics),
		authapi.SessionModule(),
	)
}

func healthChecks(cache *redis.CacheStore, mqttClient paho.Client, feed *tracking.MQTTFeed) map[string]system.Check {
	checks := map[string]system.Check{
		"postgres": func(ctx context.Context) error { return db.DB.PingContext(ctx) },
		"redis":    cache.Ping,
	}
	if mqttClient != nil {
		checks["mqtt"] = func(context.Context) error {
			if !mqttClient.IsConnectionOpen() {
				return errors.New("not connected")
			}
			return nil
		}
	}
	if feed != nil {
		checks["device_feed"] = func(context.Context) error { return feed.Healthy() }
	}
	return checks
}
