package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Nixie-Tech-LLC/minaret/internal/config"
	"github.com/Nixie-Tech-LLC/minaret/internal/db"
	"github.com/Nixie-Tech-LLC/minaret/internal/directory"
	"github.com/Nixie-Tech-LLC/minaret/internal/mqtt"
	"github.com/Nixie-Tech-LLC/minaret/internal/notify"
	"github.com/Nixie-Tech-LLC/minaret/internal/redis"
	"github.com/Nixie-Tech-LLC/minaret/internal/report"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	"github.com/Nixie-Tech-LLC/minaret/internal/schedule"
	"github.com/Nixie-Tech-LLC/minaret/internal/tracking"
)

const directoryMaxAge = 15 * time.Minute

func main() {
	// load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := report.Setup(cfg.SentryDSN, cfg.Environment); err != nil {
		log.Warn().Err(err).Msg("error reporting disabled")
	}
	defer report.Flush()

	// initialize PostgreSQL
	if err := db.Init(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("db init")
	}
	defer db.DB.Close()

	// run pending migrations
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	store := db.NewStore(db.DB)

	rdb := redis.NewClient(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword)
	defer rdb.Close()
	resolutions := redis.NewCacheStore(rdb)

	schedules, err := schedule.NewRangeCache(store, schedule.Window{
		Back:    cfg.PrefetchDaysBack,
		Forward: cfg.PrefetchDaysForward,
	}, cfg.ScheduleCacheOrgs)
	if err != nil {
		log.Fatal().Err(err).Msg("schedule cache")
	}

	var (
		mqttClient paho.Client
		topics     notify.TopicSync = notify.Noop{}
		hooks                       = &mqtt.ConnectHooks{}
	)
	if cfg.MQTTBrokerURL != "" {
		mqttClient, err = mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID, hooks)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect")
		}
		topics = notify.NewMQTTTopicSync(mqttClient)
	} else {
		log.Warn().Msg("MQTT_BROKER_URL not set, device feed and topic sync disabled")
	}

	tracker := tracking.NewManager(tracking.Config{
		ThresholdMeters: cfg.OrgUpdateThresholdM,
		ReadTimeout:     cfg.LocationReadTimeout,
		OnEnd:           schedules.Deactivate,
	})

	dir := directory.NewService(store, directoryMaxAge)
	res := resolver.New(resolver.Deps{
		Preferences:   store,
		Organizations: store,
		Schedules:     schedules,
		Directory:     dir,
		Cache:         resolutions,
		Location:      tracker,
		Topics:        topics,
		Prefetcher:    schedules,
	}, resolver.Config{
		ThresholdMeters: cfg.OrgUpdateThresholdM,
		TTL:             cfg.ResolutionTTL,
		Timezone:        cfg.Timezone,
	})

	var feed *tracking.MQTTFeed
	if mqttClient != nil {
		feed = tracking.NewMQTTFeed(mqttClient, tracker)
		hooks.Add(feed.Resubscribe)
		tracker.Start(res, feed, func(userID string, r *resolver.Result, err error) {
			logResolution(userID, r, err)
			feed.Publish(userID, r, err)
		})
	} else {
		tracker.Start(res, nil, logResolution)
	}

	refresher := schedule.NewRefresher(schedules, cfg.Timezone)
	refresher.Before("directory", dir.Refresh)
	if err := refresher.Start(); err != nil {
		log.Fatal().Err(err).Msg("schedule refresher")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if feed != nil {
		if err := feed.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("device feed")
		}
	}

	// set up gin router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	RegisterRoutes(r, cfg, Services{
		Store:     store,
		Resolver:  res,
		Schedules: schedules,
		Tracker:   tracker,
		Topics:    topics,
		Checks:    healthChecks(resolutions, mqttClient, feed),
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", cfg.ServerAddress).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	// stop producers before the stores they write to
	if feed != nil {
		feed.Stop()
	}
	tracker.Close()
	refresher.Stop()
	res.Wait()
	schedules.Wait()
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
	log.Info().Msg("server exited properly")
}

func logResolution(userID string, r *resolver.Result, err error) {
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("tracking resolution failed")
		return
	}
	log.Info().Str("user_id", userID).Str("org_id", r.Organization.ID).Str("mode", string(r.Mode)).Msg("tracking resolution updated")
}
