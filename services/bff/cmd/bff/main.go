package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/cache"
	"github.com/example/course-platform/internal/platform/config"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/internal/platform/logging"
	"github.com/example/course-platform/internal/platform/natsconn"
	"github.com/example/course-platform/internal/platform/run"
	bffconfig "github.com/example/course-platform/services/bff/internal/config"
	"github.com/example/course-platform/services/bff/internal/client"
	"github.com/example/course-platform/services/bff/internal/handlers"
	"github.com/example/course-platform/services/bff/internal/watch"
)

func main() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "bff"
	}
	log, err := logging.New(service, os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := bffconfig.Load()
	if len(cfg.JWTSecret) == 0 {
		log.Error("JWT_SECRET is required")
		run.Exit(1)
	}

	activityClient := client.NewActivityClient(cfg.ActivityBaseURL)
	catalogClient := client.NewCatalogClient(cfg.CatalogBaseURL)

	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		redisCache, err = cache.NewRedisCache(cfg.RedisURL, config.EnvDuration("CACHE_TTL", time.Minute))
		if err != nil {
			log.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		// Watch-time writes fall back to synchronous activity calls.
		log.Warn("nats connect failed, async writes and cache invalidation disabled", zap.Error(err))
	} else {
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Warn("jetstream unavailable", zap.Error(err))
		}
		if err := handlers.StartCacheInvalidator(nc, redisCache, log); err != nil {
			log.Warn("cache invalidator subscribe failed", zap.Error(err))
		}
	}

	events := handlers.NewEventPublisher(js)
	ap := analytics.New(js, log)

	manager := watch.NewManager(config.EnvDuration("PLAYER_SESSION_TTL", 10*time.Minute), log)
	player := handlers.NewPlayerHandlers(manager, activityClient, events, ap, log)
	composer := handlers.NewComposerHandlers(catalogClient, ap, log)
	catalog := &handlers.CatalogHandlers{Catalog: catalogClient, Cache: redisCache, Analytics: ap, Log: log}
	progress := &handlers.ProgressHandlers{Activity: activityClient, Events: events, Log: log}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{})

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret}
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Get("/v1/progress", progress.ListProgress)
		r.Get("/v1/progress/{lesson_id}", progress.GetProgress)
		r.Post("/v1/progress/watch-time", progress.SaveWatchTime)

		r.Post("/v1/player/sessions", player.OpenSession)
		r.Post("/v1/player/sessions/{sessionID}/events", player.SessionEvent)
		r.Delete("/v1/player/sessions/{sessionID}", player.CloseSession)

		r.Get("/v1/courses", catalog.ListCourses)
		r.Get("/v1/bundles/{bundleID}", catalog.GetBundle)
		r.Get("/v1/bundles/{bundleID}/courses", catalog.GetBundleCourses)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireInstructor)
			r.Post("/v1/composer/sessions", composer.OpenSession)
			r.Get("/v1/composer/sessions/{sessionID}", composer.GetState)
			r.Post("/v1/composer/sessions/{sessionID}/toggle", composer.Toggle)
			r.Post("/v1/composer/sessions/{sessionID}/remove", composer.Remove)
			r.Post("/v1/composer/sessions/{sessionID}/autosort", composer.AutoSort)
			r.Post("/v1/composer/sessions/{sessionID}/reorder", composer.Reorder)
			r.Post("/v1/composer/sessions/{sessionID}/submit", composer.Submit)
			r.Delete("/v1/composer/sessions/{sessionID}", composer.CloseSession)
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTPAddr, ServiceName: service, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go manager.Run(ctx)
		go composer.Run(ctx)

		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
