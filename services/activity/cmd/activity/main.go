package main

import (
	"context"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/db"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/internal/platform/logging"
	"github.com/example/course-platform/internal/platform/natsconn"
	"github.com/example/course-platform/internal/platform/run"
	activityconfig "github.com/example/course-platform/services/activity/internal/config"
	"github.com/example/course-platform/services/activity/internal/handlers"
	activitystore "github.com/example/course-platform/services/activity/internal/store"
	"github.com/example/course-platform/services/activity/internal/worker"
)

func main() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "activity"
	}
	log, err := logging.New(service, os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := activityconfig.Load()
	if len(cfg.JWTSecret) == 0 {
		log.Error("JWT_SECRET is required")
		run.Exit(1)
	}

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	repo := activitystore.NewPostgresProgressRepository(pool)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret}
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/progress", handlers.ListProgress(repo))
		r.Get("/v1/progress/{lesson_id}", handlers.GetProgress(repo))
		r.Post("/v1/progress/watch-time", handlers.SaveWatchTime(repo, log))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTPAddr, ServiceName: service, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		nc, err := natsconn.Connect(natsconn.Options{})
		if err != nil {
			// Progress still flows through the synchronous REST path.
			log.Warn("nats connect failed, async progress disabled", zap.Error(err))
		} else {
			worker.StartProgressConsumer(ctx, nc, pool, log)
			defer nc.Close()
		}

		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
