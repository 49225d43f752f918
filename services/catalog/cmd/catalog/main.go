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
	catalogconfig "github.com/example/course-platform/services/catalog/internal/config"
	"github.com/example/course-platform/services/catalog/internal/handlers"
	"github.com/example/course-platform/services/catalog/internal/outbox"
	catalogstore "github.com/example/course-platform/services/catalog/internal/store"
)

func main() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "catalog"
	}
	log, err := logging.New(service, os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := catalogconfig.Load()
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

	st := catalogstore.NewPostgresCatalogStore(pool)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret}
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/courses", handlers.ListCourses(st, log))
		r.Get("/v1/bundles/{bundleID}", handlers.GetBundle(st, log))
		r.Get("/v1/bundles/{bundleID}/courses", handlers.ListBundleCourses(st, log))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireInstructor)
			r.Post("/v1/bundles", handlers.CreateBundle(st, log))
			r.Put("/v1/bundles/{bundleID}", handlers.UpdateBundle(st, log))
			r.Post("/v1/bundles/{bundleID}/courses", handlers.AddBundleCourse(st, log))
			r.Delete("/v1/bundles/{bundleID}/courses/{courseID}", handlers.RemoveBundleCourse(st, log))
			r.Put("/v1/bundles/{bundleID}/courses/order", handlers.ReorderBundleCourses(st, log))
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTPAddr, ServiceName: service, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
		if err != nil {
			// Bundle changes stay in catalog_outbox until a publisher drains them.
			log.Warn("nats connect failed, outbox publishing disabled", zap.Error(err))
		} else {
			defer nc.Close()
			pub, err := outbox.NewPublisher(log, pool, nc)
			if err != nil {
				log.Warn("outbox publisher init failed", zap.Error(err))
			} else {
				go func() {
					if err := pub.Run(ctx); err != nil {
						log.Error("outbox publisher stopped", zap.Error(err))
					}
				}()
			}
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
