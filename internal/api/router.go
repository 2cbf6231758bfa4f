package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/booking"
	redisclient "github.com/blyssuz/booking-flow/internal/redis"
)

type RouterConfig struct {
	Registry *booking.Registry
	Locker   redisclient.Locker
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Locker == nil {
		cfg.Locker = redisclient.NoopLocker{}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Env, cfg.Version)
	if cfg.PgPool != nil {
		health.Require("postgres", cfg.PgPool.Ping)
	}
	if cfg.Redis != nil {
		health.Optional("redis", func(ctx context.Context) error { return cfg.Redis.Ping(ctx).Err() })
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &flowHandlers{registry: cfg.Registry, locker: cfg.Locker, logger: cfg.Logger}

	r.Route("/flows", func(r chi.Router) {
		r.Post("/", h.start)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/date", h.mutate(selectDate))
			r.Put("/time", h.mutate(selectTime))
			r.Post("/services", h.mutate(addService))
			r.Delete("/services/{serviceID}", h.mutate(removeService))
			r.Put("/employees/{serviceID}", h.mutate(chooseEmployee))
			r.Put("/notes", h.mutate(setNotes))
			r.Post("/submit", h.submit)
		})
	})

	return r
}
