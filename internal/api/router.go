package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carescan/scanbook/internal/auth"
	"github.com/carescan/scanbook/internal/scan"
)

type RouterConfig struct {
	Service *scan.Service
	Auth    *auth.Middleware
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/api/scans", func(r chi.Router) {
		// Public reads and anonymous booking. The optional middleware
		// resolves an identity when a bearer token is present so the
		// weekly view can widen for admins and bookings can carry the
		// booker's identity.
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Optional)

			r.Get("/types", scanTypeNamesHandler(svc))
			r.Get("/week/{date}", weeklyScheduleHandler(svc))
			r.Get("/available-dates/{scanType}", availableDatesHandler(svc))
			r.Post("/{id}/book", bookScanHandler(svc))
		})

		// Authenticated users
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Required)

			r.Get("/my-bookings", myBookingsHandler(svc))
			// Owners may cancel their own booking; admins anyone's.
			r.Post("/bookings/{id}/cancel", cancelBookingHandler(svc))
		})

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.AdminOnly)

			r.Post("/", createScanHandler(svc))
			r.Get("/", listScansHandler(svc))
			r.Get("/{id}", getScanHandler(svc))
			r.Put("/{id}", updateScanHandler(svc))
			r.Delete("/{id}", deleteScanHandler(svc))
			r.Get("/date/{date}", scansByDateHandler(svc))

			r.Get("/{id}/bookings", scanBookingsHandler(svc))
			r.Get("/bookings/{id}", bookingDetailsHandler(svc))
			r.Get("/bookings/week/{date}", weeklyBookingsHandler(svc))
			r.Post("/bookings/{id}/complete", completeBookingHandler(svc))

			r.Get("/scan-types", listScanTypesHandler(svc))
			r.Post("/scan-types", createScanTypeHandler(svc))
			r.Put("/scan-types/{id}", updateScanTypeHandler(svc))
			r.Delete("/scan-types/{id}", deleteScanTypeHandler(svc))
		})
	})

	return r
}
