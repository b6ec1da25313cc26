package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"github.com/robertarktes/seat-reservations/internal/ratelimit"
)

type RouterOptions struct {
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter         *ratelimit.RateLimiter
	RateLimitPerMinute  int
	BookingRequiresAuth bool
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins      []string
}

func SetupRouter(h *Handlers, logger observability.Logger, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Idempotent-Replayed", "X-Request-Id"},
		MaxAge:         600,
	}))
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if opts.RateLimiter != nil && opts.RateLimitPerMinute > 0 {
			r.Use(RateLimitMiddleware(opts.RateLimiter, opts.RateLimitPerMinute, logger))
		}

		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Get("/seats", h.ListSeats)
		r.Get("/seats/{section}/{row}/{col}", h.GetSeat)

		r.With(JWTMiddleware(h.auth, opts.BookingRequiresAuth), IdempotencyMiddleware).
			Post("/book-seat", h.BookSeat)
	})

	return r
}
