package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"github.com/robertarktes/seat-reservations/internal/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDMiddleware keeps the client's X-Request-Id or assigns one, and echoes it
// on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.ContextWithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		if route == "" {
			route = r.URL.Path
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(statusOf(ww)), r.Method).Inc()
	})
}

// routePattern is the matched chi pattern, known only after routing has run.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

type subjectKey struct{}

// SubjectFromContext returns the authenticated user id, or "" for anonymous requests.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

// JWTMiddleware attaches the bearer token's subject to the request. A present but
// invalid token is always rejected; a missing token only when required is set.
func JWTMiddleware(auth AuthService, required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			sub, err := auth.Authenticate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdempotencyMiddleware rejects malformed Idempotency-Key headers. The key is optional.
func IdempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("Idempotency-Key")
		if key != "" && (len(key) < 16 || len(key) > 128) {
			writeError(w, http.StatusBadRequest, "invalid Idempotency-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware counts requests per client IP. A redis failure lets the request through.
func RateLimitMiddleware(rl *ratelimit.RateLimiter, perMinute int, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			ok, err := rl.Allow(r.Context(), "ip:"+ip, perMinute, time.Minute)
			if err != nil {
				observability.LoggerFromContext(r.Context(), logger).WithError(err).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				observability.RateLimitExceeded.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TracingMiddleware opens a server span per request and renames it after the matched
// route, so every seat path shares one span name.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("http").Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if route := routePattern(r); route != "" {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		status := statusOf(ww)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
