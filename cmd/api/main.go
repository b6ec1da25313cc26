package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/seat-reservations/internal/adapters/mongo"
	"github.com/robertarktes/seat-reservations/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/seat-reservations/internal/adapters/redis"
	"github.com/robertarktes/seat-reservations/internal/auth"
	"github.com/robertarktes/seat-reservations/internal/booking"
	"github.com/robertarktes/seat-reservations/internal/catalog"
	"github.com/robertarktes/seat-reservations/internal/config"
	httphandler "github.com/robertarktes/seat-reservations/internal/http"
	"github.com/robertarktes/seat-reservations/internal/idempotency"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"github.com/robertarktes/seat-reservations/internal/ratelimit"
	"github.com/robertarktes/seat-reservations/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	backend, err := storage.Open(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer backend.Close()

	checks := map[string]httphandler.Pinger{"store": backend}
	var opts []booking.Option
	var idemp *idempotency.Idempotency
	var rl *ratelimit.RateLimiter

	if backend.Mongo != nil {
		opts = append(opts, booking.WithAuditor(mongoadapter.NewAuditLogger(backend.Mongo, logger)))
	}

	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		opts = append(opts, booking.WithCache(redisCache, cfg.SeatsCacheTTL))
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		rl = ratelimit.NewRateLimiter(redisCache)
		checks["redis"] = redisPinger{redisClient}
	}

	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		defer rabbitPub.Close()
		opts = append(opts, booking.WithEvents(rabbitPub))
	}

	seedCatalog(cfg, backend, logger)

	bookingSvc := booking.NewService(backend.Seats, logger, opts...)
	authSvc := auth.NewService(backend.Users, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL), cfg.BcryptCost)
	handlers := httphandler.NewHandlers(bookingSvc, authSvc, idemp, checks, logger)

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterOptions{
		RateLimiter:         rl,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		BookingRequiresAuth: cfg.BookingRequiresAuth,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	logger.Info("Server exiting")
}

// seedCatalog never stops start-up. cmd/seeder retries a failed seed.
func seedCatalog(cfg *config.Config, backend *storage.Backend, logger observability.Logger) {
	cat := catalog.Default()
	if cfg.SeatCatalogFile != "" {
		loaded, err := catalog.Load(cfg.SeatCatalogFile)
		if err != nil {
			logger.WithError(err).Error("failed to load seat catalog")
			return
		}
		cat = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := catalog.NewSeeder(backend.Seats, cat, logger).Seed(ctx); err != nil {
		logger.WithError(err).Error("failed to seed seats")
	}
}

type redisPinger struct {
	client *redisclient.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
