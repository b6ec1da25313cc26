package main

import (
	"context"
	"log"
	"time"

	"github.com/robertarktes/seat-reservations/internal/catalog"
	"github.com/robertarktes/seat-reservations/internal/config"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"github.com/robertarktes/seat-reservations/internal/storage"
)

// seeder inserts the seat catalog once and exits. Existing seats keep their state.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := observability.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer backend.Close()

	cat := catalog.Default()
	if cfg.SeatCatalogFile != "" {
		if cat, err = catalog.Load(cfg.SeatCatalogFile); err != nil {
			log.Fatalf("failed to load seat catalog: %v", err)
		}
	}

	if err := catalog.NewSeeder(backend.Seats, cat, logger).Seed(ctx); err != nil {
		logger.WithError(err).Error("seeding failed")
		backend.Close()
		log.Fatalf("seed: %v", err)
	}
}
