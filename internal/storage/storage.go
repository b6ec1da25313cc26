// Package storage opens the seat and user repositories for the configured STORE_DRIVER.
package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/seat-reservations/internal/adapters/mongo"
	"github.com/robertarktes/seat-reservations/internal/auth"
	"github.com/robertarktes/seat-reservations/internal/booking"
	"github.com/robertarktes/seat-reservations/internal/catalog"
	"github.com/robertarktes/seat-reservations/internal/config"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SeatStore interface {
	booking.SeatStore
	catalog.Store
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Backend struct {
	Driver string
	Seats  SeatStore
	Users  auth.UserStore
	// Mongo is non-nil when a Mongo database is connected, either as the seat
	// store or for the audit log.
	Mongo *mongo.Database

	store   pinger
	closers []func()
}

func Open(ctx context.Context, cfg *config.Config, logger observability.Logger) (*Backend, error) {
	b := &Backend{Driver: cfg.StoreDriver}

	switch cfg.StoreDriver {
	case config.DriverCRDB:
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			return nil, errors.Wrap(err, "connect to crdb")
		}
		b.closers = append(b.closers, pool.Close)
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Seats, b.Users, b.store = repo.Seats(), repo.Users(), repo
	case config.DriverMongo:
		db, err := b.connectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := mongoadapter.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Seats, b.Users, b.store = store.Seats(), store.Users(), store
	default:
		return nil, errors.Newf("unknown store driver %q", cfg.StoreDriver)
	}

	if b.Mongo == nil && cfg.MongoAudit {
		if _, err := b.connectMongo(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
	}

	logger.WithField("driver", b.Driver).WithField("audit", b.Mongo != nil).Info("store opened")
	return b, nil
}

func (b *Backend) connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	b.closers = append(b.closers, func() { client.Disconnect(context.Background()) })
	b.Mongo = client.Database(cfg.MongoDB)
	return b.Mongo, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// Close releases every connection in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
