package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	SerializationFailureCode = "40001"

	driverName = "crdb"
)

var ErrSerializationFailure = errors.New("serialization failure")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		section    TEXT NOT NULL,
		row_no     INT NOT NULL CHECK (row_no >= 0),
		col_no     INT NOT NULL CHECK (col_no >= 0),
		booked     BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (section, row_no, col_no)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Repository owns the pool shared by the seat and user repositories.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Seats() *SeatRepository {
	return &SeatRepository{pool: r.pool, repo: r}
}

func (r *Repository) Users() *UserRepository {
	return &UserRepository{pool: r.pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		if isCode(err, SerializationFailureCode) {
			return errors.Mark(err, ErrSerializationFailure)
		}
		return err
	}
	return nil
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
