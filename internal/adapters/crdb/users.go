package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations/internal/domain"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func (r *UserRepository) CreateUser(ctx context.Context, u domain.User) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create user")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserExists
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user by email")
	}
	return &u, nil
}
