// Package auth signs users up, logs them in and issues the bearer tokens the API checks.
package auth

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type Service struct {
	users      UserStore
	tokens     *Tokens
	bcryptCost int
}

func NewService(users UserStore, tokens *Tokens, bcryptCost int) *Service {
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

func (s *Service) Signup(ctx context.Context, username, email, password string) (domain.User, string, error) {
	email = domain.NormalizeEmail(email)
	if strings.TrimSpace(username) == "" || email == "" || password == "" {
		return domain.User{}, "", domain.Invalid("username, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return domain.User{}, "", errors.Wrap(err, "hash password")
	}
	u := domain.NewUser(username, email, string(hash))
	if err := s.users.CreateUser(ctx, u); err != nil {
		return domain.User{}, "", err
	}

	token, err := s.tokens.Issue(u.ID.String())
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", domain.Invalid("email and password are required")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.ErrInvalidCredentials
	}
	return s.tokens.Issue(u.ID.String())
}

// Authenticate returns the user id carried by a bearer token.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Parse(token)
}
