package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (m *memUsers) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return domain.ErrUserExists
	}
	m.users[u.Email] = u
	return nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func newTestService() (*Service, *memUsers) {
	users := &memUsers{users: map[string]domain.User{}}
	return NewService(users, NewTokens("test-secret", time.Hour), bcrypt.MinCost), users
}

func TestSignupAndLogin(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()

	u, token, err := svc.Signup(ctx, "greeshma", " G@Example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "g@example.com", u.Email)
	assert.NotEqual(t, "pw", users.users["g@example.com"].PasswordHash)

	sub, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), sub)

	_, _, err = svc.Signup(ctx, "again", "g@example.com", "pw2")
	assert.True(t, errors.Is(err, domain.ErrUserExists))

	token, err = svc.Login(ctx, "G@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = svc.Login(ctx, "g@example.com", "wrong")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	_, err = svc.Login(ctx, "nobody@example.com", "pw")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestSignup_RequiresFields(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Signup(context.Background(), "", "a@b.c", "pw")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = svc.Login(context.Background(), "a@b.c", "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestTokens_Parse(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	raw, err := tokens.Issue("user-1")
	require.NoError(t, err)

	sub, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = NewTokens("other", time.Minute).Parse(raw)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = tokens.Parse("not-a-token")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Parse(raw)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized), "expired")
}
