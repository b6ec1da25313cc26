package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/seat-reservations/internal/adapters/redis"
)

// claimTTL bounds how long a crashed request can keep its key locked.
const claimTTL = time.Minute

var (
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	ErrKeyReused  = errors.New("idempotency key reused for a different request")
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Claim(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) (bool, error)
	Put(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Idempotency lets exactly one request per client key run. The key is claimed before
// the work starts, so a concurrent duplicate is turned away instead of making a second
// booking attempt, and later retries get the stored final response.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

// Fingerprint identifies a request so a key reused for different input is detected.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin claims key for the request identified by fingerprint. When claimed is true the
// caller owns the key and must call Complete or Abandon. Otherwise replay is the stored
// response, or err is ErrInProgress or ErrKeyReused.
func (i *Idempotency) Begin(ctx context.Context, key, fingerprint string) (replay *Response, claimed bool, err error) {
	marker := redisadapter.IdempResponse{Fingerprint: fingerprint, InProgress: true}
	won, err := i.store.Claim(ctx, key, marker, claimTTL)
	if err != nil {
		return nil, false, err
	}
	if won {
		return nil, true, nil
	}

	stored, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	switch {
	case stored == nil:
		// The holder abandoned the key between our claim and read.
		return nil, false, ErrInProgress
	case stored.Fingerprint != fingerprint:
		return nil, false, ErrKeyReused
	case stored.InProgress:
		return nil, false, ErrInProgress
	}
	return &Response{Status: stored.Status, Result: stored.Result}, false, nil
}

// Complete replaces the claim with the final response.
func (i *Idempotency) Complete(ctx context.Context, key, fingerprint string, resp Response) error {
	return i.store.Put(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		Result:      resp.Result,
		Fingerprint: fingerprint,
	}, i.ttl)
}

// Abandon releases the claim so a retry can run the request again.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	return i.store.Delete(ctx, key)
}
