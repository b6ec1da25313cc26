package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// IdempResponse is either a claim marker (InProgress) or the final response of a request.
type IdempResponse struct {
	Status      int
	Result      []byte
	Fingerprint string `json:",omitempty"`
	InProgress  bool   `json:",omitempty"`
}

func idempKey(key string) string {
	return "idemp:" + key
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get idempotency entry")
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrap(err, "decode idempotency entry")
	}
	return &resp, nil
}

// Claim stores resp unless key is taken and reports whether this call won.
func (i *Idempotency) Claim(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return false, err
	}
	won, err := i.client.SetNX(ctx, idempKey(key), data, ttl).Result()
	return won, errors.Wrap(err, "claim idempotency key")
}

// Put overwrites whatever is stored for key.
func (i *Idempotency) Put(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return errors.Wrap(i.client.Set(ctx, idempKey(key), data, ttl).Err(), "store idempotency entry")
}

func (i *Idempotency) Delete(ctx context.Context, key string) error {
	return errors.Wrap(i.client.Del(ctx, idempKey(key)).Err(), "delete idempotency entry")
}
