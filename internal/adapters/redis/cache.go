package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-reservations/internal/domain"
)

const seatsKey = "seats:all"

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetSeats returns the cached seat listing; ok is false on a miss.
func (c *Cache) GetSeats(ctx context.Context) (seats []domain.Seat, ok bool, err error) {
	val, err := c.client.Get(ctx, seatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get cached seats")
	}
	if err := json.Unmarshal(val, &seats); err != nil {
		return nil, false, errors.Wrap(err, "decode cached seats")
	}
	return seats, true, nil
}

func (c *Cache) SetSeats(ctx context.Context, seats []domain.Seat, ttl time.Duration) error {
	data, err := json.Marshal(seats)
	if err != nil {
		return err
	}
	return errors.Wrap(c.client.Set(ctx, seatsKey, data, ttl).Err(), "cache seats")
}

func (c *Cache) InvalidateSeats(ctx context.Context) error {
	return errors.Wrap(c.client.Del(ctx, seatsKey).Err(), "invalidate seats")
}
