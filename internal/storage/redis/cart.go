// Package redis implements the cart snapshot store on Redis. Each shopper's
// cart is one JSON value; saves overwrite the whole snapshot.
package redis

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/kvelder/shopcore/internal/cart"
)

const cartKeyPrefix = "cart:"

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository persists cart snapshots in Redis.
type CartRepository struct {
	client *redis.Client
}

// NewCartRepository returns a CartRepository using the given client.
func NewCartRepository(client *redis.Client) *CartRepository {
	return &CartRepository{client: client}
}

// Save overwrites the shopper's stored snapshot. An empty snapshot deletes
// the key instead of storing an empty document.
func (r *CartRepository) Save(ctx context.Context, userID string, snap cart.Snapshot) error {
	key := cartKeyPrefix + userID
	if len(snap.Lines) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return errors.Wrapf(err, "delete cart %q", userID)
		}
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrapf(err, "marshal cart %q", userID)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "save cart %q", userID)
	}
	return nil
}

// Get returns the shopper's stored snapshot, or an empty one when none
// exists.
func (r *CartRepository) Get(ctx context.Context, userID string) (cart.Snapshot, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.Snapshot{}, nil
		}
		return cart.Snapshot{}, errors.Wrapf(err, "get cart %q", userID)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return cart.Snapshot{}, errors.Wrapf(err, "decode cart %q", userID)
	}
	return snap, nil
}
