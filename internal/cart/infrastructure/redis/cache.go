package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/boutique-commerce/internal/cart/application"
	"github.com/dmehra2102/boutique-commerce/internal/cart/domain"
)

const (
	defaultTTL = 15 * time.Minute
	// genTTL outlives any in-flight fill by a wide margin.
	genTTL = 24 * time.Hour
)

type Cache struct {
	client  *goredis.Client
	baseTTL time.Duration
}

// NewCache stores carts for baseTTL plus up to five minutes of jitter so
// entries written together do not expire together. A zero TTL means 15m.
func NewCache(client *goredis.Client, baseTTL time.Duration) *Cache {
	if baseTTL <= 0 {
		baseTTL = defaultTTL
	}
	return &Cache{client: client, baseTTL: baseTTL}
}

func (c *Cache) Get(ctx context.Context, userID string) (domain.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, application.ErrCacheMiss
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.Item{}
	}
	return cart, nil
}

func (c *Cache) Generation(ctx context.Context, userID string) (int64, error) {
	return readGeneration(ctx, c.client, userID)
}

// Set writes the cart under WATCH on the generation key, so a Delete that
// lands between the caller's repository read and this write wins.
func (c *Cache) Set(ctx context.Context, cart domain.Cart, generation int64) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	ttl := c.baseTTL + time.Duration(rand.IntN(5))*time.Minute

	err = c.client.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := readGeneration(ctx, tx, cart.UserID)
		if err != nil {
			return err
		}
		if cur != generation {
			return application.ErrStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(cart.UserID), data, ttl)
			return nil
		})
		return err
	}, generationKey(cart.UserID))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, application.ErrStaleFill), errors.Is(err, goredis.TxFailedErr):
		return application.ErrStaleFill
	default:
		return fmt.Errorf("redis set: %w", err)
	}
}

// Delete evicts the cart and advances its generation in one transaction.
func (c *Cache) Delete(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(userID))
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), genTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func readGeneration(ctx context.Context, r getter, userID string) (int64, error) {
	gen, err := r.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

func cacheKey(userID string) string {
	return "cart:" + userID
}

func generationKey(userID string) string {
	return "cartgen:" + userID
}
