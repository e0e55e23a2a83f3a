package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewCache is a cache-aside store of serialized order views. Writers
// invalidate after every committed transition. Every invalidation bumps a
// per-order version; a reader captures the version before loading the order
// and its fill is dropped if an invalidation landed in between.
type ViewCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *ViewCache) Get(ctx context.Context, orderID string) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderView, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Version returns the order's invalidation counter; zero if never invalidated.
func (c *ViewCache) Version(ctx context.Context, orderID string) (int64, error) {
	v, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderViewVersion, orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Set stores view only if the order was not invalidated since version was
// read. It reports whether the view was stored.
func (c *ViewCache) Set(ctx context.Context, orderID string, version int64, view []byte) (bool, error) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLOrderView
	}
	verKey := fmt.Sprintf(KeyOrderViewVersion, orderID)
	stored := false
	err := c.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, fmt.Sprintf(KeyOrderView, orderID), view, ttl)
			return nil
		})
		stored = err == nil
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (c *ViewCache) Invalidate(ctx context.Context, orderID string) error {
	verKey := fmt.Sprintf(KeyOrderViewVersion, orderID)
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Expire(ctx, verKey, TTLOrderViewVersion)
		p.Del(ctx, fmt.Sprintf(KeyOrderView, orderID))
		return nil
	})
	return err
}

// claimPending marks a key whose order is still being created.
const claimPending = "pending"

var releaseClaim = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Idempotency maps a client-supplied create key to the order it produced.
// A key is claimed before the order is created, so concurrent requests with
// the same key cannot both create one.
type Idempotency struct{ RDB *redis.Client }

// Claim reserves key for the caller. When it is already taken, orderID is the
// order it produced, or empty while that order is still being created.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)
	ok, err := i.RDB.SetNX(ctx, k, claimPending, TTLIdempotencyClaim).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// the claim lapsed between the two calls; treat as in flight
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if v == claimPending {
		return "", false, nil
	}
	return v, false, nil
}

// Remember resolves a claimed key to the order it created.
func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key), orderID, TTLIdempotency).Err()
}

// Release drops an unresolved claim after a failed create so the client can retry.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return releaseClaim.Run(ctx, i.RDB, []string{fmt.Sprintf(KeyIdemOrderCreate, userID, key)}, claimPending).Err()
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// First reports whether id is seen for the first time and claims it.
func (d *Dedup) First(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), 1, TTLDedup).Result()
}

// Forget releases a claim whose processing failed, so a redelivery is handled again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
