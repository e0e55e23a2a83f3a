package redisx

import (
	"fmt"
	"time"
)

const (
	// Expiry record of a Pending order: order:{order_id}. Its lapse cancels the order.
	KeyOrderExpiry = "order:%s"

	// Idempotent create: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order view: order_view:{order_id}
	KeyOrderView = "order_view:%s"

	// Invalidation counter of a cached view: order_view_ver:{order_id}
	KeyOrderViewVersion = "order_view_ver:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Keyevent channel for expirations in one logical db.
	ChannelExpired = "__keyevent@%d__:expired"
)

var (
	TTLIdempotency      = 24 * time.Hour
	TTLIdempotencyClaim = time.Minute
	TTLOrderView        = 5 * time.Minute
	TTLOrderViewVersion = time.Hour
	TTLDedup            = 48 * time.Hour
)

func ExpiryKey(orderID string) string { return fmt.Sprintf(KeyOrderExpiry, orderID) }

func ExpiredChannel(db int) string { return fmt.Sprintf(ChannelExpired, db) }
