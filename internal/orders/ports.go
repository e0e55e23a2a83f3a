package orders

import (
	"context"
	"time"
)

// Store persists orders.
//
// Mutate serializes callers per order id: fn runs while the order's row is
// exclusively held, so two concurrent Mutate calls on the same id never
// observe the same status. The order handed to fn may be modified freely;
// it is written back together with the returned events only when fn returns
// a nil error and at least one event. Calls for different ids do not block
// each other.
type Store interface {
	Create(ctx context.Context, o *Order, events ...Envelope) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	Mutate(ctx context.Context, id string, fn func(o *Order) ([]Envelope, error)) (*Order, error)
	ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]string, error)
}

// ExpiryStore holds one TTL key per Pending order; its lapse is the cancellation trigger.
type ExpiryStore interface {
	Arm(ctx context.Context, orderID string, ttl time.Duration) error
	Disarm(ctx context.Context, orderID string) error
}

// Gateway is the external payment provider. CreateSession must return the
// same session for the same (order, attempt) pair. ExpireSession makes a
// session unpayable once its order is cancelled.
type Gateway interface {
	CreateSession(ctx context.Context, o *Order, attempt int) (string, error)
	QueryStatus(ctx context.Context, o *Order) (PaymentStatus, error)
	ExpireSession(ctx context.Context, token string) error
}

type Catalog interface {
	MenuItem(ctx context.Context, menuID string) (MenuItem, error)
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string) error
}
