package carts

import (
	"context"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// Store serializes cart work per user. fn runs while the user's lock is held
// and its writes commit together or not at all.
type Store interface {
	WithUserLock(ctx context.Context, userID string, fn func(tx Tx) error) error
	Get(ctx context.Context, userID string) (*Cart, error)
}

// Tx is the view of one user's carts inside WithUserLock.
type Tx interface {
	// ActiveCart returns nil when the user has no open cart.
	ActiveCart(ctx context.Context) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	DeleteCart(ctx context.Context, cartID string) error
	SaveItems(ctx context.Context, c *Cart) error
	InsertOrder(ctx context.Context, o *orders.Order, events ...orders.Envelope) error
}
