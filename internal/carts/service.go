package carts

import (
	"context"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service keeps at most one open cart per user. Every operation runs under
// the user's lock, so a restaurant switch cannot race another switch.
type Service struct {
	Store       Store
	Orders      *orders.Service
	Log         *zap.Logger
	ServiceName string
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.Store.Get(ctx, userID)
}

// GetOrCreate returns the user's cart for restaurantID. An open cart for any
// other restaurant is deleted with its items first.
func (s *Service) GetOrCreate(ctx context.Context, userID, restaurantID string) (*Cart, error) {
	var out *Cart
	err := s.Store.WithUserLock(ctx, userID, func(tx Tx) error {
		c, err := s.switchTo(ctx, tx, userID, restaurantID)
		out = c
		return err
	})
	return out, err
}

func (s *Service) switchTo(ctx context.Context, tx Tx, userID, restaurantID string) (*Cart, error) {
	cur, err := tx.ActiveCart(ctx)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		if cur.RestaurantID == restaurantID {
			return cur, nil
		}
		if err := tx.DeleteCart(ctx, cur.ID); err != nil {
			return nil, err
		}
		s.logger().Info("cart discarded for restaurant switch",
			zap.String("user_id", userID), zap.String("cart_id", cur.ID),
			zap.String("from", cur.RestaurantID), zap.String("to", restaurantID))
	}
	now := s.now()
	c := &Cart{ID: uuid.NewString(), UserID: userID, RestaurantID: restaurantID, CreatedAt: now, UpdatedAt: now}
	if err := tx.CreateCart(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem adds qty of a menu item to the user's cart for restaurantID,
// switching carts if needed. Quantities of a repeated item are summed.
func (s *Service) AddItem(ctx context.Context, userID, restaurantID string, line orders.LineRequest) (*Cart, error) {
	if line.Qty < 1 {
		return nil, orders.ErrInvalidQuantity
	}
	if line.MenuID == "" || restaurantID == "" {
		return nil, orders.ErrEmptyOrder
	}
	var out *Cart
	err := s.Store.WithUserLock(ctx, userID, func(tx Tx) error {
		c, err := s.switchTo(ctx, tx, userID, restaurantID)
		if err != nil {
			return err
		}
		if i := c.find(line.MenuID); i >= 0 {
			c.Items[i].Quantity += line.Qty
			if line.Note != "" {
				c.Items[i].Note = line.Note
			}
		} else {
			c.Items = append(c.Items, Item{MenuID: line.MenuID, Quantity: line.Qty, Note: line.Note})
		}
		out = c
		return tx.SaveItems(ctx, c)
	})
	return out, err
}

func (s *Service) RemoveItem(ctx context.Context, userID, menuID string) (*Cart, error) {
	return s.edit(ctx, userID, func(c *Cart) {
		c.remove(menuID)
	})
}

// SetQuantity overwrites a line's quantity; below 1 the line is removed.
func (s *Service) SetQuantity(ctx context.Context, userID, menuID string, qty int) (*Cart, error) {
	return s.edit(ctx, userID, func(c *Cart) {
		if qty < 1 {
			c.remove(menuID)
			return
		}
		if i := c.find(menuID); i >= 0 {
			c.Items[i].Quantity = qty
		}
	})
}

func (s *Service) edit(ctx context.Context, userID string, fn func(c *Cart)) (*Cart, error) {
	var out *Cart
	err := s.Store.WithUserLock(ctx, userID, func(tx Tx) error {
		c, err := tx.ActiveCart(ctx)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNoCart
		}
		fn(c)
		out = c
		return tx.SaveItems(ctx, c)
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	return s.Store.WithUserLock(ctx, userID, func(tx Tx) error {
		c, err := tx.ActiveCart(ctx)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNoCart
		}
		return tx.DeleteCart(ctx, c.ID)
	})
}

// Checkout converts the cart into a Waiting order priced from the catalog and
// deletes the cart in the same transaction. A non-empty cartID must name the
// open cart; a consumed or replaced cart yields ErrNoCart.
func (s *Service) Checkout(ctx context.Context, userID, cartID string) (*orders.Order, error) {
	var o *orders.Order
	err := s.Store.WithUserLock(ctx, userID, func(tx Tx) error {
		c, err := tx.ActiveCart(ctx)
		if err != nil {
			return err
		}
		if c == nil || (cartID != "" && c.ID != cartID) {
			return ErrNoCart
		}
		if len(c.Items) == 0 {
			return orders.ErrEmptyOrder
		}
		o, err = s.Orders.NewCartOrder(ctx, userID, c.RestaurantID, c.ID, c.lines())
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o, orders.NewCreatedEvent(s.ServiceName, o)); err != nil {
			return err
		}
		return tx.DeleteCart(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.CartCheckouts.Inc()
	s.logger().Info("cart checked out",
		zap.String("user_id", userID), zap.String("order_id", o.ID), zap.Int64("total_cents", o.TotalCents))
	return o, nil
}
