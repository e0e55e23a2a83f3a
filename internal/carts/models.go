package carts

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// ErrNoCart is returned when the user holds no open cart. A checked-out cart
// is gone, so a second checkout lands here too.
var ErrNoCart = fmt.Errorf("%w: no open cart", orders.ErrNotFound)

type Item struct {
	MenuID   string `json:"menu_id"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

// Cart is a user's single open cart. Items keep insertion order.
type Cart struct {
	ID           string    `json:"cart_id"`
	UserID       string    `json:"user_id"`
	RestaurantID string    `json:"restaurant_id"`
	Items        []Item    `json:"items"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Cart) find(menuID string) int {
	for i, it := range c.Items {
		if it.MenuID == menuID {
			return i
		}
	}
	return -1
}

func (c *Cart) remove(menuID string) bool {
	i := c.find(menuID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

func (c *Cart) lines() []orders.LineRequest {
	out := make([]orders.LineRequest, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, orders.LineRequest{MenuID: it.MenuID, Qty: it.Quantity, Note: it.Note})
	}
	return out
}
