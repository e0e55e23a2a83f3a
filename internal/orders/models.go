package orders

import "time"

type OrderType string

const (
	TypeCheckout OrderType = "CHECKOUT"
	TypeCart     OrderType = "CART"
)

// Item is an order line. PriceCents is copied from the catalog when the
// order is created and never re-read afterwards.
type Item struct {
	MenuID     string `json:"menu_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
	Note       string `json:"note,omitempty"`
}

// Payload is the variant part of an order: a single checkout line or a cart snapshot.
type Payload interface {
	Type() OrderType
	Lines() []Item
}

type CheckoutPayload struct {
	Line Item
}

func (CheckoutPayload) Type() OrderType   { return TypeCheckout }
func (p CheckoutPayload) Lines() []Item { return []Item{p.Line} }

type CartPayload struct {
	CartID string
	Items  []Item
}

func (CartPayload) Type() OrderType   { return TypeCart }
func (p CartPayload) Lines() []Item { return p.Items }

type Order struct {
	ID           string
	UserID       string
	RestaurantID string
	Status       Status
	Payload      Payload
	TotalCents   int64

	// PaymentToken is the gateway session of the current attempt.
	PaymentToken       string
	PaymentAttempt     int
	PaymentRequestedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) Type() OrderType { return o.Payload.Type() }
func (o *Order) Items() []Item   { return o.Payload.Lines() }

func (o *Order) Clone() *Order {
	c := *o
	switch p := o.Payload.(type) {
	case CartPayload:
		p.Items = append([]Item(nil), p.Items...)
		c.Payload = p
	case CheckoutPayload:
		c.Payload = p
	}
	if o.PaymentRequestedAt != nil {
		t := *o.PaymentRequestedAt
		c.PaymentRequestedAt = &t
	}
	return &c
}

// MenuItem is the catalog's view of a menu entry at lookup time.
type MenuItem struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price"`
	Available    bool   `json:"available"`
}

// LineRequest asks for a quantity of a menu item.
type LineRequest struct {
	MenuID string
	Qty    int
	Note   string
}

// Resolution is one gateway outcome delivered by a webhook, a client poll,
// the expiry listener or the sweep.
type Resolution struct {
	OrderID string
	Status  PaymentStatus
	// SessionToken, when set, must match the order's current attempt.
	SessionToken string
	Source       Source
}

type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceExpiry  Source = "expiry"
	SourceSweep   Source = "sweep"
)

func totalOf(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.PriceCents * int64(it.Qty)
	}
	return total
}
