package orders

import (
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/google/uuid"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventPaymentRequested = "PaymentRequested"
	EventOrderPaid        = "OrderPaid"
	EventOrderCancelled   = "OrderCancelled"
	EventOrderDelivering  = "OrderDelivering"
	EventOrderCompleted   = "OrderCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// Topic routes the kitchen dispatch separately from plain status changes.
func (e Envelope) Topic() string {
	if e.EventType == EventOrderPaid {
		return TopicKitchenDispatch
	}
	return TopicOrderStatus
}

type OrderCreatedPayload struct {
	OrderID      string    `json:"order_id"`
	UserID       string    `json:"user_id"`
	RestaurantID string    `json:"restaurant_id"`
	OrderType    OrderType `json:"order_type"`
	Items        []Item    `json:"items"`
	TotalCents   int64     `json:"total_cents"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Source  string `json:"source,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type PaymentRequestedPayload struct {
	OrderID      string    `json:"order_id"`
	Attempt      int       `json:"attempt"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OrderPaidPayload is the kitchen dispatch.
type OrderPaidPayload struct {
	OrderID      string `json:"order_id"`
	RestaurantID string `json:"restaurant_id"`
	Items        []Item `json:"items"`
	TotalCents   int64  `json:"total_cents"`
	Source       string `json:"source"`
}

func newEnvelope(producer, eventType, orderID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

func createdEvent(producer string, o *Order) Envelope {
	return newEnvelope(producer, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:      o.ID,
		UserID:       o.UserID,
		RestaurantID: o.RestaurantID,
		OrderType:    o.Type(),
		Items:        o.Items(),
		TotalCents:   o.TotalCents,
	})
}

// NewCreatedEvent builds the OrderCreated event for orders inserted outside the Service.
func NewCreatedEvent(producer string, o *Order) Envelope { return createdEvent(producer, o) }
