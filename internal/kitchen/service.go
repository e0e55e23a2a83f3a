package kitchen

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Ticket is the kitchen's copy of a paid order.
type Ticket struct {
	OrderID      string
	RestaurantID string
	EventID      string
	Items        []orders.Item
	ReceivedAt   time.Time
}

type TicketStore interface {
	// Insert reports false when the order already has a ticket.
	Insert(ctx context.Context, t Ticket) (bool, error)
}

type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Service struct {
	Tickets TicketStore
	Dedup   Deduper
	Log     *zap.Logger
}

// HandleOrderPaid is the consumer handler for the kitchen dispatch topic.
// Redeliveries are dropped by event id; the ticket table's key on order id
// catches what the dedup cache misses.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && t != orders.EventOrderPaid {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message; committing it is the only way forward
		s.Log.Error("decode envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}
	log := s.Log.With(zap.String("event_id", env.EventID), zap.String("order_id", env.CorrelationID))

	first, err := s.Dedup.First(ctx, env.EventID)
	if err != nil {
		log.Warn("dedup unavailable, relying on ticket key", zap.Error(err))
		first = true
	}
	if !first {
		metrics.KitchenTickets.WithLabelValues("duplicate").Inc()
		log.Debug("duplicate dispatch")
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		log.Error("decode dispatch", zap.Error(err))
		return nil
	}

	created, err := s.Tickets.Insert(ctx, Ticket{
		OrderID:      p.OrderID,
		RestaurantID: p.RestaurantID,
		EventID:      env.EventID,
		Items:        p.Items,
		ReceivedAt:   time.Now().UTC(),
	})
	if err != nil {
		metrics.KitchenTickets.WithLabelValues("failed").Inc()
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Warn("release dedup claim", zap.Error(ferr))
		}
		return err
	}
	if !created {
		metrics.KitchenTickets.WithLabelValues("duplicate").Inc()
		log.Info("ticket already open")
		return nil
	}
	metrics.KitchenTickets.WithLabelValues("ticket").Inc()
	log.Info("kitchen ticket opened",
		zap.String("restaurant_id", p.RestaurantID), zap.Int("lines", len(p.Items)), zap.String("paid_via", p.Source))
	return nil
}
