package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the order state machine. All status writes go through Store.Mutate.
type Service struct {
	Store   Store
	Expiry  ExpiryStore
	Gateway Gateway
	Catalog Catalog
	Cache   StatusCache // optional
	Log     *zap.Logger

	ServiceName    string
	Window         time.Duration
	SweepGrace     time.Duration
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration

	Now func() time.Time
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

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// CreateCheckout places a Waiting order for a single menu item.
func (s *Service) CreateCheckout(ctx context.Context, userID string, req LineRequest) (*Order, error) {
	item, restaurantID, err := s.priceLine(ctx, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	o := &Order{
		ID:           uuid.NewString(),
		UserID:       userID,
		RestaurantID: restaurantID,
		Status:       StatusWaiting,
		Payload:      CheckoutPayload{Line: item},
		TotalCents:   totalOf([]Item{item}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Create(ctx, o, createdEvent(s.ServiceName, o)); err != nil {
		return nil, err
	}
	s.logger().Info("order created",
		zap.String("order_id", o.ID), zap.String("type", string(TypeCheckout)), zap.Int64("total_cents", o.TotalCents))
	return o, nil
}

// NewCartOrder prices a cart snapshot into an unsaved Waiting order. Every line
// must resolve in the catalog and belong to restaurantID.
func (s *Service) NewCartOrder(ctx context.Context, userID, restaurantID, cartID string, lines []LineRequest) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		item, rid, err := s.priceLine(ctx, l)
		if err != nil {
			return nil, err
		}
		if rid != restaurantID {
			return nil, fmt.Errorf("%w: menu %s is not served by restaurant %s", ErrPriceUnavailable, l.MenuID, restaurantID)
		}
		items = append(items, item)
	}
	now := s.now()
	return &Order{
		ID:           uuid.NewString(),
		UserID:       userID,
		RestaurantID: restaurantID,
		Status:       StatusWaiting,
		Payload:      CartPayload{CartID: cartID, Items: items},
		TotalCents:   totalOf(items),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) priceLine(ctx context.Context, req LineRequest) (Item, string, error) {
	if req.Qty < 1 {
		return Item{}, "", ErrInvalidQuantity
	}
	if req.MenuID == "" {
		return Item{}, "", ErrEmptyOrder
	}
	cctx, cancel := bounded(ctx, s.StoreTimeout)
	defer cancel()
	m, err := s.Catalog.MenuItem(cctx, req.MenuID)
	if err != nil {
		return Item{}, "", err
	}
	if !m.Available || m.PriceCents <= 0 {
		return Item{}, "", fmt.Errorf("%w: %s", ErrPriceUnavailable, req.MenuID)
	}
	return Item{MenuID: m.ID, Name: m.Name, Qty: req.Qty, PriceCents: m.PriceCents, Note: req.Note}, m.RestaurantID, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*Order, error) {
	return s.Store.ListByUser(ctx, userID)
}

// RequestPayment opens a gateway session for a Waiting order and arms its
// expiry record. A Pending order returns its current session unchanged.
func (s *Service) RequestPayment(ctx context.Context, userID, orderID string) (string, error) {
	var token string
	var moved bool
	_, err := s.Store.Mutate(ctx, orderID, func(o *Order) ([]Envelope, error) {
		if o.UserID != userID {
			return nil, ErrNotFound
		}
		switch o.Status {
		case StatusPending:
			token = o.PaymentToken
			return nil, nil
		case StatusWaiting:
		default:
			// Cancelled is terminal; paying again goes through Reorder
			return nil, invalid(o, "request payment")
		}

		attempt := o.PaymentAttempt + 1
		tok, err := s.createSession(ctx, o, attempt)
		if err != nil {
			return nil, err
		}
		if err := s.arm(ctx, o.ID); err != nil {
			return nil, err
		}

		now := s.now()
		o.Status = StatusPending
		o.PaymentToken = tok
		o.PaymentAttempt = attempt
		o.PaymentRequestedAt = &now
		o.UpdatedAt = now
		token, moved = tok, true
		return []Envelope{newEnvelope(s.ServiceName, EventPaymentRequested, o.ID, PaymentRequestedPayload{
			OrderID: o.ID, Attempt: attempt, SessionToken: tok, ExpiresAt: now.Add(s.Window),
		})}, nil
	})
	if err != nil {
		return "", err
	}
	if moved {
		s.committed(ctx, orderID, StatusWaiting, StatusPending)
		s.logger().Info("payment requested", zap.String("order_id", orderID), zap.Duration("window", s.Window))
	}
	return token, nil
}

func (s *Service) createSession(ctx context.Context, o *Order, attempt int) (string, error) {
	gctx, cancel := bounded(ctx, s.GatewayTimeout)
	defer cancel()
	tok, err := s.Gateway.CreateSession(gctx, o, attempt)
	if err != nil {
		return "", gatewayErr(err)
	}
	return tok, nil
}

func (s *Service) arm(ctx context.Context, orderID string) error {
	sctx, cancel := bounded(ctx, s.StoreTimeout)
	defer cancel()
	if err := s.Expiry.Arm(sctx, orderID, s.Window); err != nil {
		return storeErr("arm expiry", err)
	}
	return nil
}

// disarm runs after the order left Pending. A failure only leaves a lapse
// that reconciliation will treat as stale.
func (s *Service) disarm(ctx context.Context, orderID string) {
	sctx, cancel := bounded(ctx, s.StoreTimeout)
	defer cancel()
	if err := s.Expiry.Disarm(sctx, orderID); err != nil {
		s.logger().Warn("disarm expiry", zap.String("order_id", orderID), zap.Error(err))
	}
}

// expireSession closes the gateway session of an order that just left
// Pending for Cancelled. A failure is only logged: the sweep and the
// settled-after-cancellation path still catch a late payment.
func (s *Service) expireSession(ctx context.Context, orderID, token string) {
	if token == "" {
		return
	}
	gctx, cancel := bounded(ctx, s.GatewayTimeout)
	defer cancel()
	if err := s.Gateway.ExpireSession(gctx, token); err != nil {
		s.logger().Warn("expire payment session", zap.String("order_id", orderID), zap.Error(err))
	}
}

func gatewayErr(err error) error {
	if errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

// CancelByUser cancels an order whose payment has not been requested yet.
func (s *Service) CancelByUser(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.advance(ctx, orderID, "cancel", StatusWaiting, StatusCancelled, "user", func(o *Order) error {
		if o.UserID != userID {
			return ErrNotFound
		}
		return nil
	})
}

// Deliver hands a prepared order to delivery.
func (s *Service) Deliver(ctx context.Context, restaurantID, orderID string) (*Order, error) {
	return s.advance(ctx, orderID, "deliver", StatusPreparing, StatusDelivering, "restaurant", ownedBy(restaurantID))
}

func (s *Service) Complete(ctx context.Context, restaurantID, orderID string) (*Order, error) {
	return s.advance(ctx, orderID, "complete", StatusDelivering, StatusCompleted, "restaurant", ownedBy(restaurantID))
}

func ownedBy(restaurantID string) func(*Order) error {
	return func(o *Order) error {
		if o.RestaurantID != restaurantID {
			return ErrForbidden
		}
		return nil
	}
}

func (s *Service) advance(ctx context.Context, orderID, op string, from, to Status, actor string, authorize func(*Order) error) (*Order, error) {
	o, err := s.Store.Mutate(ctx, orderID, func(o *Order) ([]Envelope, error) {
		if err := authorize(o); err != nil {
			return nil, err
		}
		if o.Status != from {
			return nil, invalid(o, op)
		}
		o.Status = to
		o.UpdatedAt = s.now()
		return []Envelope{s.statusEvent(o.ID, from, to, actor, "")}, nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, orderID, from, to)
	s.logger().Info("order "+op, zap.String("order_id", orderID), zap.String("status", string(to)))
	return o, nil
}

// Reorder places a fresh Waiting order with the lines of a finished one,
// priced from the live catalog.
func (s *Service) Reorder(ctx context.Context, userID, orderID string) (*Order, error) {
	prev, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !prev.Status.Terminal() {
		return nil, invalid(prev, "reorder")
	}
	lines := make([]LineRequest, 0, len(prev.Items()))
	for _, it := range prev.Items() {
		lines = append(lines, LineRequest{MenuID: it.MenuID, Qty: it.Qty, Note: it.Note})
	}

	if prev.Type() == TypeCheckout {
		return s.CreateCheckout(ctx, userID, lines[0])
	}
	o, err := s.NewCartOrder(ctx, userID, prev.RestaurantID, "", lines)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, o, createdEvent(s.ServiceName, o)); err != nil {
		return nil, err
	}
	s.logger().Info("order placed again", zap.String("order_id", o.ID), zap.String("previous_id", prev.ID))
	return o, nil
}

var statusEvents = map[Status]string{
	StatusCancelled:  EventOrderCancelled,
	StatusDelivering: EventOrderDelivering,
	StatusCompleted:  EventOrderCompleted,
}

func (s *Service) statusEvent(orderID string, from, to Status, source, reason string) Envelope {
	return newEnvelope(s.ServiceName, statusEvents[to], orderID, StatusChangedPayload{
		OrderID: orderID, From: from, To: to, Source: source, Reason: reason,
	})
}

// committed runs the post-commit bookkeeping of a transition.
func (s *Service) committed(ctx context.Context, orderID string, from, to Status) {
	metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	if s.Cache == nil {
		return
	}
	cctx, cancel := bounded(ctx, s.StoreTimeout)
	defer cancel()
	if err := s.Cache.Invalidate(cctx, orderID); err != nil {
		s.logger().Debug("invalidate status cache", zap.String("order_id", orderID), zap.Error(err))
	}
}
