package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"go.uber.org/zap"
)

type outcome string

const (
	outcomeApplied outcome = "applied"
	outcomeNoop    outcome = "noop"
	outcomeStale   outcome = "stale"
)

// Reconcile merges one payment outcome into the order. Webhook, client poll,
// expiry listener and sweep all land here, in any order and any number of
// times; the result depends only on the serialized order of arrival.
//
//	settled          Pending -> Preparing; Preparing or later: no-op; Cancelled: stale
//	denied, expired,
//	window lapsed    Pending -> Cancelled; Cancelled: no-op; paid or Waiting: stale
//	created, pending no-op
//
// Stale signals are logged and reported as success.
func (s *Service) Reconcile(ctx context.Context, r Resolution) (*Order, error) {
	var (
		result   = outcomeNoop
		from, to Status
		reason   string
	)
	o, err := s.Store.Mutate(ctx, r.OrderID, func(o *Order) ([]Envelope, error) {
		result, from, to, reason = outcomeNoop, o.Status, o.Status, ""

		if r.SessionToken != "" && o.PaymentToken != "" && r.SessionToken != o.PaymentToken {
			result, reason = outcomeStale, "signal for a superseded payment session"
			return nil, nil
		}

		switch {
		case r.Status == PaymentSettled:
			switch {
			case o.Status == StatusPending:
				to = StatusPreparing
			case o.Status.Paid():
				return nil, nil
			case o.Status == StatusCancelled:
				result, reason = outcomeStale, "settled after cancellation, refund required"
				return nil, nil
			default:
				return nil, invalid(o, "settle")
			}
		case r.Status.cancels():
			switch {
			case o.Status == StatusPending:
				to = StatusCancelled
			case o.Status == StatusCancelled:
				return nil, nil
			default:
				result, reason = outcomeStale, fmt.Sprintf("%s signal for %s order", r.Status, o.Status)
				return nil, nil
			}
		default:
			return nil, nil
		}

		o.Status = to
		o.UpdatedAt = s.now()
		result = outcomeApplied
		if to == StatusPreparing {
			return []Envelope{newEnvelope(s.ServiceName, EventOrderPaid, o.ID, OrderPaidPayload{
				OrderID:      o.ID,
				RestaurantID: o.RestaurantID,
				Items:        o.Items(),
				TotalCents:   o.TotalCents,
				Source:       string(r.Source),
			})}, nil
		}
		return []Envelope{s.statusEvent(o.ID, from, to, string(r.Source), string(r.Status))}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Reconciliations.WithLabelValues(string(r.Source), string(result)).Inc()
	log := s.logger().With(
		zap.String("order_id", r.OrderID),
		zap.String("source", string(r.Source)),
		zap.String("signal", string(r.Status)),
	)
	switch result {
	case outcomeApplied:
		s.disarm(ctx, r.OrderID)
		if to == StatusCancelled {
			s.expireSession(ctx, r.OrderID, o.PaymentToken)
		}
		s.committed(ctx, r.OrderID, from, to)
		log.Info("order reconciled", zap.String("from", string(from)), zap.String("to", string(to)))
	case outcomeStale:
		log.Warn("stale transition ignored", zap.String("status", string(from)),
			zap.Error(fmt.Errorf("%w: %s", ErrStaleTransition, reason)))
	default:
		log.Debug("reconcile no-op", zap.String("status", string(from)))
	}
	return o, nil
}

// CancelLapsed is the expiry listener's write path.
func (s *Service) CancelLapsed(ctx context.Context, orderID string) (*Order, error) {
	return s.Reconcile(ctx, Resolution{OrderID: orderID, Status: PaymentWindowLapsed, Source: SourceExpiry})
}

// PaymentStatus reads the gateway's view of the order's current session
// without touching local state.
func (s *Service) PaymentStatus(ctx context.Context, userID, orderID string) (*Order, PaymentStatus, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, "", err
	}
	st, err := s.queryStatus(ctx, o)
	if err != nil {
		return nil, "", err
	}
	return o, st, nil
}

// SyncFromGateway queries the gateway for the order's session and reconciles the answer.
func (s *Service) SyncFromGateway(ctx context.Context, orderID string, source Source) (*Order, PaymentStatus, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	st, err := s.queryStatus(ctx, o)
	if err != nil {
		return nil, "", err
	}
	if o.PaymentToken == "" {
		return o, st, nil
	}
	o, err = s.Reconcile(ctx, Resolution{OrderID: orderID, Status: st, SessionToken: o.PaymentToken, Source: source})
	if err != nil {
		return nil, "", err
	}
	return o, st, nil
}

func (s *Service) queryStatus(ctx context.Context, o *Order) (PaymentStatus, error) {
	if o.PaymentToken == "" {
		return PaymentCreated, nil
	}
	gctx, cancel := bounded(ctx, s.GatewayTimeout)
	defer cancel()
	st, err := s.Gateway.QueryStatus(gctx, o)
	if err != nil {
		return "", gatewayErr(err)
	}
	return st, nil
}
