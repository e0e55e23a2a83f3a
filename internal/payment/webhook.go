package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("event type not handled")
)

// ParseWebhook verifies a Stripe event and maps it to a Resolution for the
// order named in the session metadata.
func (s *Stripe) ParseWebhook(payload []byte, sigHeader string) (orders.Resolution, stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return orders.Resolution{}, event, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status orders.PaymentStatus
	switch event.Type {
	case "checkout.session.completed":
		status = orders.PaymentSettled
	case "checkout.session.async_payment_succeeded":
		status = orders.PaymentSettled
	case "checkout.session.async_payment_failed":
		status = orders.PaymentDenied
	case "checkout.session.expired":
		status = orders.PaymentExpired
	default:
		return orders.Resolution{}, event, ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return orders.Resolution{}, event, fmt.Errorf("decode checkout session: %w", err)
	}
	if event.Type == "checkout.session.completed" && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		status = orders.PaymentPending
	}

	orderID := sess.Metadata["order_id"]
	if orderID == "" {
		orderID = sess.ClientReferenceID
	}
	if orderID == "" {
		return orders.Resolution{}, event, fmt.Errorf("session %s carries no order id", sess.ID)
	}
	return orders.Resolution{
		OrderID:      orderID,
		Status:       status,
		SessionToken: sess.ID,
		Source:       orders.SourceWebhook,
	}, event, nil
}
