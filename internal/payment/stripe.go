package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base, e.g. for stripe-mock.
	APIURL     string
	SuccessURL string
	CancelURL  string
	Currency   string
	// SessionTTL is how long a checkout session stays payable. Stripe rejects
	// anything under MinSessionTTL, so shorter windows are raised to it.
	SessionTTL time.Duration
}

// MinSessionTTL is the shortest expires_at Stripe accepts.
const MinSessionTTL = 30 * time.Minute

// Stripe adapts Stripe Checkout Sessions to orders.Gateway. The session id is
// the payment token handed to the client.
type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
	sessionTTL    time.Duration
	now           func() time.Time
}

func NewStripe(cfg Config) *Stripe {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIURL),
				MaxNetworkRetries: stripe.Int64(0),
				LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
			}),
		}
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "idr"
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		currency:      currency,
		sessionTTL:    max(cfg.SessionTTL, MinSessionTTL),
		now:           time.Now,
	}
}

// IdempotencyKey names one payment attempt. Stripe replays the original
// response for a repeated key, so a retried attempt never opens a second
// chargeable session.
func IdempotencyKey(orderID string, attempt int) string {
	return orderID + "-" + strconv.Itoa(attempt)
}

func (s *Stripe) CreateSession(ctx context.Context, o *orders.Order, attempt int) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(o.ID),
		ExpiresAt:         stripe.Int64(s.now().Add(s.sessionTTL).Unix()),
	}
	for _, it := range o.Items() {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(it.Qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				UnitAmount:  stripe.Int64(it.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(it.Name)},
			},
		})
	}
	params.AddMetadata("order_id", o.ID)
	params.AddMetadata("user_id", o.UserID)
	params.AddMetadata("attempt", strconv.Itoa(attempt))
	params.SetIdempotencyKey(IdempotencyKey(o.ID, attempt))
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %v", orders.ErrGatewayUnavailable, err)
	}
	return sess.ID, nil
}

func (s *Stripe) QueryStatus(ctx context.Context, o *orders.Order) (orders.PaymentStatus, error) {
	if o.PaymentToken == "" {
		return orders.PaymentCreated, nil
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(o.PaymentToken, params)
	if err != nil {
		return "", fmt.Errorf("%w: get checkout session: %v", orders.ErrGatewayUnavailable, err)
	}
	return sessionStatus(sess), nil
}

// ExpireSession closes an open session so it can no longer be paid.
func (s *Stripe) ExpireSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := s.api.CheckoutSessions.Expire(token, params); err != nil {
		return fmt.Errorf("%w: expire checkout session: %v", orders.ErrGatewayUnavailable, err)
	}
	return nil
}

func sessionStatus(sess *stripe.CheckoutSession) orders.PaymentStatus {
	switch sess.Status {
	case stripe.CheckoutSessionStatusExpired:
		return orders.PaymentExpired
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// async methods (bank transfer) complete the session before funds arrive
			return orders.PaymentPending
		}
		return orders.PaymentSettled
	default:
		return orders.PaymentCreated
	}
}
