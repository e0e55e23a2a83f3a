package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

type WebhookParser interface {
	ParseWebhook(payload []byte, sigHeader string) (orders.Resolution, stripe.Event, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, r orders.Resolution) (*orders.Order, error)
}

type PaymentsHandler struct {
	Parser WebhookParser
	Orders Reconciler
	Log    *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payment/webhook", h.webhook)
}

// webhook acknowledges every verified event the order service has decided
// on, including stale and unknown ones, so the gateway stops redelivering.
// Only infrastructure failures ask for a retry.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		writeError(w, r, h.Log, badRequest("unreadable body"))
		return
	}

	res, event, err := h.Parser.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		h.Log.Debug("webhook ignored", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, payment.ErrInvalidSignature):
		h.Log.Warn("webhook rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		writeError(w, r, h.Log, badRequest("invalid signature"))
		return
	case err != nil:
		h.Log.Warn("webhook undecodable", zap.String("event_id", event.ID), zap.Error(err))
		writeError(w, r, h.Log, badRequest("malformed event"))
		return
	}

	log := h.Log.With(zap.String("event_id", event.ID), zap.String("order_id", res.OrderID))
	o, err := h.Orders.Reconcile(r.Context(), res)
	switch {
	case err == nil:
		log.Info("webhook applied", zap.String("signal", string(res.Status)), zap.String("status", string(o.Status)))
	case errors.Is(err, orders.ErrGatewayUnavailable), errors.Is(err, orders.ErrStoreUnavailable):
		writeError(w, r, h.Log, err)
		return
	default:
		log.Warn("webhook not applicable", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
