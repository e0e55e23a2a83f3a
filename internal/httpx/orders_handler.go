package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/carts"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ViewCache fills are versioned: Set drops a view read before the last
// invalidation.
type ViewCache interface {
	Get(ctx context.Context, orderID string) ([]byte, bool, error)
	Version(ctx context.Context, orderID string) (int64, error)
	Set(ctx context.Context, orderID string, version int64, view []byte) (bool, error)
}

type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (orderID string, claimed bool, err error)
	Remember(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

type OrdersHandler struct {
	Orders *orders.Service
	Carts  *carts.Service
	Cache  ViewCache   // optional
	Idem   Idempotency // optional
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router, g Guards) {
	r.Group(func(r chi.Router) {
		r.Use(g.User)
		r.Post("/order", h.createOrder)
		r.Get("/order", h.listOrders)
		r.Get("/order/{id}", h.getOrder)
		r.Post("/order/pay-order-confirmation", h.requestPayment)
		r.Get("/order/check-midtrans-status", h.paymentStatus)
		r.Post("/order/payment-callback", h.paymentCallback)
		r.Patch("/order/cancel-order/{id}", h.cancelOrder)
		r.Post("/order/{id}/reorder", h.reorder)
	})
	r.Group(func(r chi.Router) {
		r.Use(g.Restaurant)
		r.Patch("/order/deliver-order/{id}", h.deliverOrder)
		r.Patch("/order/complete-order/{id}", h.completeOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(g.Internal)
		r.Put("/order/orders/{id}", h.internalUpdate)
	})
}

type OrderView struct {
	OrderID          string           `json:"order_id"`
	UserID           string           `json:"user_id"`
	RestaurantID     string           `json:"restaurant_id"`
	OrderType        orders.OrderType `json:"order_type"`
	CartID           string           `json:"cart_id,omitempty"`
	Status           orders.Status    `json:"status"`
	Items            []orders.Item    `json:"items"`
	TotalCents       int64            `json:"total_cents"`
	PaymentToken     string           `json:"payment_token,omitempty"`
	PaymentExpiresAt *time.Time       `json:"payment_expires_at,omitempty"`
	// CanReorder offers "order again" once the order is finished.
	CanReorder bool      `json:"can_reorder"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h *OrdersHandler) view(o *orders.Order) OrderView {
	v := OrderView{
		OrderID:      o.ID,
		UserID:       o.UserID,
		RestaurantID: o.RestaurantID,
		OrderType:    o.Type(),
		Status:       o.Status,
		Items:        o.Items(),
		TotalCents:   o.TotalCents,
		CanReorder:   o.Status.Terminal(),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if p, ok := o.Payload.(orders.CartPayload); ok {
		v.CartID = p.CartID
	}
	if o.Status == orders.StatusPending {
		v.PaymentToken = o.PaymentToken
		if o.PaymentRequestedAt != nil {
			exp := o.PaymentRequestedAt.Add(h.Orders.Window)
			v.PaymentExpiresAt = &exp
		}
	}
	return v
}

type CreateOrderReq struct {
	MenuID   string `json:"menuId"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
	CartID   string `json:"cartId"`
	FromCart bool   `json:"fromCart"`
}

type CreateOrderResp struct {
	OrderID    string        `json:"order_id"`
	Status     orders.Status `json:"status"`
	TotalCents int64         `json:"total_cents"`
	Idempotent bool          `json:"idempotent"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	user := PrincipalFrom(r.Context()).UserID
	var req CreateOrderReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx := r.Context()

	idemKey := r.Header.Get("Idempotency-Key")
	claimed := false
	if idemKey != "" && h.Idem != nil {
		id, ok, err := h.Idem.Claim(ctx, user, idemKey)
		switch {
		case err != nil:
			h.Log.Warn("claim idempotency key", zap.Error(err))
		case ok:
			claimed = true
		case id == "":
			writeError(w, r, h.Log, errInFlight)
			return
		default:
			o, err := h.Orders.Get(ctx, user, id)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{OrderID: o.ID, Status: o.Status, TotalCents: o.TotalCents, Idempotent: true})
			return
		}
	}

	var (
		o   *orders.Order
		err error
	)
	switch {
	case req.CartID != "" || req.FromCart:
		o, err = h.Carts.Checkout(ctx, user, req.CartID)
	case req.MenuID != "":
		o, err = h.Orders.CreateCheckout(ctx, user, orders.LineRequest{MenuID: req.MenuID, Qty: req.Quantity, Note: req.Note})
	default:
		err = badRequest("menuId and quantity, or cartId, required")
	}
	if err != nil {
		if claimed {
			if rerr := h.Idem.Release(context.WithoutCancel(ctx), user, idemKey); rerr != nil {
				h.Log.Warn("release idempotency key", zap.Error(rerr))
			}
		}
		writeError(w, r, h.Log, err)
		return
	}

	if claimed {
		if err := h.Idem.Remember(context.WithoutCancel(ctx), user, idemKey, o.ID); err != nil {
			h.Log.Warn("remember idempotency key", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: o.ID, Status: o.Status, TotalCents: o.TotalCents})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.List(r.Context(), PrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, h.view(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := PrincipalFrom(r.Context()).UserID
	ctx := r.Context()

	// 1) cache, only for the owner
	var (
		version   int64
		cacheable bool
	)
	if h.Cache != nil {
		if b, ok, err := h.Cache.Get(ctx, id); err == nil && ok {
			var v OrderView
			if json.Unmarshal(b, &v) == nil && v.UserID == user {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(b)
				return
			}
		}
		// must be read before the store so a concurrent invalidation wins
		if v, err := h.Cache.Version(ctx, id); err == nil {
			version, cacheable = v, true
		}
	}

	// 2) store
	o, err := h.Orders.Get(ctx, user, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	b, err := json.Marshal(h.view(o))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if cacheable {
		if _, err := h.Cache.Set(ctx, id, version, b); err != nil {
			h.Log.Debug("cache order view", zap.String("order_id", id), zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type PayReq struct {
	OrderID string `json:"order_id"`
	// Echoed by the payment widget; amounts always come from the stored order.
	ItemQuantity int   `json:"itemQuantity"`
	ItemPrice    int64 `json:"itemPrice"`
}

type PayResp struct {
	OrderID   string        `json:"order_id"`
	Token     string        `json:"token"`
	Status    orders.Status `json:"status"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

func (h *OrdersHandler) requestPayment(w http.ResponseWriter, r *http.Request) {
	var req PayReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, r, h.Log, badRequest("order_id required"))
		return
	}
	user := PrincipalFrom(r.Context()).UserID
	tok, err := h.Orders.RequestPayment(r.Context(), user, req.OrderID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	resp := PayResp{OrderID: req.OrderID, Token: tok, Status: orders.StatusPending}
	if o, err := h.Orders.Get(r.Context(), user, req.OrderID); err == nil {
		v := h.view(o)
		resp.Status, resp.ExpiresAt = v.Status, v.PaymentExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type PaymentStatusResp struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

// paymentStatus is the poll-on-close read. It never changes the order.
func (h *OrdersHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("order_id")
	if id == "" {
		writeError(w, r, h.Log, badRequest("order_id required"))
		return
	}
	o, st, err := h.Orders.PaymentStatus(r.Context(), PrincipalFrom(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentStatusResp{OrderID: o.ID, Status: o.Status, PaymentStatus: st})
}

// paymentCallback runs when the payment widget closes: the server asks the
// gateway itself and reconciles, whatever the client claims.
func (h *OrdersHandler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx := r.Context()
	if _, err := h.Orders.Get(ctx, PrincipalFrom(ctx).UserID, req.OrderID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, st, err := h.Orders.SyncFromGateway(ctx, req.OrderID, orders.SourcePoll)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentStatusResp{OrderID: o.ID, Status: o.Status, PaymentStatus: st})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.CancelByUser(r.Context(), PrincipalFrom(r.Context()).UserID, chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *OrdersHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Deliver(r.Context(), PrincipalFrom(r.Context()).RestaurantID, chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *OrdersHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Complete(r.Context(), PrincipalFrom(r.Context()).RestaurantID, chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *OrdersHandler) reorder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Reorder(r.Context(), PrincipalFrom(r.Context()).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(o))
}

func (h *OrdersHandler) respondOrder(w http.ResponseWriter, r *http.Request, o *orders.Order, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(o))
}

// internalUpdate is the expiry listener's write path. Only a cancellation
// is accepted, and it goes through the guarded reconciliation.
func (h *OrdersHandler) internalUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status orders.Status `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Status != orders.StatusCancelled {
		writeError(w, r, h.Log, badRequest("only status Cancelled is accepted"))
		return
	}
	o, err := h.Orders.CancelLapsed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}
