package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/carts"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartsHandler struct {
	Carts *carts.Service
	Log   *zap.Logger
}

func (h *CartsHandler) Register(r chi.Router, g Guards) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(g.User)
		r.Get("/", h.get)
		r.Post("/", h.open)
		r.Delete("/", h.delete)
		r.Post("/items", h.addItem)
		r.Patch("/items/{menuId}", h.setQuantity)
		r.Delete("/items/{menuId}", h.removeItem)
		r.Post("/checkout", h.checkout)
	})
}

func (h *CartsHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), PrincipalFrom(r.Context()).UserID)
	h.respond(w, r, c, err)
}

func (h *CartsHandler) open(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RestaurantID string `json:"restaurantId"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.RestaurantID == "" {
		writeError(w, r, h.Log, badRequest("restaurantId required"))
		return
	}
	c, err := h.Carts.GetOrCreate(r.Context(), PrincipalFrom(r.Context()).UserID, req.RestaurantID)
	h.respond(w, r, c, err)
}

func (h *CartsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Delete(r.Context(), PrincipalFrom(r.Context()).UserID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddItemReq struct {
	RestaurantID string `json:"restaurantId"`
	MenuID       string `json:"menuId"`
	Quantity     int    `json:"quantity"`
	Note         string `json:"note"`
}

func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.AddItem(r.Context(), PrincipalFrom(r.Context()).UserID, req.RestaurantID,
		orders.LineRequest{MenuID: req.MenuID, Qty: req.Quantity, Note: req.Note})
	h.respond(w, r, c, err)
}

func (h *CartsHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.SetQuantity(r.Context(), PrincipalFrom(r.Context()).UserID, chi.URLParam(r, "menuId"), req.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveItem(r.Context(), PrincipalFrom(r.Context()).UserID, chi.URLParam(r, "menuId"))
	h.respond(w, r, c, err)
}

func (h *CartsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartID string `json:"cartId"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	o, err := h.Carts.Checkout(r.Context(), PrincipalFrom(r.Context()).UserID, req.CartID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: o.ID, Status: o.Status, TotalCents: o.TotalCents})
}

func (h *CartsHandler) respond(w http.ResponseWriter, r *http.Request, c *carts.Cart, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
