package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var (
	errBadRequest = errors.New("bad request")
	errInFlight   = errors.New("a request with this Idempotency-Key is still in progress")
)

type badRequest string

func (e badRequest) Error() string { return string(e) }
func (e badRequest) Unwrap() error { return errBadRequest }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidState), errors.Is(err, errInFlight):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrPriceUnavailable),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrGatewayUnavailable), errors.Is(err, orders.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to statuses. Internal errors are logged and
// answered without detail.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code >= 500 {
		log.Error("request failed", zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return badRequest("invalid json")
	}
	return nil
}
