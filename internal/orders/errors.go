package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState       = errors.New("invalid state")
	ErrStaleTransition    = errors.New("stale transition")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrPriceUnavailable   = errors.New("menu price unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
)

// TransitionError reports an operation attempted from the wrong status.
type TransitionError struct {
	OrderID string
	Op      string
	From    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s order %s: not allowed from %s", e.Op, e.OrderID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

func invalid(o *Order, op string) error {
	return &TransitionError{OrderID: o.ID, Op: op, From: o.Status}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
