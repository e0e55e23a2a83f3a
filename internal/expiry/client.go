package expiry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// ErrRejected means the order service refused the cancellation for good
// (unknown order, bad request). Retrying cannot change the answer.
var ErrRejected = errors.New("cancellation rejected")

// HeaderInternalToken carries the shared internal credential.
const HeaderInternalToken = "X-Internal-Token"

// OrderClient calls the order service's internal cancellation endpoint.
type OrderClient struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

func NewOrderClient(baseURL, token string, timeout time.Duration) *OrderClient {
	return &OrderClient{Client: &http.Client{Timeout: timeout}, BaseURL: baseURL, Token: token}
}

func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	u := fmt.Sprintf("%s/order/orders/%s", c.BaseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader([]byte(`{"status":"Cancelled"}`)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderInternalToken, c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: order service answered %d", orders.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("order service throttled (429)")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: order %s: status %d", ErrRejected, orderID, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func permanent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, orders.ErrUnauthorized)
}
