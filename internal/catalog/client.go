package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// HTTPClient reads menu items from the restaurant catalog service.
type HTTPClient struct {
	Client  *http.Client
	BaseURL string
}

func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{Client: &http.Client{Timeout: timeout}, BaseURL: baseURL}
}

func (c *HTTPClient) MenuItem(ctx context.Context, menuID string) (orders.MenuItem, error) {
	u := fmt.Sprintf("%s/menus/%s", c.BaseURL, url.PathEscape(menuID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return orders.MenuItem{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return orders.MenuItem{}, fmt.Errorf("%w: catalog: %v", orders.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return orders.MenuItem{}, fmt.Errorf("%w: menu %s not found", orders.ErrPriceUnavailable, menuID)
	default:
		return orders.MenuItem{}, fmt.Errorf("%w: catalog status %d", orders.ErrStoreUnavailable, resp.StatusCode)
	}

	var m orders.MenuItem
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return orders.MenuItem{}, fmt.Errorf("%w: decode menu %s: %v", orders.ErrStoreUnavailable, menuID, err)
	}
	if m.ID == "" {
		m.ID = menuID
	}
	return m, nil
}
