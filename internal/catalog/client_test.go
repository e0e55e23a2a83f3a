package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/menus/m1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m1","restaurantId":"r1","name":"Nasi Goreng","price":25000,"available":true}`))
		case "/menus/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	m, err := c.MenuItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, orders.MenuItem{ID: "m1", RestaurantID: "r1", Name: "Nasi Goreng", PriceCents: 25000, Available: true}, m)

	_, err = c.MenuItem(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrPriceUnavailable)

	_, err = c.MenuItem(ctx, "broken")
	assert.ErrorIs(t, err, orders.ErrStoreUnavailable)
}

func TestMenuItem_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL, time.Second).MenuItem(context.Background(), "m1")
	assert.ErrorIs(t, err, orders.ErrStoreUnavailable)
}
