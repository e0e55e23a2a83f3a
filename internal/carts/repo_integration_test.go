//go:build integration

package carts_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ariefcatur/go-food-orders/internal/carts"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/orders/ordertest"
	"github.com/ariefcatur/go-food-orders/internal/postgres/pgtest"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repoService(t *testing.T) (*carts.Service, *pgxpool.Pool) {
	t.Helper()
	pool := pgtest.Pool(t)
	osvc, _, _, _, _ := ordertest.NewService(menu...)
	osvc.Store = &orders.Repo{DB: pool}
	return &carts.Service{Store: &carts.Repo{DB: pool}, Orders: osvc, ServiceName: "order-service"}, pool
}

func TestRepo_ConcurrentSwitchesLeaveOneCart(t *testing.T) {
	svc, pool := repoService(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// without the advisory lock two creators collide on carts.user_id
			_, err := svc.GetOrCreate(ctx, uid, fmt.Sprintf("resto-%d", i%2+1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, pgtest.Count(t, pool, `SELECT count(*) FROM carts WHERE user_id=$1`, uid))
}

func TestRepo_CheckoutConsumesCart(t *testing.T) {
	svc, pool := repoService(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	_, err := svc.AddItem(ctx, uid, "resto-1", orders.LineRequest{MenuID: "nasi-goreng", Qty: 2})
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, uid, "resto-1", orders.LineRequest{MenuID: "es-teh", Qty: 1, Note: "less sugar"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []carts.Item{
		{MenuID: "nasi-goreng", Quantity: 2},
		{MenuID: "es-teh", Quantity: 1, Note: "less sugar"},
	}, got.Items)

	o, err := svc.Checkout(ctx, uid, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(55000), o.TotalCents)

	_, err = svc.Get(ctx, uid)
	assert.ErrorIs(t, err, carts.ErrNoCart)
	assert.Equal(t, 0, pgtest.Count(t, pool, `SELECT count(*) FROM cart_items WHERE cart_id=$1`, c.ID))
	assert.Equal(t, 1, pgtest.Count(t, pool, `SELECT count(*) FROM orders WHERE id=$1 AND cart_id=$2`, o.ID, c.ID))

	// the consumed cart cannot be checked out twice
	_, err = svc.Checkout(ctx, uid, c.ID)
	assert.ErrorIs(t, err, carts.ErrNoCart)
}
