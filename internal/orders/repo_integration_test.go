//go:build integration

package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/orders/ordertest"
	"github.com/ariefcatur/go-food-orders/internal/postgres/pgtest"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repoService(t *testing.T) (*orders.Service, *orders.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := pgtest.Pool(t)
	svc, _, _, _, _ := ordertest.NewService(menu...)
	repo := &orders.Repo{DB: pool}
	svc.Store = repo
	return svc, repo, pool
}

func outboxCount(t *testing.T, pool *pgxpool.Pool, orderID, eventType string) int {
	t.Helper()
	return pgtest.Count(t, pool, `SELECT count(*) FROM outbox WHERE key=$1 AND event_type=$2`, orderID, eventType)
}

func TestRepo_CreateGetList(t *testing.T) {
	svc, repo, pool := repoService(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	o, err := svc.CreateCheckout(ctx, uid, orders.LineRequest{MenuID: "nasi-goreng", Qty: 2, Note: "pedas"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusWaiting, got.Status)
	assert.Equal(t, uid, got.UserID)
	assert.Equal(t, int64(50000), got.TotalCents)
	require.Len(t, got.Items(), 1)
	assert.Equal(t, orders.Item{MenuID: "nasi-goreng", Name: "Nasi Goreng", Qty: 2, PriceCents: 25000, Note: "pedas"}, got.Items()[0])
	assert.Equal(t, 1, outboxCount(t, pool, o.ID, orders.EventOrderCreated))

	list, err := repo.ListByUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestRepo_MutateSerializesWriters(t *testing.T) {
	svc, repo, pool := repoService(t)
	ctx := context.Background()
	o, err := svc.CreateCheckout(ctx, "it-"+uuid.NewString(), orders.LineRequest{MenuID: "es-teh", Qty: 1})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, o.ID, func(o *orders.Order) ([]orders.Envelope, error) {
				// read-modify-write; without the row lock increments get lost
				o.PaymentAttempt++
				o.UpdatedAt = time.Now().UTC()
				return []orders.Envelope{orders.NewCreatedEvent("it", o)}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.PaymentAttempt)
	assert.Equal(t, writers+1, outboxCount(t, pool, o.ID, orders.EventOrderCreated))
}

func TestRepo_MutateErrorRollsBack(t *testing.T) {
	svc, repo, pool := repoService(t)
	ctx := context.Background()
	o, err := svc.CreateCheckout(ctx, "it-"+uuid.NewString(), orders.LineRequest{MenuID: "es-teh", Qty: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Mutate(ctx, o.ID, func(o *orders.Order) ([]orders.Envelope, error) {
		o.Status = orders.StatusCancelled
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusWaiting, got.Status)
	assert.Equal(t, 1, pgtest.Count(t, pool, `SELECT count(*) FROM outbox WHERE key=$1`, o.ID))
}

func TestRepo_ConcurrentSettleAndLapse(t *testing.T) {
	svc, repo, pool := repoService(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	for i := 0; i < 10; i++ {
		o, err := svc.CreateCheckout(ctx, uid, orders.LineRequest{MenuID: "nasi-goreng", Qty: 1})
		require.NoError(t, err)
		_, err = svc.RequestPayment(ctx, uid, o.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, sig := range []orders.PaymentStatus{orders.PaymentSettled, orders.PaymentWindowLapsed} {
			wg.Add(1)
			go func(sig orders.PaymentStatus) {
				defer wg.Done()
				_, err := svc.Reconcile(ctx, orders.Resolution{OrderID: o.ID, Status: sig, Source: orders.SourceWebhook})
				assert.NoError(t, err)
			}(sig)
		}
		wg.Wait()

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		paid := outboxCount(t, pool, o.ID, orders.EventOrderPaid)
		cancelled := outboxCount(t, pool, o.ID, orders.EventOrderCancelled)
		switch got.Status {
		case orders.StatusPreparing:
			assert.Equal(t, 1, paid)
			assert.Equal(t, 0, cancelled)
		case orders.StatusCancelled:
			assert.Equal(t, 0, paid)
			assert.Equal(t, 1, cancelled)
		default:
			t.Fatalf("unexpected status %s", got.Status)
		}
	}
}

func TestRepo_ListStalePending(t *testing.T) {
	svc, repo, _ := repoService(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	o, err := svc.CreateCheckout(ctx, uid, orders.LineRequest{MenuID: "es-teh", Qty: 1})
	require.NoError(t, err)
	_, err = svc.RequestPayment(ctx, uid, o.ID)
	require.NoError(t, err)

	ids, err := repo.ListStalePending(ctx, time.Now().Add(time.Minute), 1000)
	require.NoError(t, err)
	assert.Contains(t, ids, o.ID)

	ids, err = repo.ListStalePending(ctx, time.Now().Add(-time.Hour), 1000)
	require.NoError(t, err)
	assert.NotContains(t, ids, o.ID)
}
