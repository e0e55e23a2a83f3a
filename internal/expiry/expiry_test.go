package expiry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrderClient_CancelOrder(t *testing.T) {
	var gotMethod, gotPath, gotToken, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotToken = r.Method, r.URL.Path, r.Header.Get(HeaderInternalToken)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch r.URL.Path {
		case "/order/orders/ok":
			w.WriteHeader(http.StatusOK)
		case "/order/orders/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/order/orders/denied":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	c := NewOrderClient(srv.URL, "s3cret", time.Second)
	ctx := context.Background()

	require.NoError(t, c.CancelOrder(ctx, "ok"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/order/orders/ok", gotPath)
	assert.Equal(t, "s3cret", gotToken)
	assert.JSONEq(t, `{"status":"Cancelled"}`, gotBody)

	err := c.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, permanent(err))

	err = c.CancelOrder(ctx, "denied")
	assert.ErrorIs(t, err, orders.ErrUnauthorized)
	assert.True(t, permanent(err))

	err = c.CancelOrder(ctx, "flaky")
	assert.Error(t, err)
	assert.False(t, permanent(err))
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  int
	chans []chan string
}

func (s *fakeSource) Lapses(context.Context) (<-chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return nil, errors.New("dial tcp: connection refused")
	}
	ch := make(chan string, 8)
	s.chans = append(s.chans, ch)
	return ch, nil
}

func (s *fakeSource) stream(i int) chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.chans) {
		return nil
	}
	return s.chans[i]
}

type fakeOrders struct {
	mu        sync.Mutex
	calls     map[string]int
	cancelled []string
	errs      map[string][]error
}

func (f *fakeOrders) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if q := f.errs[id]; len(q) > 0 {
		f.errs[id] = q[1:]
		return q[0]
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeOrders) snapshot() ([]string, map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := map[string]int{}
	for k, v := range f.calls {
		calls[k] = v
	}
	return append([]string(nil), f.cancelled...), calls
}

func fast() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3) }

func TestListener_ForwardsLapsesAndResubscribes(t *testing.T) {
	src := &fakeSource{fail: 2}
	ord := &fakeOrders{calls: map[string]int{}, errs: map[string][]error{
		"flaky":   {errors.New("502"), errors.New("502")},
		"unknown": {ErrRejected},
	}}
	l := &Listener{
		Source:           src,
		Orders:           ord,
		Log:              zap.NewNop(),
		Workers:          2,
		SubscribeBackoff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
		CallBackoff:      fast,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return src.stream(0) != nil }, time.Second, 5*time.Millisecond)
	first := src.stream(0)
	first <- "o1"
	first <- "flaky"
	first <- "unknown"
	close(first)

	require.Eventually(t, func() bool { return src.stream(1) != nil }, time.Second, 5*time.Millisecond)
	src.stream(1) <- "o2"

	require.Eventually(t, func() bool {
		cancelled, _ := ord.snapshot()
		return len(cancelled) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}

	cancelled, calls := ord.snapshot()
	assert.ElementsMatch(t, []string{"o1", "flaky", "o2"}, cancelled)
	assert.Equal(t, 3, calls["flaky"])
	assert.Equal(t, 1, calls["unknown"], "rejections are not retried")
}

func TestListener_HandleGivesUpAfterRetries(t *testing.T) {
	ord := &fakeOrders{calls: map[string]int{}, errs: map[string][]error{
		"down": {errors.New("1"), errors.New("2"), errors.New("3"), errors.New("4"), errors.New("5")},
	}}
	l := &Listener{Orders: ord, Log: zap.NewNop(), CallBackoff: fast}

	l.Handle(context.Background(), "down")
	cancelled, calls := ord.snapshot()
	assert.Empty(t, cancelled)
	assert.Equal(t, 4, calls["down"])
}
