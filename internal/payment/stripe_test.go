package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"
)

type fakeStripe struct {
	mu       sync.Mutex
	idemKeys []string
	forms    []map[string]string
	session  map[string]any
	expired  []string
	fail     bool
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = r.ParseForm()
		form := map[string]string{}
		for k, v := range r.PostForm {
			form[k] = v[0]
		}
		f.forms = append(f.forms, form)
		f.idemKeys = append(f.idemKeys, r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cs_test_" + form["metadata[attempt]"], "object": "checkout.session", "status": "open", "payment_status": "unpaid",
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/expire"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/checkout/sessions/"), "/expire")
		f.expired = append(f.expired, id)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "object": "checkout.session", "status": "expired"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/checkout/sessions/"):
		_ = json.NewEncoder(w).Encode(f.session)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"no route"}}`))
	}
}

func newTestStripe(t *testing.T) (*Stripe, *fakeStripe) {
	t.Helper()
	return newTestStripeTTL(t, 0)
}

func newTestStripeTTL(t *testing.T, ttl time.Duration) (*Stripe, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s := NewStripe(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		APIURL:        srv.URL,
		SuccessURL:    "http://localhost/ok",
		CancelURL:     "http://localhost/cancel",
		SessionTTL:    ttl,
	})
	s.now = func() time.Time { return testNow }
	return s, fake
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOrder() *orders.Order {
	return &orders.Order{
		ID:     "6f1c2a9e-0b7d-4d7e-9a51-3f0f4b2d8c11",
		UserID: "user-1",
		Payload: orders.CartPayload{Items: []orders.Item{
			{MenuID: "m1", Name: "Nasi Goreng", Qty: 2, PriceCents: 25000},
			{MenuID: "m2", Name: "Es Teh", Qty: 1, PriceCents: 5000},
		}},
	}
}

func TestCreateSession(t *testing.T) {
	s, fake := newTestStripe(t)
	o := testOrder()

	tok, err := s.CreateSession(context.Background(), o, 2)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_2", tok)

	require.Len(t, fake.forms, 1)
	form := fake.forms[0]
	assert.Equal(t, o.ID+"-2", fake.idemKeys[0])
	assert.Equal(t, o.ID, form["client_reference_id"])
	assert.Equal(t, o.ID, form["metadata[order_id]"])
	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "idr", form["line_items[0][price_data][currency]"])
	assert.Equal(t, "25000", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "2", form["line_items[0][quantity]"])
	assert.Equal(t, "Es Teh", form["line_items[1][price_data][product_data][name]"])
	assert.Equal(t, strconv.FormatInt(testNow.Add(MinSessionTTL).Unix(), 10), form["expires_at"], "short windows are raised to the minimum")
}

func TestCreateSession_ExpiresWithWindow(t *testing.T) {
	s, fake := newTestStripeTTL(t, 45*time.Minute)

	_, err := s.CreateSession(context.Background(), testOrder(), 1)
	require.NoError(t, err)
	require.Len(t, fake.forms, 1)
	assert.Equal(t, strconv.FormatInt(testNow.Add(45*time.Minute).Unix(), 10), fake.forms[0]["expires_at"])
}

func TestExpireSession(t *testing.T) {
	s, fake := newTestStripe(t)
	ctx := context.Background()

	require.NoError(t, s.ExpireSession(ctx, "cs_test_1"))
	assert.Equal(t, []string{"cs_test_1"}, fake.expired)

	require.NoError(t, s.ExpireSession(ctx, ""), "no session, nothing to expire")
	assert.Len(t, fake.expired, 1)

	fake.fail = true
	assert.ErrorIs(t, s.ExpireSession(ctx, "cs_test_1"), orders.ErrGatewayUnavailable)
}

func TestCreateSession_FailureIsGatewayUnavailable(t *testing.T) {
	s, fake := newTestStripe(t)
	fake.fail = true

	_, err := s.CreateSession(context.Background(), testOrder(), 1)
	assert.ErrorIs(t, err, orders.ErrGatewayUnavailable)
}

func TestQueryStatus(t *testing.T) {
	s, fake := newTestStripe(t)
	o := testOrder()

	st, err := s.QueryStatus(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentCreated, st, "no session yet")

	o.PaymentToken = "cs_test_1"
	cases := []struct {
		status, paymentStatus string
		want                  orders.PaymentStatus
	}{
		{"open", "unpaid", orders.PaymentCreated},
		{"complete", "paid", orders.PaymentSettled},
		{"complete", "no_payment_required", orders.PaymentSettled},
		{"complete", "unpaid", orders.PaymentPending},
		{"expired", "unpaid", orders.PaymentExpired},
	}
	for _, c := range cases {
		fake.mu.Lock()
		fake.session = map[string]any{"id": "cs_test_1", "object": "checkout.session", "status": c.status, "payment_status": c.paymentStatus}
		fake.mu.Unlock()

		st, err := s.QueryStatus(context.Background(), o)
		require.NoError(t, err)
		assert.Equal(t, c.want, st, "%s/%s", c.status, c.paymentStatus)
	}
}

func signedEvent(t *testing.T, secret, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return signed.Payload, signed.Header
}

func TestParseWebhook(t *testing.T) {
	s, _ := newTestStripe(t)
	orderID := testOrder().ID
	session := func(paymentStatus string) map[string]any {
		return map[string]any{
			"id": "cs_test_1", "object": "checkout.session", "payment_status": paymentStatus,
			"metadata": map[string]string{"order_id": orderID},
		}
	}

	cases := []struct {
		eventType, paymentStatus string
		want                     orders.PaymentStatus
	}{
		{"checkout.session.completed", "paid", orders.PaymentSettled},
		{"checkout.session.completed", "unpaid", orders.PaymentPending},
		{"checkout.session.async_payment_succeeded", "paid", orders.PaymentSettled},
		{"checkout.session.async_payment_failed", "unpaid", orders.PaymentDenied},
		{"checkout.session.expired", "unpaid", orders.PaymentExpired},
	}
	for _, c := range cases {
		body, sig := signedEvent(t, "whsec_test", c.eventType, session(c.paymentStatus))
		res, _, err := s.ParseWebhook(body, sig)
		require.NoError(t, err, c.eventType)
		assert.Equal(t, c.want, res.Status, c.eventType)
		assert.Equal(t, orderID, res.OrderID)
		assert.Equal(t, "cs_test_1", res.SessionToken)
		assert.Equal(t, orders.SourceWebhook, res.Source)
	}
}

func TestParseWebhook_Rejects(t *testing.T) {
	s, _ := newTestStripe(t)

	body, sig := signedEvent(t, "whsec_other", "checkout.session.completed", map[string]any{"id": "cs_1"})
	_, _, err := s.ParseWebhook(body, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	body, sig = signedEvent(t, "whsec_test", "payment_intent.created", map[string]any{"id": "pi_1"})
	_, _, err = s.ParseWebhook(body, sig)
	assert.ErrorIs(t, err, ErrIgnoredEvent)

	body, sig = signedEvent(t, "whsec_test", "checkout.session.expired", map[string]any{"id": "cs_1", "object": "checkout.session"})
	_, _, err = s.ParseWebhook(body, sig)
	assert.Error(t, err)
}
