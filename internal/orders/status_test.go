package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusWaiting, StatusPending, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusPending, StatusPreparing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPreparing, StatusDelivering, true},
		{StatusDelivering, StatusCompleted, true},
		{StatusWaiting, StatusPreparing, false},
		{StatusPreparing, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusWaiting, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())

	assert.True(t, StatusPreparing.Paid())
	assert.True(t, StatusCompleted.Paid())
	assert.False(t, StatusCancelled.Paid())
	assert.False(t, StatusPending.Paid())

	assert.False(t, Status("Shipped").Valid())
}

func TestParsePaymentStatus(t *testing.T) {
	p, ok := ParsePaymentStatus("settled")
	assert.True(t, ok)
	assert.Equal(t, PaymentSettled, p)

	_, ok = ParsePaymentStatus("capture")
	assert.False(t, ok)

	assert.True(t, PaymentDenied.cancels())
	assert.True(t, PaymentWindowLapsed.cancels())
	assert.False(t, PaymentPending.cancels())
}

func TestEnvelopeTopic(t *testing.T) {
	assert.Equal(t, TopicKitchenDispatch, Envelope{EventType: EventOrderPaid}.Topic())
	assert.Equal(t, TopicOrderStatus, Envelope{EventType: EventOrderCancelled}.Topic())
}
