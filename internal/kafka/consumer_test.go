package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *memReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func msg(partition int, offset int64) kafka.Message {
	return kafka.Message{Topic: "t", Partition: partition, Offset: offset}
}

func fastRetry() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func TestConsumer_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := &memReader{pending: []kafka.Message{msg(0, 10), msg(0, 11), msg(0, 12)}}
	c := newConsumer(r, 4, nil)
	c.Retry = fastRetry

	var (
		mu    sync.Mutex
		seen  []int64
		fails = 2
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m.Offset)
		if m.Offset == 10 && fails > 0 {
			fails--
			return errors.New("db down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, []int64{10, 10, 10, 11, 12}, seen, "the failing message blocks its partition until it succeeds")
	mu.Unlock()
	var offsets []int64
	for _, m := range r.commits() {
		offsets = append(offsets, m.Offset)
	}
	assert.Equal(t, []int64{10, 11, 12}, offsets)
	assert.True(t, r.closed)
}

func TestConsumer_ShutdownLeavesFailingMessageUncommitted(t *testing.T) {
	r := &memReader{pending: []kafka.Message{msg(0, 1), msg(0, 2)}}
	c := newConsumer(r, 1, nil)
	c.Retry = fastRetry

	attempted := make(chan struct{}, 1)
	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 1 {
			select {
			case attempted <- struct{}{}:
			default:
			}
			return errors.New("always failing")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	<-attempted
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.commits(), "neither the failing message nor the one behind it may be committed")
}

func TestConsumer_PartitionsProgressIndependently(t *testing.T) {
	r := &memReader{pending: []kafka.Message{msg(0, 1), msg(1, 1), msg(1, 2)}}
	c := newConsumer(r, 2, nil)
	c.Retry = fastRetry

	h := func(_ context.Context, m kafka.Message) error {
		if m.Partition == 0 {
			return errors.New("stuck")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	for _, m := range r.commits() {
		assert.Equal(t, 1, m.Partition)
	}
}
