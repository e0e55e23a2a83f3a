package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans messages out to workers by partition. A partition always maps
// to the same worker, which handles its messages one at a time and retries a
// failing message until it succeeds, so offsets are committed in order and
// never past an unprocessed message.
type Consumer struct {
	r       reader
	workers int
	log     *zap.Logger

	// Retry paces handler retries; nil means exponential with no deadline.
	Retry func() backoff.BackOff
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(lane <-chan kafka.Message) {
			defer wg.Done()
			for m := range lane {
				if err := c.handle(ctx, h, m); err != nil {
					// shutting down; the uncommitted rest is redelivered on restart
					return
				}
			}
		}(lanes[i])
	}
	stop := func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// quiet on shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle runs h until it succeeds, then commits m. It only gives up when ctx
// is done, in which case m stays uncommitted.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	retry := c.Retry
	if retry == nil {
		retry = defaultRetry
	}
	err := backoff.RetryNotify(func() error {
		return h(ctx, m)
	}, backoff.WithContext(retry(), ctx), func(err error, wait time.Duration) {
		c.log.Warn("handler error, retrying",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return err
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("commit", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return nil
}
