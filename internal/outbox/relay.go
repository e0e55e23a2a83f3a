package outbox

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// PoolSource reads the outbox table through a pgx pool.
type PoolSource struct{ Pool *pgxpool.Pool }

func (s PoolSource) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.Pool, limit)
}

func (s PoolSource) MarkSent(ctx context.Context, id int64) error {
	return MarkSent(ctx, s.Pool, id)
}

// Relay forwards unsent rows to Kafka in id order. Delivery is at-least-once:
// a crash between publish and MarkSent republishes the row, and consumers
// dedupe on event_id.
type Relay struct {
	Source    Source
	Publisher Publisher
	Log       *zap.Logger
	Interval  time.Duration
	Batch     int
}

func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.Log.Warn("outbox flush", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many rows were sent. It stops
// at the first failure so later rows never overtake an unsent one.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Source.FetchPending(ctx, batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range recs {
		headers := append(kafkax.EventHeaders(rec.EventType, 1),
			kafkago.Header{Key: kafkax.HeaderEventID, Value: []byte(rec.EventID)})
		if err := r.Publisher.Publish(ctx, rec.Topic, kafkax.PartitionKey(rec.Key), rec.Payload, headers...); err != nil {
			return sent, err
		}
		if err := r.Source.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		metrics.OutboxPublished.WithLabelValues(rec.Topic).Inc()
		sent++
	}
	return sent, nil
}
