package expiry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// LapseSource streams ids of orders whose expiry record vanished. The
// channel closes when the subscription ends.
type LapseSource interface {
	Lapses(ctx context.Context) (<-chan string, error)
}

type Canceller interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// Listener forwards every lapse to the order service. It keeps no state of
// its own; whether the cancellation is legal is decided by the order service.
type Listener struct {
	Source  LapseSource
	Orders  Canceller
	Log     *zap.Logger
	Workers int

	// Optional policies; defaults reconnect forever and retry a call 5 times.
	SubscribeBackoff func() backoff.BackOff
	CallBackoff      func() backoff.BackOff
}

func defaultSubscribeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func defaultCallBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// Run subscribes, handles lapses and resubscribes whenever the stream ends,
// until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	subscribeBackoff := l.SubscribeBackoff
	if subscribeBackoff == nil {
		subscribeBackoff = defaultSubscribeBackoff
	}
	for {
		var lapses <-chan string
		err := backoff.RetryNotify(func() error {
			ch, err := l.Source.Lapses(ctx)
			if err != nil {
				return err
			}
			lapses = ch
			return nil
		}, backoff.WithContext(subscribeBackoff(), ctx), func(err error, wait time.Duration) {
			l.Log.Warn("subscribe to expirations", zap.Error(err), zap.Duration("retry_in", wait))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.Log.Info("listening for payment window lapses")

		l.drain(ctx, lapses)
		if ctx.Err() != nil {
			return nil
		}
		l.Log.Warn("expiration stream closed, resubscribing")
	}
}

func (l *Listener) drain(ctx context.Context, lapses <-chan string) {
	workers := l.Workers
	if workers <= 0 {
		workers = 4
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-lapses:
					if !ok {
						return
					}
					l.Handle(ctx, id)
				}
			}
		}()
	}
	wg.Wait()
}

// Handle asks the order service to cancel one lapsed order, retrying
// transient failures. A lost call leaves the order to the stale-Pending sweep.
func (l *Listener) Handle(ctx context.Context, orderID string) {
	callBackoff := l.CallBackoff
	if callBackoff == nil {
		callBackoff = defaultCallBackoff
	}
	log := l.Log.With(zap.String("order_id", orderID))

	err := backoff.Retry(func() error {
		err := l.Orders.CancelOrder(ctx, orderID)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(callBackoff(), ctx))

	switch {
	case err == nil:
		metrics.Lapses.WithLabelValues("cancelled").Inc()
		log.Info("lapse forwarded")
	case errors.Is(err, ErrRejected):
		metrics.Lapses.WithLabelValues("rejected").Inc()
		log.Warn("lapse rejected by order service", zap.Error(err))
	default:
		metrics.Lapses.WithLabelValues("failed").Inc()
		log.Error("lapse lost", zap.Error(err))
	}
}
