package redisx

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExpiryStore keeps one TTL key per Pending order.
type ExpiryStore struct{ RDB *redis.Client }

func (s *ExpiryStore) Arm(ctx context.Context, orderID string, ttl time.Duration) error {
	return s.RDB.Set(ctx, ExpiryKey(orderID), "Pending", ttl).Err()
}

func (s *ExpiryStore) Disarm(ctx context.Context, orderID string) error {
	return s.RDB.Del(ctx, ExpiryKey(orderID)).Err()
}

// OrderIDFromKey extracts the order id from an expiry key. Keys of other
// shapes sharing the keyspace are rejected.
func OrderIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, "order:")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

const notifyConfig = "notify-keyspace-events"

// enableExpiredEvents adds keyevent expirations to the server's notification
// flags, keeping whatever other classes are already enabled.
func (s *ExpirySubscriber) enableExpiredEvents(ctx context.Context) error {
	cur, err := s.RDB.ConfigGet(ctx, notifyConfig).Result()
	if err != nil {
		return err
	}
	flags := cur[notifyConfig]
	merged := mergeNotifyFlags(flags)
	if merged == flags {
		return nil
	}
	return s.RDB.ConfigSet(ctx, notifyConfig, merged).Err()
}

// mergeNotifyFlags returns flags with E (keyevent) and x (expired) enabled.
// A already covers x.
func mergeNotifyFlags(flags string) string {
	if !strings.ContainsRune(flags, 'E') {
		flags += "E"
	}
	if !strings.ContainsAny(flags, "xA") {
		flags += "x"
	}
	return flags
}

// ExpirySubscriber turns keyevent expirations into order ids.
type ExpirySubscriber struct {
	RDB *redis.Client
	DB  int
	Log *zap.Logger
}

// Lapses subscribes to expirations and streams the ids of lapsed expiry
// records. The subscription is confirmed before Lapses returns, so every key
// that expires afterwards is observed. The channel closes when ctx is done.
func (s *ExpirySubscriber) Lapses(ctx context.Context) (<-chan string, error) {
	// managed Redis often forbids CONFIG; notifications must then be enabled server-side
	if err := s.enableExpiredEvents(ctx); err != nil {
		s.Log.Warn("enable keyspace notifications", zap.Error(err))
	}

	ps := s.RDB.Subscribe(ctx, ExpiredChannel(s.DB))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				id, ok := OrderIDFromKey(m.Payload)
				if !ok {
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
