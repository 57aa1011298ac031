package watch

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event is a change notification on a topic. Payload is optional and carries
// the latest read-model snapshot for outbound broadcasts.
type Event struct {
	Topic   string
	Payload []byte
}

// Observer is the subscribe/notify contract shared by the ingestion trigger
// and the outbound broadcasts. Implementations must deliver every Notify to
// all active subscribers of the topic; delivery order across topics is not
// guaranteed.
type Observer interface {
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
	Notify(ctx context.Context, topic string, payload []byte) error
}

var Module = fx.Module("watch",
	fx.Provide(NewRedisObserver),
)

// RedisObserver backs the Observer contract with redis pub/sub so triggers
// and broadcasts work across processes.
type RedisObserver struct {
	rdb *redis.Client
}

func NewRedisObserver(rdb *redis.Client) Observer {
	return &RedisObserver{rdb: rdb}
}

func (o *RedisObserver) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	sub := o.rdb.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	events := make(chan Event, 1)
	go func() {
		defer close(events)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case events <- Event{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					// subscriber is behind; a newer notification supersedes the old one
					zap.L().Debug("dropping stale notification", zap.String("topic", msg.Channel))
				}
			}
		}
	}()

	return events, nil
}

func (o *RedisObserver) Notify(ctx context.Context, topic string, payload []byte) error {
	return o.rdb.Publish(ctx, topic, payload).Err()
}
