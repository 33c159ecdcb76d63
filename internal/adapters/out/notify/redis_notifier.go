package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the redis pub/sub channel carrying cart change events.
const Channel = "cart.changed"

// RedisNotifier extends a Broadcaster across instances with redis pub/sub:
// every published event goes through redis and is re-broadcast locally by
// each subscribed instance, including the publishing one. If the publish
// fails the event still reaches local subscribers directly, so a lone
// instance degrades gracefully when redis is down.
type RedisNotifier struct {
	client *redis.Client
	local  *Broadcaster
	log    *zap.Logger
	sub    *redis.PubSub
}

func NewRedisNotifier(ctx context.Context, client *redis.Client, log *zap.Logger) *RedisNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &RedisNotifier{
		client: client,
		local:  NewBroadcaster(log),
		log:    log,
		sub:    client.Subscribe(ctx, Channel),
	}
	go n.relay()
	return n
}

func (n *RedisNotifier) relay() {
	for msg := range n.sub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			n.log.Warn("notify: malformed pubsub payload", zap.Error(err))
			continue
		}
		n.local.Publish(context.Background(), ev.Key)
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, key string) {
	payload, err := json.Marshal(Event{Key: key})
	if err != nil {
		n.local.Publish(ctx, key)
		return
	}
	if err := n.client.Publish(ctx, Channel, payload).Err(); err != nil {
		n.log.Error("notify: pubsub publish failed, local fan-out only",
			zap.String("key", key), zap.Error(err))
		n.local.Publish(ctx, key)
	}
	// On success the event loops back through relay(), which delivers it to
	// local subscribers exactly once.
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Event, func()) {
	return n.local.Subscribe(ctx)
}

func (n *RedisNotifier) Close() error {
	return n.sub.Close()
}
