package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event signals that the local snapshot under Key changed and observers
// should re-read it. It carries no payload on purpose: the store is the
// source of truth, the signal only says "look again".
type Event struct {
	Key string `json:"key"`
}

// Notifier is the cooperative change broadcast. It is not a lock: two
// writers hitting the same key at the same moment remain last-writer-wins,
// the broadcast only keeps sibling views from going stale.
type Notifier interface {
	Publish(ctx context.Context, key string)
	Subscribe(ctx context.Context) (<-chan Event, func())
}

const subscriberBuffer = 8

// Broadcaster fans events out to in-process subscribers. Sends never block:
// a subscriber that cannot keep up loses events rather than stalling a
// publisher, which is acceptable because observers re-read the full snapshot
// on any signal.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  *zap.Logger
}

func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{subs: make(map[int]chan Event), log: log}
}

func (b *Broadcaster) Publish(_ context.Context, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- Event{Key: key}:
		default:
			b.log.Warn("notify: dropping event for slow subscriber",
				zap.Int("subscriber", id), zap.String("key", key))
		}
	}
}

// Subscribe registers an observer. The returned cancel func must be called
// when the observer goes away; the channel is closed by cancel.
func (b *Broadcaster) Subscribe(_ context.Context) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
