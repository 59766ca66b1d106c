package delivery

import (
	"sync"

	"go.uber.org/zap"

	"cipherchat/internal/domain"
)

// EventKind classifies an Event.
type EventKind string

const (
	// EventStatus reports a status change of a tracked message.
	EventStatus EventKind = "status"
	// EventMessage reports an inbound message notification.
	EventMessage EventKind = "message"
	// EventConnection reports a connection status change.
	EventConnection EventKind = "connection"
	// EventError reports a failure surfaced to the user.
	EventError EventKind = "error"
)

// Event is published to subscribers.
type Event struct {
	Kind       EventKind
	Message    domain.Message
	Connection string
	Err        error
}

const subscriberBuffer = 64

// bus fans events out to subscribers without blocking publishers; a full
// subscriber misses the event.
type bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  *zap.Logger
}

func newBus(log *zap.Logger) *bus {
	return &bus{subs: make(map[int]chan Event), log: log}
}

func (b *bus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("event dropped", zap.String("kind", string(ev.Kind)))
		}
	}
}
