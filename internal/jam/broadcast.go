package jam

import (
	"sync"

	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// Subscriber receives push-channel events. Implementations must not
// block indefinitely; delivery is best-effort.
type Subscriber interface {
	Send(event models.Event) error
}

// Broadcaster fans typed events out to all subscribers. Subscriber
// errors are logged and swallowed so one slow client never stalls the
// jam.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]Subscriber)}
}

// Subscribe registers a subscriber under an id, replacing any previous
// subscriber with the same id.
func (b *Broadcaster) Subscribe(id string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = sub
}

// Unsubscribe removes a subscriber.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers one event to every subscriber.
func (b *Broadcaster) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		if err := sub.Send(event); err != nil {
			logger.Warn("Subscriber send failed", logger.Fields{
				"subscriber": id,
				"event_type": string(event.Type),
				"error":      err.Error(),
			})
		}
	}
}

// PublishBatch delivers events in order as one logical batch.
func (b *Broadcaster) PublishBatch(events []models.Event) {
	for _, event := range events {
		b.Publish(event)
	}
}
