package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Broker is an in-process publisher and subscriber. Slow subscribers miss
// events rather than block publishers.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan StatusEvent
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan StatusEvent)}
}

func (b *Broker) Publish(ctx context.Context, event StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.OrderID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, orderID string) (<-chan StatusEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan StatusEvent, subscriberBuffer)
	if b.subs[orderID] == nil {
		b.subs[orderID] = make(map[int]chan StatusEvent)
	}
	b.subs[orderID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[orderID], id)
			if len(b.subs[orderID]) == 0 {
				delete(b.subs, orderID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
