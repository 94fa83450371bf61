package channel

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process topic broker. It backs single-node
// deployments and tests; the coordinator and any number of client channels
// can share one instance as their Transport.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan []byte]struct{})}
}

// DialMemory returns a DialFunc handing out the shared broker.
func DialMemory(broker *MemoryBroker) DialFunc {
	return func(context.Context) (Transport, error) { return broker, nil }
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan []byte]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[topic][ch]; !ok {
			return
		}
		delete(b.subs[topic], ch)
		close(ch)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
	return ch, cancel, nil
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Drop for slow subscribers rather than blocking the publisher.
		}
	}
	return nil
}

// Close on the shared broker is a no-op so one departing client cannot tear
// down everyone else's subscriptions. Use Shutdown to drop all of them.
func (b *MemoryBroker) Close() error { return nil }

// Shutdown closes every subscription.
func (b *MemoryBroker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, topic)
	}
}
