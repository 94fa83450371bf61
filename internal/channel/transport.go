package channel

import "context"

// Transport abstracts the message broker connection underneath a battle
// channel. Implementations deliver messages for a given topic in
// server-send order; no ordering is guaranteed across topics.
type Transport interface {
	// Subscribe returns a channel of raw payloads for topic. The returned
	// cancel function stops delivery and releases the subscription.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Close tears the connection down. Subsequent calls are no-ops.
	Close() error
}

// DialFunc opens a transport. Dialing happens once per channel; there is no
// automatic reconnect on drop (callers wanting one wrap the dial themselves).
type DialFunc func(ctx context.Context) (Transport, error)
