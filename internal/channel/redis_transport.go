package channel

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport speaks the battle topics over Redis pub/sub. Redis preserves
// publish order per channel, which matches the per-topic ordering the battle
// state machine relies on.
type RedisTransport struct {
	client *redis.Client
	owns   bool

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// DialRedis returns a DialFunc that opens a dedicated Redis connection and
// verifies it with a ping before the channel reports connected.
func DialRedis(addr, password string, db int) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return &RedisTransport{client: client, owns: true, subs: make(map[*redis.PubSub]struct{})}, nil
	}
}

// NewRedisTransport wraps an existing client; the caller keeps ownership of
// the client's lifetime.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client, subs: make(map[*redis.PubSub]struct{})}
}

func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	pubsub := t.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation so messages published right
	// after Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	t.mu.Lock()
	t.subs[pubsub] = struct{}{}
	t.mu.Unlock()

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()

	cancel := func() {
		t.mu.Lock()
		delete(t.subs, pubsub)
		t.mu.Unlock()
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.client.Publish(ctx, topic, payload).Err()
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*redis.PubSub, 0, len(t.subs))
	for pubsub := range t.subs {
		subs = append(subs, pubsub)
	}
	t.subs = make(map[*redis.PubSub]struct{})
	t.mu.Unlock()

	for _, pubsub := range subs {
		_ = pubsub.Close()
	}
	if t.owns {
		return t.client.Close()
	}
	return nil
}
