package channel

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the frame exchanged with the coordinator's websocket bridge.
type Envelope struct {
	Op      string          `json:"op"` // subscribe | unsubscribe | publish | message
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSTransport multiplexes battle topics over a single websocket connection
// to the coordinator bridge.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
}

// DialWebSocket returns a DialFunc connecting to the bridge at url
// (ws://host/ws?battleId=...&userId=...).
func DialWebSocket(url string) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		t := &WSTransport{
			conn: conn,
			subs: make(map[string]map[chan []byte]struct{}),
		}
		go t.readLoop()
		return t, nil
	}
}

func (t *WSTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.teardown()
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Printf("ws transport: bad frame: %v", err)
			continue
		}
		if envelope.Op != "message" {
			continue
		}
		t.mu.Lock()
		for ch := range t.subs[envelope.Topic] {
			select {
			case ch <- []byte(envelope.Payload):
			default:
			}
		}
		t.mu.Unlock()
	}
}

func (t *WSTransport) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[chan []byte]struct{})
	}
	t.subs[topic][ch] = struct{}{}
	t.mu.Unlock()

	if err := t.writeEnvelope(Envelope{Op: "subscribe", Topic: topic}); err != nil {
		t.dropSub(topic, ch)
		return nil, nil, err
	}

	cancel := func() { t.dropSub(topic, ch) }
	return ch, cancel, nil
}

func (t *WSTransport) dropSub(topic string, ch chan []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[topic][ch]; !ok {
		return
	}
	delete(t.subs[topic], ch)
	close(ch)
	if len(t.subs[topic]) == 0 {
		delete(t.subs, topic)
	}
}

func (t *WSTransport) Publish(_ context.Context, topic string, payload []byte) error {
	return t.writeEnvelope(Envelope{Op: "publish", Topic: topic, Payload: payload})
}

func (t *WSTransport) writeEnvelope(envelope Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(envelope)
}

func (t *WSTransport) Close() error {
	err := t.conn.Close()
	t.teardown()
	return err
}

func (t *WSTransport) teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for topic, set := range t.subs {
		for ch := range set {
			close(ch)
		}
		delete(t.subs, topic)
	}
}
