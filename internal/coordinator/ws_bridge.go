package coordinator

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/channel"
)

// WSBridge exposes the broker over a websocket so browser-style clients can
// subscribe and publish battle topics through a single connection.
type WSBridge struct {
	broker   Broker
	upgrader websocket.Upgrader
}

func NewWSBridge(broker Broker) *WSBridge {
	return &WSBridge{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and relays envelope frames: "subscribe"
// registers a broker subscription whose messages come back as "message"
// frames, "publish" forwards payloads into the broker. A single writer
// goroutine serializes all outbound frames.
func (b *WSBridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws bridge: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan channel.Envelope, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case envelope := <-send:
				if err := conn.WriteJSON(envelope); err != nil {
					log.Printf("ws bridge: write: %v", err)
					return
				}
			}
		}
	}()

	var mu sync.Mutex
	cancels := make(map[string]func())
	defer func() {
		mu.Lock()
		for _, cancelSub := range cancels {
			cancelSub()
		}
		mu.Unlock()
		cancel()
		<-writerDone
	}()

	for {
		var envelope channel.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		switch envelope.Op {
		case "subscribe":
			topic := envelope.Topic
			mu.Lock()
			_, already := cancels[topic]
			mu.Unlock()
			if already {
				continue
			}
			msgs, cancelSub, err := b.broker.Subscribe(ctx, topic)
			if err != nil {
				log.Printf("ws bridge: subscribe %s: %v", topic, err)
				continue
			}
			mu.Lock()
			cancels[topic] = cancelSub
			mu.Unlock()
			go func(topic string) {
				for payload := range msgs {
					select {
					case send <- channel.Envelope{Op: "message", Topic: topic, Payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}(topic)
		case "unsubscribe":
			mu.Lock()
			if cancelSub, ok := cancels[envelope.Topic]; ok {
				delete(cancels, envelope.Topic)
				cancelSub()
			}
			mu.Unlock()
		case "publish":
			if err := b.broker.Publish(ctx, envelope.Topic, envelope.Payload); err != nil {
				log.Printf("ws bridge: publish %s: %v", envelope.Topic, err)
			}
		}
	}
}
