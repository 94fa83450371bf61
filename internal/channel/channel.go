// Package channel implements the client side of the battle message protocol:
// one connection per (battleID, userID) pair, broadcast fan-in to the battle
// store, and publish helpers for user actions.
package channel

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

// SessionChannel owns the broker connection for a single battle. It is
// created on mount and must be closed exactly once when the owning
// controller goes away; all publish operations are methods here, never
// free-standing closures over shared state.
type SessionChannel struct {
	battleID int64
	userID   int64
	store    *store.BattleStore
	now      func() time.Time

	mu        sync.Mutex
	transport Transport
	connected bool
	cancels   []func()
	closeOnce sync.Once
}

// Open connects the channel and wires the three broadcast topics into st.
// A missing or non-positive battleID yields a fully inert handle: connected
// reports false and every action is a safe no-op. This guards against
// mounting with an unresolved route parameter.
func Open(ctx context.Context, battleID, userID int64, dial DialFunc, st *store.BattleStore) *SessionChannel {
	ch := &SessionChannel{
		battleID: battleID,
		userID:   userID,
		store:    st,
		now:      time.Now,
	}
	if battleID <= 0 || userID <= 0 {
		log.Printf("battle channel: refusing to connect, invalid ids battle=%d user=%d", battleID, userID)
		return ch
	}

	transport, err := dial(ctx)
	if err != nil {
		log.Printf("battle channel: connect failed for battle=%d: %v", battleID, err)
		return ch
	}

	ch.mu.Lock()
	ch.transport = transport
	ch.mu.Unlock()

	if err := ch.subscribeAll(ctx); err != nil {
		log.Printf("battle channel: subscribe failed for battle=%d: %v", battleID, err)
		ch.Close()
		return ch
	}

	ch.mu.Lock()
	ch.connected = true
	ch.mu.Unlock()
	return ch
}

func (c *SessionChannel) subscribeAll(ctx context.Context) error {
	type binding struct {
		topic  string
		handle func([]byte)
	}
	bindings := []binding{
		{StateTopic(c.battleID), c.onState},
		{LeaderboardTopic(c.battleID), c.onLeaderboard},
		{EmoteTopic(c.battleID), c.onEmote},
	}
	for _, b := range bindings {
		msgs, cancel, err := c.transport.Subscribe(ctx, b.topic)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.cancels = append(c.cancels, cancel)
		c.mu.Unlock()

		go func(topic string, handle func([]byte)) {
			for payload := range msgs {
				handle(payload)
			}
		}(b.topic, b.handle)
	}
	return nil
}

func (c *SessionChannel) onState(payload []byte) {
	var session domain.BattleSession
	if err := json.Unmarshal(payload, &session); err != nil {
		log.Printf("battle channel: bad state payload: %v", err)
		return
	}
	c.store.ApplyState(session)
}

func (c *SessionChannel) onLeaderboard(payload []byte) {
	var participants []domain.Participant
	if err := json.Unmarshal(payload, &participants); err != nil {
		log.Printf("battle channel: bad leaderboard payload: %v", err)
		return
	}
	c.store.ApplyLeaderboard(participants)
}

func (c *SessionChannel) onEmote(payload []byte) {
	var emote domain.Emote
	if err := json.Unmarshal(payload, &emote); err != nil {
		log.Printf("battle channel: bad emote payload: %v", err)
		return
	}
	c.store.ApplyEmote(emote)
}

// Connected reports whether the handshake completed and subscriptions are
// live.
func (c *SessionChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// BattleID returns the battle this channel is bound to.
func (c *SessionChannel) BattleID() int64 { return c.battleID }

// UserID returns the local participant this channel publishes as.
func (c *SessionChannel) UserID() int64 { return c.userID }

// SetReady publishes a readiness signal. Unlike the other actions this is
// the one most likely to be user-triggered while disconnected, so it
// surfaces ErrNotConnected instead of dropping silently.
func (c *SessionChannel) SetReady(ctx context.Context, ready bool) error {
	if !c.Connected() {
		log.Printf("battle channel: setReady while disconnected, battle=%d", c.battleID)
		return domain.ErrNotConnected
	}
	return c.publishJSON(ctx, ReadyTopic(c.battleID), domain.ReadySignal{UserID: c.userID, Ready: ready})
}

// SubmitAnswer publishes the submission augmented with battleId/userId.
// Dropped silently when disconnected.
func (c *SessionChannel) SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) {
	if !c.Connected() {
		return
	}
	submission.BattleID = c.battleID
	submission.UserID = c.userID
	if err := c.publishJSON(ctx, AnswerTopic, submission); err != nil {
		log.Printf("battle channel: submit answer failed: %v", err)
	}
}

// SendEmote publishes an ephemeral reaction.
func (c *SessionChannel) SendEmote(ctx context.Context, key, label string) {
	if !c.Connected() {
		return
	}
	emote := domain.Emote{FromUserID: c.userID, EmoteKey: key, Label: label, Timestamp: c.now()}
	if err := c.publishJSON(ctx, EmoteTopic(c.battleID), emote); err != nil {
		log.Printf("battle channel: send emote failed: %v", err)
	}
}

// ReportTabSwitch publishes an anti-cheat violation notice.
func (c *SessionChannel) ReportTabSwitch(ctx context.Context) {
	if !c.Connected() {
		return
	}
	if err := c.publishJSON(ctx, TabSwitchTopic(c.battleID), domain.UserSignal{UserID: c.userID}); err != nil {
		log.Printf("battle channel: report tab switch failed: %v", err)
	}
}

// CompleteBattle publishes the local user's completion notice.
func (c *SessionChannel) CompleteBattle(ctx context.Context) {
	if !c.Connected() {
		return
	}
	if err := c.publishJSON(ctx, CompleteTopic(c.battleID), domain.UserSignal{UserID: c.userID}); err != nil {
		log.Printf("battle channel: complete battle failed: %v", err)
	}
}

// ApplyLocalScoreDelta adds delta to the local user's leaderboard entry for
// optimistic feedback. Local only; nothing is published, and the next
// leaderboard broadcast resets the delta.
func (c *SessionChannel) ApplyLocalScoreDelta(delta int) {
	c.store.AddLocalDelta(delta)
}

func (c *SessionChannel) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return domain.ErrNotConnected
	}
	return transport.Publish(ctx, topic, payload)
}

// Close cancels every subscription and closes the transport. Safe to call
// on an inert handle and safe to call more than once.
func (c *SessionChannel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancels := c.cancels
		transport := c.transport
		c.cancels = nil
		c.transport = nil
		c.connected = false
		c.mu.Unlock()

		for _, cancel := range cancels {
			cancel()
		}
		if transport != nil {
			if err := transport.Close(); err != nil {
				log.Printf("battle channel: close: %v", err)
			}
		}
	})
}
