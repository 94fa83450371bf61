// Package store holds the client-side mirror of a battle: the latest
// broadcast session snapshot, the latest leaderboard, the last emote, and
// the transient optimistic score delta.
package store

import (
	"sync"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// ChangeKind identifies which part of the mirror a notification refers to.
type ChangeKind int

const (
	ChangeState ChangeKind = iota
	ChangeLeaderboard
	ChangeEmote
)

// Change is pushed to subscribers whenever the mirror is updated.
type Change struct {
	Kind ChangeKind
	At   time.Time
}

// BattleStore is the single shared mutable structure between the channel
// and the controllers. It is written only by inbound broadcast handlers and
// the explicit local-delta mutator; controllers read snapshots.
type BattleStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	owner       int64
	session     *domain.BattleSession
	leaderboard []domain.Participant
	lastEmote   *domain.Emote
	localDelta  int
	subscribers map[chan Change]struct{}
}

// New builds a store bound to no user: scores render without the optimistic
// delta. Use NewForUser for a participant's own view.
func New() *BattleStore {
	return NewWithClock(time.Now)
}

// NewForUser binds the store to the local participant. The optimistic delta
// only ever applies to that user's displayed score.
func NewForUser(userID int64) *BattleStore {
	s := New()
	s.owner = userID
	return s
}

// NewWithClock allows deterministic timestamps in tests.
func NewWithClock(now func() time.Time) *BattleStore {
	return &BattleStore{
		now:         now,
		subscribers: make(map[chan Change]struct{}),
	}
}

// ApplyState replaces the mirrored battle session (full replace semantics).
func (s *BattleStore) ApplyState(session domain.BattleSession) {
	s.mu.Lock()
	copied := session
	s.session = &copied
	s.mu.Unlock()
	s.notify(ChangeState)
}

// ApplyLeaderboard replaces the mirrored participant set and zeroes the
// local score delta: the broadcast is authoritative and already includes any
// answers the server has acknowledged, so keeping the delta around would
// double-count.
func (s *BattleStore) ApplyLeaderboard(participants []domain.Participant) {
	s.mu.Lock()
	s.leaderboard = append([]domain.Participant(nil), participants...)
	s.localDelta = 0
	s.mu.Unlock()
	s.notify(ChangeLeaderboard)
}

// ApplyEmote records the latest inbound emote.
func (s *BattleStore) ApplyEmote(emote domain.Emote) {
	s.mu.Lock()
	copied := emote
	s.lastEmote = &copied
	s.mu.Unlock()
	s.notify(ChangeEmote)
}

// AddLocalDelta accumulates an optimistic score adjustment for the current
// user. It never publishes anything; the next leaderboard broadcast resets it.
func (s *BattleStore) AddLocalDelta(delta int) {
	s.mu.Lock()
	s.localDelta += delta
	s.mu.Unlock()
	s.notify(ChangeLeaderboard)
}

// Session returns the latest broadcast battle session, if any.
func (s *BattleStore) Session() (domain.BattleSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return domain.BattleSession{}, false
	}
	return *s.session, true
}

// Leaderboard returns a copy of the latest broadcast participant set.
func (s *BattleStore) Leaderboard() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Participant(nil), s.leaderboard...)
}

// LastEmote returns the most recent emote, if any.
func (s *BattleStore) LastEmote() (domain.Emote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastEmote == nil {
		return domain.Emote{}, false
	}
	return *s.lastEmote, true
}

// LocalDelta returns the optimistic delta accumulated since the last
// leaderboard broadcast.
func (s *BattleStore) LocalDelta() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localDelta
}

// DisplayedScore is the score to render for userID: the authoritative
// broadcast score, plus the local delta when userID is the bound local user.
// Other participants always render their broadcast score untouched.
func (s *BattleStore) DisplayedScore(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delta := 0
	if s.owner != 0 && userID == s.owner {
		delta = s.localDelta
	}
	for _, p := range s.leaderboard {
		if p.UserID == userID {
			return p.Score + delta
		}
	}
	return delta
}

// Subscribe registers a change listener. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *BattleStore) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *BattleStore) notify(kind ChangeKind) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	change := Change{Kind: kind, At: s.now()}
	for ch := range s.subscribers {
		select {
		case ch <- change:
		default:
			// Slow listeners lose intermediate notifications; they re-read
			// the latest snapshot anyway.
		}
	}
}
