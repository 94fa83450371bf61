package store_test

import (
	"testing"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

func TestDisplayedScoreAddsDeltaForOwnerOnly(t *testing.T) {
	s := store.NewForUser(1)
	s.ApplyLeaderboard([]domain.Participant{
		{UserID: 1, DisplayName: "Alice", Score: 30},
		{UserID: 2, DisplayName: "Bob", Score: 10},
	})

	s.AddLocalDelta(5)

	if got := s.DisplayedScore(1); got != 35 {
		t.Fatalf("expected displayed score 35, got %d", got)
	}
	if got := s.DisplayedScore(2); got != 10 {
		t.Fatalf("delta must never inflate another participant, got %d", got)
	}
	if got := s.DisplayedScore(3); got != 0 {
		t.Fatalf("unknown participant must render zero, got %d", got)
	}
}

func TestUnboundStoreNeverShowsDelta(t *testing.T) {
	s := store.New()
	s.ApplyLeaderboard([]domain.Participant{{UserID: 1, Score: 30}})
	s.AddLocalDelta(5)

	if got := s.DisplayedScore(1); got != 30 {
		t.Fatalf("store without a bound user must show broadcast scores only, got %d", got)
	}
}

func TestLeaderboardBroadcastResetsDelta(t *testing.T) {
	s := store.NewForUser(1)
	s.ApplyLeaderboard([]domain.Participant{{UserID: 1, Score: 30}})
	s.AddLocalDelta(5)

	// The next broadcast already includes the acked answer; the delta must
	// not double-count on top of it.
	s.ApplyLeaderboard([]domain.Participant{{UserID: 1, Score: 35}})

	if got := s.LocalDelta(); got != 0 {
		t.Fatalf("expected delta reset on broadcast, got %d", got)
	}
	if got := s.DisplayedScore(1); got != 35 {
		t.Fatalf("expected displayed score 35, got %d", got)
	}
}

func TestApplyStateReplacesSnapshot(t *testing.T) {
	s := store.New()
	if _, ok := s.Session(); ok {
		t.Fatalf("expected no session before first broadcast")
	}

	s.ApplyState(domain.BattleSession{ID: 7, Status: domain.StatusWaiting})
	s.ApplyState(domain.BattleSession{ID: 7, Status: domain.StatusInProgress})

	session, ok := s.Session()
	if !ok || session.Status != domain.StatusInProgress {
		t.Fatalf("expected latest state to win, got %+v ok=%v", session, ok)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := store.New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.ApplyEmote(domain.Emote{FromUserID: 3, EmoteKey: "fire"})

	change := <-ch
	if change.Kind != store.ChangeEmote {
		t.Fatalf("expected emote change, got %v", change.Kind)
	}
	emote, ok := s.LastEmote()
	if !ok || emote.FromUserID != 3 {
		t.Fatalf("expected stored emote from user 3, got %+v ok=%v", emote, ok)
	}
}
