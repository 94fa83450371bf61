package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

type fakeAPI struct {
	mu           sync.Mutex
	battle       domain.BattleSession
	battleErr    error
	participants []domain.Participant
	preview      domain.QuizPreview
	disbands     int
	removals     int
}

func (f *fakeAPI) GetBattle(context.Context, int64) (domain.BattleSession, error) {
	return f.battle, f.battleErr
}

func (f *fakeAPI) GetParticipants(context.Context, int64) ([]domain.Participant, error) {
	return f.participants, nil
}

func (f *fakeAPI) GetQuizPreview(context.Context, int64) (domain.QuizPreview, error) {
	return f.preview, nil
}

func (f *fakeAPI) DisbandBeacon(int64, int64) {
	f.mu.Lock()
	f.disbands++
	f.mu.Unlock()
}

func (f *fakeAPI) RemoveParticipantBeacon(int64, int64) {
	f.mu.Lock()
	f.removals++
	f.mu.Unlock()
}

func (f *fakeAPI) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disbands, f.removals
}

type fakeChannel struct {
	mu         sync.Mutex
	connected  bool
	readyCalls int
	readyErr   error
	emotes     int
	closed     int
}

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) SetReady(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readyErr != nil {
		return f.readyErr
	}
	f.readyCalls++
	return nil
}

func (f *fakeChannel) SendEmote(context.Context, string, string) {
	f.mu.Lock()
	f.emotes++
	f.mu.Unlock()
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func newLobby(t *testing.T, api *fakeAPI, ch *fakeChannel, st *store.BattleStore, cfg Config) *Controller {
	t.Helper()
	cfg.BattleID = 42
	if cfg.UserID == 0 {
		cfg.UserID = 5
	}
	cfg.API = api
	cfg.Channel = ch
	cfg.Store = st
	controller := New(cfg)
	controller.Mount(context.Background())
	return controller
}

func TestParticipantSourcePrecedence(t *testing.T) {
	api := &fakeAPI{
		battle:       domain.BattleSession{ID: 42, Status: domain.StatusWaiting, QuizName: "Capitals"},
		participants: []domain.Participant{{UserID: 5, DisplayName: "Alice"}},
	}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{})
	defer controller.Leave()

	got := controller.Participants()
	if len(got) != 1 || got[0].DisplayName != "Alice" {
		t.Fatalf("expected bootstrap snapshot before broadcasts, got %+v", got)
	}

	st.ApplyLeaderboard([]domain.Participant{
		{UserID: 5, DisplayName: "Alice", IsReady: true},
		{UserID: 6, DisplayName: "Bob"},
	})

	got = controller.Participants()
	if len(got) != 2 || !got[0].IsReady {
		t.Fatalf("expected live broadcast to win, got %+v", got)
	}
}

func TestReadyIsOneWayAndIdempotent(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	ch := &fakeChannel{connected: true}
	controller := newLobby(t, api, ch, store.New(), Config{})
	defer controller.Leave()

	if err := controller.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := controller.Ready(context.Background()); err != nil {
		t.Fatalf("ready again: %v", err)
	}
	if ch.readyCalls != 1 {
		t.Fatalf("expected a single ready publish, got %d", ch.readyCalls)
	}
	if controller.Phase() != PhaseReady {
		t.Fatalf("expected READY phase, got %s", controller.Phase())
	}
}

func TestReadyFailureIsRetriable(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	ch := &fakeChannel{connected: false, readyErr: domain.ErrNotConnected}
	controller := newLobby(t, api, ch, store.New(), Config{})
	defer controller.Leave()

	if err := controller.Ready(context.Background()); err == nil {
		t.Fatalf("expected error while disconnected")
	}

	ch.mu.Lock()
	ch.readyErr = nil
	ch.connected = true
	ch.mu.Unlock()

	if err := controller.Ready(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if ch.readyCalls != 1 {
		t.Fatalf("expected one successful publish, got %d", ch.readyCalls)
	}
}

func TestLeaveWhileWaitingLeaderDisbands(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting, LeaderID: 5}}
	ch := &fakeChannel{connected: true}
	controller := newLobby(t, api, ch, store.New(), Config{})

	controller.Leave()
	controller.Leave() // second unmount path must be a no-op

	disbands, removals := api.counts()
	if disbands != 1 || removals != 0 {
		t.Fatalf("expected exactly one disband and no removal, got %d/%d", disbands, removals)
	}
	if ch.closed != 1 {
		t.Fatalf("expected channel closed once, got %d", ch.closed)
	}
}

func TestLeaveWhileWaitingMemberWithdraws(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting, LeaderID: 9}}
	controller := newLobby(t, api, &fakeChannel{connected: true}, store.New(), Config{})

	controller.Leave()

	disbands, removals := api.counts()
	if disbands != 0 || removals != 1 {
		t.Fatalf("expected exactly one removal and no disband, got %d/%d", disbands, removals)
	}
}

func TestLeaveAfterStartMakesNoCleanupCall(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting, LeaderID: 5}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{})

	st.ApplyState(domain.BattleSession{ID: 42, Status: domain.StatusInProgress, LeaderID: 5})
	waitFor(t, func() bool { return controller.Phase() == PhaseStarted })

	controller.Leave()

	disbands, removals := api.counts()
	if disbands != 0 || removals != 0 {
		t.Fatalf("expected no cleanup once battle progressed, got %d/%d", disbands, removals)
	}
}

func TestStatusNavigationFiresOnce(t *testing.T) {
	var mu sync.Mutex
	starts, cancels := 0, 0
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{
		OnStart: func() {
			mu.Lock()
			starts++
			mu.Unlock()
		},
		OnCancelled: func() {
			mu.Lock()
			cancels++
			mu.Unlock()
		},
	})
	defer controller.Leave()

	st.ApplyState(domain.BattleSession{ID: 42, Status: domain.StatusInProgress})
	st.ApplyState(domain.BattleSession{ID: 42, Status: domain.StatusInProgress})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return starts == 1
	})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if starts != 1 || cancels != 0 {
		t.Fatalf("expected one start navigation, got starts=%d cancels=%d", starts, cancels)
	}
}

func TestCancelledNavigation(t *testing.T) {
	var mu sync.Mutex
	cancels := 0
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{
		OnCancelled: func() {
			mu.Lock()
			cancels++
			mu.Unlock()
		},
	})
	defer controller.Leave()

	st.ApplyState(domain.BattleSession{ID: 42, Status: domain.StatusCancelled})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cancels == 1
	})

	if controller.Phase() != PhaseCancelled {
		t.Fatalf("expected CANCELLED phase, got %s", controller.Phase())
	}
}

func TestEmoteExpiresAfterWindow(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{
		EmoteWindow: 40 * time.Millisecond,
	})
	defer controller.Leave()

	st.ApplyEmote(domain.Emote{FromUserID: 7, EmoteKey: "fire", Label: "Fire!"})
	waitFor(t, func() bool {
		_, visible := controller.VisibleEmote(7)
		return visible
	})

	time.Sleep(100 * time.Millisecond)
	if _, visible := controller.VisibleEmote(7); visible {
		t.Fatalf("expected emote to expire after the display window")
	}
}

func TestEmotesAreIndependentPerSender(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{
		EmoteWindow: 200 * time.Millisecond,
	})
	defer controller.Leave()

	st.ApplyEmote(domain.Emote{FromUserID: 7, EmoteKey: "fire"})
	waitFor(t, func() bool {
		_, visible := controller.VisibleEmote(7)
		return visible
	})
	st.ApplyEmote(domain.Emote{FromUserID: 8, EmoteKey: "laugh"})
	waitFor(t, func() bool {
		_, visible := controller.VisibleEmote(8)
		return visible
	})

	if emote, _ := controller.VisibleEmote(7); emote.EmoteKey != "fire" {
		t.Fatalf("sender 7's emote should be untouched, got %+v", emote)
	}
}

func TestCountdownOnlyWhenServerSuppliesIt(t *testing.T) {
	api := &fakeAPI{battle: domain.BattleSession{ID: 42, Status: domain.StatusWaiting}}
	st := store.New()
	controller := newLobby(t, api, &fakeChannel{connected: true}, st, Config{})
	defer controller.Leave()

	if _, ok := controller.Countdown(); ok {
		t.Fatalf("client must not fabricate a countdown")
	}

	value := 3
	st.ApplyState(domain.BattleSession{ID: 42, Status: domain.StatusWaiting, Countdown: &value})
	waitFor(t, func() bool {
		got, ok := controller.Countdown()
		return ok && got == 3
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never satisfied")
}
