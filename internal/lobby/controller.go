// Package lobby drives the pre-game waiting room: bootstrap fetches,
// readiness, server-driven countdown and status navigation, emote display
// windows, and the best-effort cleanup when the participant leaves.
package lobby

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

// Phase is the lobby's local state-machine position.
type Phase string

const (
	PhaseConnecting   Phase = "CONNECTING"
	PhaseWaiting      Phase = "WAITING"
	PhaseReady        Phase = "READY"
	PhaseCountingDown Phase = "COUNTING_DOWN"
	PhaseStarted      Phase = "STARTED"
	PhaseCancelled    Phase = "CANCELLED"
)

// API is the REST collaborator surface the lobby needs.
type API interface {
	GetBattle(ctx context.Context, battleID int64) (domain.BattleSession, error)
	GetParticipants(ctx context.Context, battleID int64) ([]domain.Participant, error)
	GetQuizPreview(ctx context.Context, quizID int64) (domain.QuizPreview, error)
	DisbandBeacon(battleID, userID int64)
	RemoveParticipantBeacon(battleID, userID int64)
}

// Channel is the session-channel surface the lobby needs.
type Channel interface {
	Connected() bool
	SetReady(ctx context.Context, ready bool) error
	SendEmote(ctx context.Context, key, label string)
	Close()
}

// Config wires the controller's collaborators and callbacks.
type Config struct {
	BattleID int64
	UserID   int64
	API      API
	Channel  Channel
	Store    *store.BattleStore

	// EmoteWindow is how long an inbound emote stays attached to its
	// sender's card. Defaults to 3 seconds.
	EmoteWindow time.Duration

	// OnStart fires once when the broadcast status becomes IN_PROGRESS.
	OnStart func()
	// OnCancelled fires once when the broadcast status becomes CANCELLED.
	OnCancelled func()
}

type emoteEntry struct {
	emote domain.Emote
	timer *time.Timer
}

// Controller owns the lobby lifetime: Mount starts it, Leave tears it down
// exactly once.
type Controller struct {
	cfg         Config
	emoteWindow time.Duration
	now         func() time.Time

	mu             sync.Mutex
	bootBattle     *domain.BattleSession
	bootSnapshot   []domain.Participant
	quizTitle      string
	readySent      bool
	started        bool
	cancelled      bool
	emotes         map[int64]*emoteEntry
	stopWatch      func()
	watchDone      chan struct{}
	leaveOnce      sync.Once
}

func New(cfg Config) *Controller {
	if cfg.EmoteWindow <= 0 {
		cfg.EmoteWindow = 3 * time.Second
	}
	return &Controller{
		cfg:         cfg,
		emoteWindow: cfg.EmoteWindow,
		now:         time.Now,
		emotes:      make(map[int64]*emoteEntry),
	}
}

// Mount bootstraps the lobby from REST and starts reacting to broadcasts.
// Bootstrap failures are logged, never fatal: the lobby falls back to an
// empty participant list and an unresolved title.
func (c *Controller) Mount(ctx context.Context) {
	battle, err := c.cfg.API.GetBattle(ctx, c.cfg.BattleID)
	if err != nil {
		log.Printf("lobby: battle bootstrap failed for battle=%d: %v", c.cfg.BattleID, err)
	} else {
		c.mu.Lock()
		c.bootBattle = &battle
		c.quizTitle = battle.QuizName
		c.mu.Unlock()
		if battle.QuizName == "" && battle.QuizID > 0 {
			if preview, err := c.cfg.API.GetQuizPreview(ctx, battle.QuizID); err != nil {
				log.Printf("lobby: quiz title lookup failed for quiz=%d: %v", battle.QuizID, err)
			} else {
				c.mu.Lock()
				c.quizTitle = preview.Name
				c.mu.Unlock()
			}
		}
	}

	participants, err := c.cfg.API.GetParticipants(ctx, c.cfg.BattleID)
	if err != nil {
		log.Printf("lobby: participant bootstrap failed for battle=%d: %v", c.cfg.BattleID, err)
	} else {
		c.mu.Lock()
		c.bootSnapshot = participants
		c.mu.Unlock()
	}

	changes, cancel := c.cfg.Store.Subscribe()
	done := make(chan struct{})
	c.mu.Lock()
	c.stopWatch = cancel
	c.watchDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for change := range changes {
			switch change.Kind {
			case store.ChangeState:
				c.onStateChange()
			case store.ChangeEmote:
				c.onEmote()
			}
		}
	}()
}

func (c *Controller) onStateChange() {
	session, ok := c.cfg.Store.Session()
	if !ok {
		return
	}
	switch session.Status {
	case domain.StatusInProgress:
		c.mu.Lock()
		fire := !c.started
		c.started = true
		c.mu.Unlock()
		if fire && c.cfg.OnStart != nil {
			c.cfg.OnStart()
		}
	case domain.StatusCancelled:
		c.mu.Lock()
		fire := !c.cancelled
		c.cancelled = true
		c.mu.Unlock()
		if fire && c.cfg.OnCancelled != nil {
			c.cfg.OnCancelled()
		}
	}
}

func (c *Controller) onEmote() {
	emote, ok := c.cfg.Store.LastEmote()
	if !ok {
		return
	}
	sender := emote.FromUserID

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.emotes[sender]; ok {
		// A new emote from the same sender resets the window.
		entry.timer.Stop()
	}
	entry := &emoteEntry{emote: emote}
	entry.timer = time.AfterFunc(c.emoteWindow, func() {
		c.mu.Lock()
		if c.emotes[sender] == entry {
			delete(c.emotes, sender)
		}
		c.mu.Unlock()
	})
	c.emotes[sender] = entry
}

// Participants prefers the live broadcast set whenever it is non-empty and
// falls back to the REST bootstrap snapshot otherwise. Recomputed on every
// call so the freshest source always wins.
func (c *Controller) Participants() []domain.Participant {
	if live := c.cfg.Store.Leaderboard(); len(live) > 0 {
		return live
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Participant(nil), c.bootSnapshot...)
}

// QuizTitle is the display title resolved during bootstrap; empty when
// unresolved.
func (c *Controller) QuizTitle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quizTitle
}

// Ready publishes readiness once. Re-invocations while already ready are
// no-ops; there is no un-ready path through this controller.
func (c *Controller) Ready(ctx context.Context) error {
	c.mu.Lock()
	if c.readySent {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.cfg.Channel.SetReady(ctx, true); err != nil {
		return err
	}
	c.mu.Lock()
	c.readySent = true
	c.mu.Unlock()
	return nil
}

// SendEmote relays a reaction to the other participants.
func (c *Controller) SendEmote(ctx context.Context, key, label string) {
	c.cfg.Channel.SendEmote(ctx, key, label)
}

// AllReady reports whether every known participant signalled readiness.
// It only permits showing a countdown; the server decides the actual start.
func (c *Controller) AllReady() bool {
	participants := c.Participants()
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// Countdown returns the server-supplied countdown value, if any. The client
// never fabricates one.
func (c *Controller) Countdown() (int, bool) {
	if session, ok := c.cfg.Store.Session(); ok && session.Countdown != nil {
		return *session.Countdown, true
	}
	return 0, false
}

// VisibleEmote returns the emote currently attached to sender's card, if its
// display window has not elapsed.
func (c *Controller) VisibleEmote(sender int64) (domain.Emote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.emotes[sender]; ok {
		return entry.emote, true
	}
	return domain.Emote{}, false
}

// Phase derives the lobby state for rendering.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	started, cancelled, readySent := c.started, c.cancelled, c.readySent
	c.mu.Unlock()

	switch {
	case cancelled:
		return PhaseCancelled
	case started:
		return PhaseStarted
	case !c.cfg.Channel.Connected():
		return PhaseConnecting
	}
	if _, ok := c.Countdown(); ok && c.AllReady() {
		return PhaseCountingDown
	}
	if readySent {
		return PhaseReady
	}
	return PhaseWaiting
}

// Leave runs the unmount cleanup exactly once and never panics. While the
// battle is still WAITING the leader disbands it and everyone else withdraws,
// both as non-blocking beacons; once the battle has progressed no cleanup
// call is made, since removing the participant would be incorrect.
func (c *Controller) Leave() {
	c.leaveOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("lobby: leave recovered: %v", r)
			}
		}()

		status := domain.StatusWaiting
		if session, ok := c.cfg.Store.Session(); ok {
			status = session.Status
		} else {
			c.mu.Lock()
			if c.bootBattle != nil {
				status = c.bootBattle.Status
			}
			c.mu.Unlock()
		}

		if status == domain.StatusWaiting {
			if c.isLeader() {
				c.cfg.API.DisbandBeacon(c.cfg.BattleID, c.cfg.UserID)
			} else {
				c.cfg.API.RemoveParticipantBeacon(c.cfg.BattleID, c.cfg.UserID)
			}
		}

		c.mu.Lock()
		stop := c.stopWatch
		done := c.watchDone
		for sender, entry := range c.emotes {
			entry.timer.Stop()
			delete(c.emotes, sender)
		}
		c.mu.Unlock()

		if stop != nil {
			stop()
			<-done
		}
		c.cfg.Channel.Close()
	})
}

func (c *Controller) isLeader() bool {
	if session, ok := c.cfg.Store.Session(); ok && session.LeaderID != 0 {
		return session.LeaderID == c.cfg.UserID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootBattle != nil && c.bootBattle.LeaderID == c.cfg.UserID
}
