// Package coordinator is the reference battle coordinator: it owns battle
// lifecycle and scoring, consumes client publishes from the message channel,
// and broadcasts authoritative state and leaderboard snapshots.
package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/channel"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// Broker is the pub/sub surface the coordinator shares with clients.
// channel.MemoryBroker and channel.RedisTransport both satisfy it.
type Broker interface {
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
	Publish(ctx context.Context, topic string, payload []byte) error
}

// BattleRegistry stores live battles (in-memory, optionally Redis-marked).
type BattleRegistry interface {
	Put(battle *Battle)
	Get(battleID int64) (*Battle, bool)
	Delete(battleID int64)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.QuizPreview, error)
}

// ResultsStore persists the final leaderboard of a completed battle.
type ResultsStore interface {
	SaveResults(ctx context.Context, session domain.BattleSession) error
}

// Config tunes coordinator timing and thresholds.
type Config struct {
	// CountdownSeconds is broadcast tick by tick once everyone is ready.
	// Defaults to 5.
	CountdownSeconds int
	// CountdownTick defaults to 1s; tests shrink it.
	CountdownTick time.Duration
	// SuspiciousThreshold marks a participant suspicious after this many
	// tab switches. Defaults to 3.
	SuspiciousThreshold int
}

func (c *Config) applyDefaults() {
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = 5
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = time.Second
	}
	if c.SuspiciousThreshold <= 0 {
		c.SuspiciousThreshold = 3
	}
}

// Service contains the battle use cases.
type Service struct {
	broker   Broker
	registry BattleRegistry
	quizzes  QuizRepository
	results  ResultsStore // optional
	cfg      Config
	idSeq    atomic.Int64

	mu     sync.Mutex
	runCtx context.Context
}

func NewService(broker Broker, registry BattleRegistry, quizzes QuizRepository, results ResultsStore, cfg Config) *Service {
	cfg.applyDefaults()
	s := &Service{broker: broker, registry: registry, quizzes: quizzes, results: results, cfg: cfg}
	s.idSeq.Store(time.Now().Unix() % 1_000_000)
	return s
}

// Run subscribes the shared answer topic and pins ctx as the lifetime for
// battle processing. It returns once the subscription is live; delivery
// continues until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	msgs, cancel, err := s.broker.Subscribe(ctx, channel.AnswerTopic)
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-msgs:
				if !ok {
					return
				}
				var submission domain.AnswerSubmission
				if err := json.Unmarshal(payload, &submission); err != nil {
					log.Printf("coordinator: bad answer payload: %v", err)
					continue
				}
				s.HandleAnswer(ctx, submission)
			}
		}
	}()
	return nil
}

// CreateBattle validates the quiz, registers a new waiting battle led by
// leaderID, and starts consuming its per-battle topics.
func (s *Service) CreateBattle(ctx context.Context, quizID, leaderID int64, leaderName, mode string) (domain.BattleSession, error) {
	preview, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.BattleSession{}, err
	}

	session := domain.BattleSession{
		ID:         s.idSeq.Add(1),
		QuizID:     quizID,
		QuizName:   preview.Name,
		BattleMode: mode,
		Status:     domain.StatusWaiting,
		LeaderID:   leaderID,
		InviteCode: strings.ToUpper(uuid.NewString()[:8]),
		CreatedAt:  time.Now(),
	}
	battle := NewBattle(session, preview)
	if _, err := battle.join(leaderID, leaderName, ""); err != nil {
		return domain.BattleSession{}, err
	}
	s.registry.Put(battle)

	// The caller's ctx only covers the synchronous create work. Topic
	// handlers outlive the request (over HTTP ctx dies when the handler
	// returns), so they run on the service lifetime instead.
	if err := s.consumeBattleTopics(s.battleCtx(), battle); err != nil {
		s.registry.Delete(battle.ID())
		return domain.BattleSession{}, err
	}

	s.broadcastState(ctx, battle)
	s.broadcastLeaderboard(ctx, battle)
	return battle.Snapshot(), nil
}

// battleCtx is the context battle processing runs on: the one given to Run,
// or Background when the service is driven directly without Run.
func (s *Service) battleCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

func (s *Service) consumeBattleTopics(ctx context.Context, battle *Battle) error {
	battleID := battle.ID()
	type binding struct {
		topic  string
		handle func([]byte)
	}
	bindings := []binding{
		{channel.ReadyTopic(battleID), func(payload []byte) {
			var signal domain.ReadySignal
			if json.Unmarshal(payload, &signal) == nil {
				s.SetReady(ctx, battleID, signal.UserID, signal.Ready)
			}
		}},
		{channel.TabSwitchTopic(battleID), func(payload []byte) {
			var signal domain.UserSignal
			if json.Unmarshal(payload, &signal) == nil {
				s.RecordTabSwitch(ctx, battleID, signal.UserID)
			}
		}},
		{channel.CompleteTopic(battleID), func(payload []byte) {
			var signal domain.UserSignal
			if json.Unmarshal(payload, &signal) == nil {
				s.Complete(ctx, battleID, signal.UserID)
			}
		}},
	}
	for _, b := range bindings {
		msgs, cancel, err := s.broker.Subscribe(ctx, b.topic)
		if err != nil {
			return err
		}
		battle.addCancel(cancel)
		go func(handle func([]byte)) {
			for payload := range msgs {
				handle(payload)
			}
		}(b.handle)
	}
	return nil
}

// GetBattle returns the current snapshot.
func (s *Service) GetBattle(battleID int64) (domain.BattleSession, error) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return domain.BattleSession{}, domain.ErrBattleNotFound
	}
	return battle.Snapshot(), nil
}

// Participants returns the current leaderboard snapshot.
func (s *Service) Participants(battleID int64) ([]domain.Participant, error) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	return battle.Leaderboard(), nil
}

// GetQuizPreview exposes quiz content for the bootstrap endpoint.
func (s *Service) GetQuizPreview(ctx context.Context, quizID int64) (domain.QuizPreview, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Join adds a participant to a waiting battle.
func (s *Service) Join(ctx context.Context, battleID, userID int64, name, avatar string) (domain.BattleSession, error) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return domain.BattleSession{}, domain.ErrBattleNotFound
	}
	snapshot, err := battle.join(userID, name, avatar)
	if err != nil {
		return domain.BattleSession{}, err
	}
	s.broadcastState(ctx, battle)
	s.broadcastLeaderboard(ctx, battle)
	return snapshot, nil
}

// SetReady applies a readiness signal; once every participant is ready it
// runs the countdown and flips the battle to IN_PROGRESS.
func (s *Service) SetReady(ctx context.Context, battleID, userID int64, ready bool) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return
	}
	allReady, err := battle.setReady(userID, ready)
	if err != nil {
		log.Printf("coordinator: ready from unknown user=%d battle=%d", userID, battleID)
		return
	}
	s.broadcastState(ctx, battle)
	s.broadcastLeaderboard(ctx, battle)
	if allReady {
		go s.runCountdown(ctx, battle)
	}
}

func (s *Service) runCountdown(ctx context.Context, battle *Battle) {
	for i := s.cfg.CountdownSeconds; i > 0; i-- {
		value := i
		battle.setCountdown(&value)
		s.broadcastState(ctx, battle)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.CountdownTick):
		}
	}
	if battle.start() {
		s.broadcastState(ctx, battle)
	}
}

// HandleAnswer re-scores a submission server-side and broadcasts the
// refreshed leaderboard.
func (s *Service) HandleAnswer(ctx context.Context, submission domain.AnswerSubmission) {
	battle, ok := s.registry.Get(submission.BattleID)
	if !ok {
		return
	}
	if _, err := battle.score(submission.UserID, submission); err != nil {
		log.Printf("coordinator: score failed battle=%d user=%d: %v", submission.BattleID, submission.UserID, err)
		return
	}
	s.broadcastLeaderboard(ctx, battle)
}

// RecordTabSwitch counts a violation and flags the participant suspicious
// past the threshold.
func (s *Service) RecordTabSwitch(ctx context.Context, battleID, userID int64) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return
	}
	if err := battle.recordTabSwitch(userID, s.cfg.SuspiciousThreshold); err != nil {
		return
	}
	s.broadcastLeaderboard(ctx, battle)
}

// Complete marks a participant finished; when the last one finishes the
// battle completes and its results are persisted best-effort.
func (s *Service) Complete(ctx context.Context, battleID, userID int64) {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return
	}
	allCompleted, err := battle.complete(userID)
	if err != nil {
		return
	}
	s.broadcastLeaderboard(ctx, battle)
	if !allCompleted {
		return
	}
	s.broadcastState(ctx, battle)
	if s.results != nil {
		snapshot := battle.Snapshot()
		go func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.results.SaveResults(saveCtx, snapshot); err != nil {
				log.Printf("coordinator: persist results battle=%d: %v", snapshot.ID, err)
			}
		}()
	}
}

// Disband cancels a waiting battle; only the leader may do it.
func (s *Service) Disband(ctx context.Context, battleID, userID int64) error {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	if err := battle.cancel(userID); err != nil {
		return err
	}
	s.broadcastState(ctx, battle)
	battle.teardown()
	s.registry.Delete(battleID)
	return nil
}

// RemoveParticipant withdraws a non-leader from a waiting battle.
func (s *Service) RemoveParticipant(ctx context.Context, battleID, userID int64) error {
	battle, ok := s.registry.Get(battleID)
	if !ok {
		return domain.ErrBattleNotFound
	}
	empty, err := battle.removeParticipant(userID)
	if err != nil {
		return err
	}
	if empty {
		battle.teardown()
		s.registry.Delete(battleID)
		return nil
	}
	s.broadcastState(ctx, battle)
	s.broadcastLeaderboard(ctx, battle)
	return nil
}

func (s *Service) broadcastState(ctx context.Context, battle *Battle) {
	snapshot := battle.Snapshot()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.broker.Publish(ctx, channel.StateTopic(snapshot.ID), payload); err != nil {
		log.Printf("coordinator: state broadcast battle=%d: %v", snapshot.ID, err)
	}
}

func (s *Service) broadcastLeaderboard(ctx context.Context, battle *Battle) {
	battleID := battle.ID()
	payload, err := json.Marshal(battle.Leaderboard())
	if err != nil {
		return
	}
	if err := s.broker.Publish(ctx, channel.LeaderboardTopic(battleID), payload); err != nil {
		log.Printf("coordinator: leaderboard broadcast battle=%d: %v", battleID, err)
	}
}

func formatOptionID(id int64) string {
	return strconv.FormatInt(id, 10)
}
