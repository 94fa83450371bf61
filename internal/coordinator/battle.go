package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// Battle is the server-side state of one battle session. All mutation goes
// through methods holding the battle mutex; callers broadcast the returned
// snapshots.
type Battle struct {
	mu           sync.Mutex
	session      domain.BattleSession
	preview      domain.QuizPreview
	participants map[int64]*domain.Participant
	joinOrder    []int64
	answered     map[int64]map[int64]bool // userID -> questionID already scored
	counting     bool
	now          func() time.Time

	// cancels tears down the inbound topic subscriptions for this battle.
	cancels []func()
}

// NewBattle builds a battle from an existing session record, e.g. when a
// registry rehydrates one.
func NewBattle(session domain.BattleSession, preview domain.QuizPreview) *Battle {
	return newBattleWithClock(session, preview, time.Now)
}

// newBattleWithClock allows deterministic start timestamps in tests.
func newBattleWithClock(session domain.BattleSession, preview domain.QuizPreview, now func() time.Time) *Battle {
	return &Battle{
		session:      session,
		preview:      preview,
		participants: make(map[int64]*domain.Participant),
		answered:     make(map[int64]map[int64]bool),
		now:          now,
	}
}

// ID returns the battle identifier.
func (b *Battle) ID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.ID
}

// Snapshot returns the session with the current participant set attached.
func (b *Battle) Snapshot() domain.BattleSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Battle) snapshotLocked() domain.BattleSession {
	session := b.session
	session.Participants = b.leaderboardLocked()
	return session
}

// Leaderboard returns participants ordered by score descending, ties broken
// by join order so the list stays stable between scoring events.
func (b *Battle) Leaderboard() []domain.Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leaderboardLocked()
}

func (b *Battle) leaderboardLocked() []domain.Participant {
	rank := make(map[int64]int, len(b.joinOrder))
	for i, id := range b.joinOrder {
		rank[id] = i
	}
	entries := make([]domain.Participant, 0, len(b.participants))
	for _, p := range b.participants {
		entries = append(entries, *p)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return rank[entries[i].UserID] < rank[entries[j].UserID]
	})
	return entries
}

func (b *Battle) join(userID int64, name, avatar string) (domain.BattleSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session.Status != domain.StatusWaiting {
		return domain.BattleSession{}, domain.ErrBattleNotWaiting
	}
	if existing, ok := b.participants[userID]; ok {
		existing.DisplayName = name
		if avatar != "" {
			existing.AvatarURL = avatar
		}
		return b.snapshotLocked(), nil
	}
	b.participants[userID] = &domain.Participant{
		ID:          int64(len(b.joinOrder) + 1),
		UserID:      userID,
		DisplayName: name,
		AvatarURL:   avatar,
	}
	b.joinOrder = append(b.joinOrder, userID)
	return b.snapshotLocked(), nil
}

func (b *Battle) setReady(userID int64, ready bool) (allReady bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	participant, ok := b.participants[userID]
	if !ok {
		return false, domain.ErrParticipantNotFound
	}
	// Readiness is one-way: a broadcast true is never reverted by a later
	// false signal.
	if ready {
		participant.IsReady = true
	}
	if b.session.Status != domain.StatusWaiting || len(b.participants) < 2 {
		return false, nil
	}
	for _, p := range b.participants {
		if !p.IsReady {
			return false, nil
		}
	}
	if b.counting {
		return false, nil
	}
	b.counting = true
	return true, nil
}

func (b *Battle) setCountdown(value *int) {
	b.mu.Lock()
	b.session.Countdown = value
	b.mu.Unlock()
}

func (b *Battle) start() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.session.Status.CanTransition(domain.StatusInProgress) {
		return false
	}
	now := b.now()
	b.session.Status = domain.StatusInProgress
	b.session.StartedAt = &now
	b.session.Countdown = nil
	b.counting = false
	return true
}

// score applies a submission. It returns the awarded points (zero for wrong,
// duplicate, or unknown answers).
func (b *Battle) score(userID int64, submission domain.AnswerSubmission) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	participant, ok := b.participants[userID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	if b.answered[userID] == nil {
		b.answered[userID] = make(map[int64]bool)
	}
	if b.answered[userID][submission.QuestionID] {
		return 0, nil
	}
	b.answered[userID][submission.QuestionID] = true

	question, ok := findQuestion(b.preview, submission.QuestionID)
	if !ok {
		return 0, domain.ErrQuestionNotFound
	}
	awarded := scoreAnswer(question, submission.Answer)
	participant.Score += awarded
	return awarded, nil
}

func (b *Battle) recordTabSwitch(userID int64, threshold int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	participant, ok := b.participants[userID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	participant.TabSwitchCount++
	if participant.TabSwitchCount >= threshold {
		participant.IsSuspicious = true
	}
	return nil
}

func (b *Battle) complete(userID int64) (allCompleted bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	participant, ok := b.participants[userID]
	if !ok {
		return false, domain.ErrParticipantNotFound
	}
	participant.IsCompleted = true
	if b.session.Status != domain.StatusInProgress {
		return false, nil
	}
	for _, p := range b.participants {
		if !p.IsCompleted {
			return false, nil
		}
	}
	b.session.Status = domain.StatusCompleted
	return true, nil
}

func (b *Battle) cancel(userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if userID != b.session.LeaderID {
		return domain.ErrNotLeader
	}
	if !b.session.Status.CanTransition(domain.StatusCancelled) {
		return domain.ErrBattleNotWaiting
	}
	b.session.Status = domain.StatusCancelled
	return nil
}

func (b *Battle) removeParticipant(userID int64) (empty bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session.Status != domain.StatusWaiting {
		return false, domain.ErrBattleNotWaiting
	}
	if _, ok := b.participants[userID]; !ok {
		return false, domain.ErrParticipantNotFound
	}
	delete(b.participants, userID)
	for i, id := range b.joinOrder {
		if id == userID {
			b.joinOrder = append(b.joinOrder[:i], b.joinOrder[i+1:]...)
			break
		}
	}
	return len(b.participants) == 0, nil
}

func (b *Battle) addCancel(cancel func()) {
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()
}

func (b *Battle) teardown() {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = nil
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func findQuestion(preview domain.QuizPreview, questionID int64) (domain.Question, bool) {
	for _, g := range preview.Groups {
		for _, q := range g.Questions {
			if q.ID == questionID {
				return q, true
			}
		}
	}
	for _, q := range preview.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

// scoreAnswer re-checks the submitted option against quiz content. The
// client shows instant feedback from its own copy of the correctness flag,
// but the server remains authoritative for the final score.
func scoreAnswer(question domain.Question, answer string) int {
	for _, opt := range question.Options {
		if formatOptionID(opt.ID) == answer {
			if opt.IsCorrect {
				if question.Score > 0 {
					return question.Score
				}
				return 1
			}
			return 0
		}
	}
	return 0
}
