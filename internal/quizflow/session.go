// Package quizflow drives the in-progress phase of a battle: question
// sequencing, the per-question countdown, optimistic scoring, the result
// reveal window, and completion gating.
package quizflow

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/anticheat"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/store"
)

// Phase is the session-level state.
type Phase string

const (
	PhaseLoading       Phase = "LOADING"
	PhaseInProgress    Phase = "IN_PROGRESS"
	PhaseUserCompleted Phase = "USER_COMPLETED"
)

// Channel is the session-channel surface the quiz controller needs.
type Channel interface {
	Connected() bool
	SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission)
	CompleteBattle(ctx context.Context)
	ReportTabSwitch(ctx context.Context)
	ApplyLocalScoreDelta(delta int)
	Close()
}

// Config wires the controller's collaborators and timing knobs.
type Config struct {
	UserID  int64
	Channel Channel
	Store   *store.BattleStore

	// QuestionTime is the per-question countdown. Defaults to 60s.
	QuestionTime time.Duration
	// RevealDelay is how long the correct/incorrect overlay shows before
	// advancing. Defaults to 1500ms.
	RevealDelay time.Duration
	// Tick is the countdown tick interval. Defaults to 1s; tests shrink it.
	Tick time.Duration
	// ViolationCap bounds anti-cheat severity escalation. Defaults to 5.
	ViolationCap int

	// OnResults fires once when every participant in the latest broadcast
	// list is completed.
	OnResults func()
}

// item is one top-level entry in the quiz sequence: a question group or a
// standalone question.
type item struct {
	group      *domain.QuestionGroup
	standalone *domain.Question
}

type selection struct {
	optionID int64
	correct  bool
	answered bool
}

// Controller is the in-progress quiz state machine. All mutation happens
// under one mutex in response to discrete events (selection, ticks, reveal
// expiry, broadcasts); generation counters keep stale timers from firing
// against the wrong question.
type Controller struct {
	cfg     Config
	monitor *anticheat.Monitor
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	phase         Phase
	items         []item
	itemIndex     int
	groupIndex    int // question index inside the current group
	answers       map[int64]selection
	presentedAt   time.Time
	remaining     int
	revealing     bool
	lastCorrect   bool
	qgen          int // bumped on every advance; stale timers check it
	ticker        *time.Ticker
	resultsOnce   sync.Once
	closeOnce     sync.Once
	stopWatch     func()
	watchDone     chan struct{}
}

func New(cfg Config) *Controller {
	if cfg.QuestionTime <= 0 {
		cfg.QuestionTime = 60 * time.Second
	}
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = 1500 * time.Millisecond
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	c := &Controller{
		cfg:     cfg,
		now:     time.Now,
		phase:   PhaseLoading,
		answers: make(map[int64]selection),
	}
	c.monitor = anticheat.New(cfg.ViolationCap, func(event anticheat.Event, count int) {
		log.Printf("quiz: violation %s (%d)", event, count)
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		c.cfg.Channel.ReportTabSwitch(ctx)
	})
	return c
}

// Monitor exposes the anti-cheat state object for the hosting UI.
func (c *Controller) Monitor() *anticheat.Monitor { return c.monitor }

// Start sequences the quiz content and presents the first question. Item
// order is group items in server order, then standalone questions.
func (c *Controller) Start(ctx context.Context, preview domain.QuizPreview) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	changes, cancelWatch := c.cfg.Store.Subscribe()
	done := make(chan struct{})

	c.mu.Lock()
	c.stopWatch = cancelWatch
	c.watchDone = done
	c.items = c.items[:0]
	for i := range preview.Groups {
		if len(preview.Groups[i].Questions) == 0 {
			continue
		}
		c.items = append(c.items, item{group: &preview.Groups[i]})
	}
	for i := range preview.Questions {
		c.items = append(c.items, item{standalone: &preview.Questions[i]})
	}
	if len(c.items) == 0 {
		c.mu.Unlock()
		log.Printf("quiz: no content, completing immediately")
		c.completeSession()
		go c.watch(changes, done)
		return
	}
	c.phase = PhaseInProgress
	c.presentLocked()
	c.mu.Unlock()

	go c.watch(changes, done)
}

func (c *Controller) watch(changes <-chan store.Change, done chan struct{}) {
	defer close(done)
	for change := range changes {
		if change.Kind == store.ChangeLeaderboard || change.Kind == store.ChangeState {
			c.checkAllCompleted()
		}
	}
}

// presentLocked starts the countdown for the current question. Caller holds
// the mutex.
func (c *Controller) presentLocked() {
	c.presentedAt = c.now()
	c.remaining = int(c.cfg.QuestionTime / c.cfg.Tick)
	c.revealing = false
	c.qgen++
	gen := c.qgen

	if c.ticker != nil {
		c.ticker.Stop()
	}
	ticker := time.NewTicker(c.cfg.Tick)
	c.ticker = ticker

	go func() {
		for range ticker.C {
			if c.tick(gen) {
				ticker.Stop()
				return
			}
		}
	}()
}

// tick decrements the countdown; at zero it follows the same submission
// path as a manual selection, with whatever answer is recorded. Returns
// true once this timer is stale and should stop.
func (c *Controller) tick(gen int) bool {
	c.mu.Lock()
	if gen != c.qgen || c.revealing || c.phase != PhaseInProgress {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	if c.remaining > 0 {
		c.mu.Unlock()
		return false
	}
	c.submitLocked(0, false)
	c.mu.Unlock()
	return true
}

// SelectOption records the user's single-select answer for the current
// question and submits it. Repeat selections during the reveal window are
// ignored.
func (c *Controller) SelectOption(optionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress || c.revealing {
		return
	}
	c.submitLocked(optionID, true)
}

// submitLocked is the single submission path for both manual selection and
// timeout. Caller holds the mutex.
func (c *Controller) submitLocked(optionID int64, selected bool) {
	question, ok := c.currentQuestionLocked()
	if !ok {
		return
	}

	correct := false
	answer := ""
	if selected {
		answer = strconv.FormatInt(optionID, 10)
		for _, opt := range question.Options {
			if opt.ID == optionID {
				correct = opt.IsCorrect
				break
			}
		}
	}
	c.answers[question.ID] = selection{optionID: optionID, correct: correct, answered: true}
	c.lastCorrect = correct
	c.revealing = true

	if correct {
		points := question.Score
		if points == 0 {
			points = 1
		}
		c.cfg.Channel.ApplyLocalScoreDelta(points)
	}

	elapsed := c.now().Sub(c.presentedAt)
	submission := domain.AnswerSubmission{
		QuestionID:  question.ID,
		Answer:      answer,
		Timestamp:   c.now(),
		TimeTakenMS: elapsed.Milliseconds(),
	}
	go c.cfg.Channel.SubmitAnswer(c.ctx, submission)

	gen := c.qgen
	time.AfterFunc(c.cfg.RevealDelay, func() {
		c.advance(gen)
	})
}

// advance moves past the reveal window: next question in the group, next
// top-level item, or session completion after the last item.
func (c *Controller) advance(gen int) {
	c.mu.Lock()
	if gen != c.qgen || c.phase != PhaseInProgress {
		c.mu.Unlock()
		return
	}

	current := c.items[c.itemIndex]
	if current.group != nil && c.groupIndex+1 < len(current.group.Questions) {
		c.groupIndex++
		c.presentLocked()
		c.mu.Unlock()
		return
	}
	if c.itemIndex+1 < len(c.items) {
		c.itemIndex++
		c.groupIndex = 0
		c.presentLocked()
		c.mu.Unlock()
		return
	}

	c.qgen++
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.mu.Unlock()
	c.completeSession()
}

func (c *Controller) completeSession() {
	c.mu.Lock()
	c.phase = PhaseUserCompleted
	c.revealing = false
	c.mu.Unlock()

	// No violations are recorded for a user who already finished.
	c.monitor.Disable()
	c.cfg.Channel.CompleteBattle(c.ctx)
	c.checkAllCompleted()
}

// checkAllCompleted fires the results navigation if and only if every entry
// in the latest broadcast participant list is completed. Local assumptions
// about other participants never count.
func (c *Controller) checkAllCompleted() {
	c.mu.Lock()
	userDone := c.phase == PhaseUserCompleted
	c.mu.Unlock()
	if !userDone {
		return
	}

	participants := c.cfg.Store.Leaderboard()
	if len(participants) == 0 {
		return
	}
	for _, p := range participants {
		if !p.IsCompleted {
			return
		}
	}
	c.resultsOnce.Do(func() {
		if c.cfg.OnResults != nil {
			c.cfg.OnResults()
		}
	})
}

// RecordViolation feeds a detected tab-switch/focus loss into the anti-cheat
// monitor, which forwards it to the server while enabled.
func (c *Controller) RecordViolation(event anticheat.Event) int {
	return c.monitor.RecordViolation(event)
}

// Phase returns the session-level state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CurrentQuestion returns the question being presented plus the stem content
// of its group, if it belongs to one.
func (c *Controller) CurrentQuestion() (domain.Question, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	question, ok := c.currentQuestionLocked()
	if !ok {
		return domain.Question{}, "", false
	}
	stem := ""
	if current := c.items[c.itemIndex]; current.group != nil {
		stem = current.group.Content
	}
	return *question, stem, true
}

func (c *Controller) currentQuestionLocked() (*domain.Question, bool) {
	if c.phase != PhaseInProgress || c.itemIndex >= len(c.items) {
		return nil, false
	}
	current := c.items[c.itemIndex]
	if current.group != nil {
		if c.groupIndex >= len(current.group.Questions) {
			return nil, false
		}
		return &current.group.Questions[c.groupIndex], true
	}
	return current.standalone, true
}

// Remaining returns the ticks left on the current question's countdown.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Revealing reports whether the result overlay is showing, and its verdict.
func (c *Controller) Revealing() (correct bool, showing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCorrect, c.revealing
}

// AnsweredCount returns how many questions the local user has resolved.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers)
}

// CompletionProgress returns completed/total from the latest broadcast
// participant list, for the waiting screen.
func (c *Controller) CompletionProgress() (completed, total int) {
	participants := c.cfg.Store.Leaderboard()
	for _, p := range participants {
		if p.IsCompleted {
			completed++
		}
	}
	return completed, len(participants)
}

// DisplayedScore is the broadcast score for the local user plus the
// optimistic delta accumulated since that broadcast.
func (c *Controller) DisplayedScore() int {
	return c.cfg.Store.DisplayedScore(c.cfg.UserID)
}

// Close stops every timer, the broadcast watcher, and the channel. Safe to
// call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.qgen++ // invalidate pending tick and reveal timers
		if c.ticker != nil {
			c.ticker.Stop()
		}
		stop := c.stopWatch
		done := c.watchDone
		c.mu.Unlock()

		if stop != nil {
			stop()
			<-done
		}
		if c.cancel != nil {
			c.cancel()
		}
		c.cfg.Channel.Close()
	})
}
