package domain

import "time"

// BattleStatus is the lifecycle phase of a battle session.
type BattleStatus string

const (
	StatusWaiting    BattleStatus = "WAITING"
	StatusInProgress BattleStatus = "IN_PROGRESS"
	StatusCompleted  BattleStatus = "COMPLETED"
	StatusCancelled  BattleStatus = "CANCELLED"
)

// CanTransition reports whether moving from s to next is a legal status
// transition. Statuses only move forward; CANCELLED is reachable from
// WAITING alone.
func (s BattleStatus) CanTransition(next BattleStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// Participant is one user inside a battle. The server owns every field;
// clients only mirror the latest broadcast.
type Participant struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"userId"`
	DisplayName    string `json:"displayName"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	TeamID         *int64 `json:"teamId,omitempty"`
	Score          int    `json:"score"`
	IsReady        bool   `json:"isReady"`
	IsCompleted    bool   `json:"isCompleted"`
	TabSwitchCount int    `json:"tabSwitchCount"`
	IsSuspicious   bool   `json:"isSuspicious"`
}

// BattleSession is the server-owned battle record mirrored by clients.
type BattleSession struct {
	ID           int64         `json:"id"`
	QuizID       int64         `json:"quizId"`
	QuizName     string        `json:"quizName,omitempty"`
	BattleMode   string        `json:"battleMode,omitempty"`
	Status       BattleStatus  `json:"status"`
	LeaderID     int64         `json:"leaderId,omitempty"`
	InviteCode   string        `json:"inviteCode,omitempty"`
	Countdown    *int          `json:"countdown,omitempty"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Participants []Participant `json:"participants,omitempty"`
}

// Option is a possible answer for a question. IsCorrect ships to clients so
// they can show instant feedback; the server re-scores every submission and
// stays authoritative for the final leaderboard.
type Option struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models an MCQ question with HTML content and a point value.
type Question struct {
	ID      int64    `json:"id"`
	Content string   `json:"content"`
	Score   int      `json:"score"` // defaults to 1 if zero
	Options []Option `json:"options"`
}

// QuestionGroup is an ordered run of questions sharing stem content.
type QuestionGroup struct {
	ID        int64      `json:"id"`
	Content   string     `json:"content"`
	Questions []Question `json:"questions"`
}

// QuizPreview is the full quiz content fetched once per session: grouped
// questions first, then standalone ones.
type QuizPreview struct {
	QuizID    int64           `json:"quizId"`
	Name      string          `json:"name"`
	Groups    []QuestionGroup `json:"groups"`
	Questions []Question      `json:"questions"`
}

// TotalQuestions counts every question across groups and standalone items.
func (p QuizPreview) TotalQuestions() int {
	n := len(p.Questions)
	for _, g := range p.Groups {
		n += len(g.Questions)
	}
	return n
}

// AnswerSubmission is the scoring signal published once per question.
type AnswerSubmission struct {
	BattleID    int64     `json:"battleId"`
	UserID      int64     `json:"userId"`
	QuestionID  int64     `json:"questionId"`
	Answer      string    `json:"answer"`
	Timestamp   time.Time `json:"timestamp"`
	TimeTakenMS int64     `json:"timeTaken"`
}

// Emote is an ephemeral lobby reaction; it is shown for a short window and
// never persisted.
type Emote struct {
	FromUserID int64     `json:"fromUserId"`
	EmoteKey   string    `json:"emoteKey"`
	Label      string    `json:"label"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReadySignal is published when a participant toggles ready in the lobby.
type ReadySignal struct {
	UserID int64 `json:"userId"`
	Ready  bool  `json:"ready"`
}

// UserSignal carries userId-only notices (tab-switch, completion).
type UserSignal struct {
	UserID int64 `json:"userId"`
}
