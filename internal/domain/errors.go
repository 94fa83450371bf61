package domain

import "errors"

var (
	// ErrInvalidBattleID is returned when a battle identifier is missing or unparsable.
	ErrInvalidBattleID = errors.New("invalid battle id")
	// ErrNotConnected is returned when an action is attempted before the channel handshake completes.
	ErrNotConnected = errors.New("battle channel not connected")
	// ErrBattleNotFound is returned when a battle session does not exist.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrParticipantNotFound is returned when a user acts in a battle they never joined.
	ErrParticipantNotFound = errors.New("participant not found in battle")
	// ErrBattleNotWaiting is returned for lobby-only actions once the battle has progressed.
	ErrBattleNotWaiting = errors.New("battle is no longer waiting")
	// ErrNotLeader is returned when a non-leader tries to disband a battle.
	ErrNotLeader = errors.New("only the battle leader may do this")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
)
