package channel

import "fmt"

// Topic builders for the battle message channel. Per-battle topics carry the
// battle identifier; answers ride a single shared topic and carry the battle
// id in the payload instead.
func StateTopic(battleID int64) string       { return fmt.Sprintf("battle/%d/state", battleID) }
func LeaderboardTopic(battleID int64) string { return fmt.Sprintf("battle/%d/leaderboard", battleID) }
func EmoteTopic(battleID int64) string       { return fmt.Sprintf("battle/%d/emote", battleID) }
func ReadyTopic(battleID int64) string       { return fmt.Sprintf("battle/%d/ready", battleID) }
func TabSwitchTopic(battleID int64) string   { return fmt.Sprintf("battle/%d/tab-switch", battleID) }
func CompleteTopic(battleID int64) string    { return fmt.Sprintf("battle/%d/complete", battleID) }

// AnswerTopic is shared by every battle.
const AnswerTopic = "battle/answer"
