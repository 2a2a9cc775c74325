package team

import "strings"

// StopReason says why a conversation ended.
type StopReason string

const (
	StopSentinel      StopReason = "sentinel"
	StopTurnBudget    StopReason = "turn_budget"
	StopMessageBudget StopReason = "message_budget"
	StopCancelled     StopReason = "cancelled"
)

// Termination ends a conversation on the first condition that holds.
type Termination struct {
	MaxTurns    int    // agent turns; zero disables
	MaxMessages int    // transcript messages plus selection fallbacks; zero disables
	Sentinel    string // case-sensitive substring of the latest agent reply; empty disables
}

// FixedOrderTermination caps a round-robin team at rounds×participants turns.
func FixedOrderTermination(rounds, participants int, sentinel string) Termination {
	return Termination{MaxTurns: rounds * participants, Sentinel: sentinel}
}

// DynamicTermination caps a selection team at maxMessages raw messages.
func DynamicTermination(maxMessages int, sentinel string) Termination {
	return Termination{MaxMessages: maxMessages, Sentinel: sentinel}
}

// Bounded reports whether some budget is set.
func (t Termination) Bounded() bool { return t.MaxTurns > 0 || t.MaxMessages > 0 }

// Evaluate returns the first reason the conversation should stop.
func (t Termination) Evaluate(transcript *Transcript, state *State) (StopReason, bool) {
	if t.Sentinel != "" {
		if m, ok := transcript.LastByRole(RoleAgent); ok && strings.Contains(m.Text, t.Sentinel) {
			return StopSentinel, true
		}
	}
	if r, ok := t.Exhausted(transcript, state); ok {
		return r, true
	}
	return "", false
}

// Exhausted checks the budgets only.
func (t Termination) Exhausted(transcript *Transcript, state *State) (StopReason, bool) {
	if t.MaxTurns > 0 && state.Turns >= t.MaxTurns {
		return StopTurnBudget, true
	}
	if t.MaxMessages > 0 && transcript.Len()+state.Fallbacks >= t.MaxMessages {
		return StopMessageBudget, true
	}
	return "", false
}
