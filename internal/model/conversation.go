package model

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is one entry of an estimate conversation. Turns are
// append-only and kept in order inside the owning Estimate.
type ConversationTurn struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`

	// Degraded marks an assistant reply that fell back to clarifying
	// questions because the model could not produce a parseable estimate.
	Degraded bool `json:"degraded,omitempty"`
}

// UserTurns counts the user-authored turns in a history.
func UserTurns(history []ConversationTurn) int {
	n := 0
	for _, t := range history {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastTurn returns the final turn of the history and false when it is empty.
func LastTurn(history []ConversationTurn) (ConversationTurn, bool) {
	if len(history) == 0 {
		return ConversationTurn{}, false
	}
	return history[len(history)-1], true
}

// LastAssistantTurn returns the most recent assistant turn, if any.
func LastAssistantTurn(history []ConversationTurn) (ConversationTurn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return history[i], true
		}
	}
	return ConversationTurn{}, false
}

// Transcript renders the history as "Customer:" / "Estimator:" lines for
// prompts that need the conversation as a single block of text.
func Transcript(history []ConversationTurn) string {
	var sb strings.Builder
	for _, t := range history {
		switch t.Role {
		case RoleUser:
			sb.WriteString("Customer: ")
		case RoleAssistant:
			sb.WriteString("Estimator: ")
		default:
			continue
		}
		sb.WriteString(strings.TrimSpace(t.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
