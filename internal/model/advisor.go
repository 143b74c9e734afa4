package model

import "time"

// AdvisorTopic selects the persona of the business advisor chat.
type AdvisorTopic string

const (
	TopicPlaybook     AdvisorTopic = "playbook"
	TopicExitStrategy AdvisorTopic = "exit_strategy"
	TopicSOPs         AdvisorTopic = "sops"
	TopicFinancial    AdvisorTopic = "financial"
	TopicGrowth       AdvisorTopic = "growth"
)

// AdvisorConversation is a persisted business advisor chat.
type AdvisorConversation struct {
	ID        string             `json:"id"`
	AccountID string             `json:"user_id"`
	Topic     AdvisorTopic       `json:"topic"`
	Title     string             `json:"title"`
	Messages  []ConversationTurn `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
