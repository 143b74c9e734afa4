// Package advisor runs the business advisor chat: topic personas grounded
// in the contractor's company profile.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
)

// fallbackReply is used when the model returns only whitespace.
const fallbackReply = "I apologize, but I couldn't put together a response. Could you rephrase that?"

// Completer is the slice of the model gateway the advisor needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.CompletionRequest) (string, error)
}

// Advisor answers business questions for a topic.
type Advisor struct {
	llm       Completer
	tier      model.Tier
	maxTokens int
}

// New builds an Advisor. Replies use the expert tier unless tier is set.
func New(llm Completer, tier model.Tier) *Advisor {
	if tier == "" {
		tier = model.TierExpert
	}
	return &Advisor{llm: llm, tier: tier, maxTokens: 4000}
}

// UnknownTopicError reports a topic the advisor has no persona for.
type UnknownTopicError struct {
	Topic string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("advisor: unknown topic %q", e.Topic)
}

// Reply appends message to history, asks the model and returns the reply
// with the new history. history is not modified.
func (a *Advisor) Reply(ctx context.Context, topic model.AdvisorTopic, profile *model.CompanyProfile, history []model.ConversationTurn, message string) (string, []model.ConversationTurn, error) {
	if _, ok := topics[topic]; !ok {
		return "", nil, &UnknownTopicError{Topic: string(topic)}
	}

	out := make([]model.ConversationTurn, 0, len(history)+2)
	out = append(out, history...)
	out = append(out, model.ConversationTurn{Role: model.RoleUser, Content: strings.TrimSpace(message)})

	reply, err := a.llm.Complete(ctx, gateway.CompletionRequest{
		System:      SystemPrompt(topic, profile),
		Messages:    out,
		Tier:        a.tier,
		Temperature: 0.7,
		MaxTokens:   a.maxTokens,
		Op:          "advisor",
	})
	if err != nil {
		return "", nil, err
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		zap.L().Warn("advisor: empty reply", zap.String("topic", string(topic)))
		reply = fallbackReply
	}
	out = append(out, model.ConversationTurn{Role: model.RoleAssistant, Content: reply})
	return reply, out, nil
}

// ConversationTitle names a new conversation after its topic and first
// message.
func ConversationTitle(topic model.AdvisorTopic, firstMessage string) string {
	msg := strings.TrimSpace(firstMessage)
	if r := []rune(msg); len(r) > 50 {
		msg = string(r[:50]) + "..."
	}
	return Title(topic) + ": " + msg
}
