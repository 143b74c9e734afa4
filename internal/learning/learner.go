// Package learning distills a contractor's edits to a generated estimate
// into memories that steer future estimates.
package learning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/llmjson"
	"github.com/sells-group/estimator/internal/model"
)

// Source is the metadata source recorded on every memory the learner emits.
const Source = "estimate_feedback"

// Completer is the slice of the model gateway the learner needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.CompletionRequest) (string, error)
}

// Learner extracts memories from estimate feedback.
type Learner struct {
	llm  Completer
	tier model.Tier
	now  func() time.Time
}

// NewLearner builds a Learner that distills on the given tier, or the pro
// tier when tier is empty.
func NewLearner(llm Completer, tier model.Tier) *Learner {
	if tier == "" {
		tier = model.TierPro
	}
	return &Learner{llm: llm, tier: tier, now: time.Now}
}

const systemPrompt = "You are an AI learning system that extracts actionable business rules from contractor feedback."

type distillation struct {
	PricingCorrections []string `json:"pricingCorrections"`
	Preferences        []string `json:"preferences"`
	Patterns           []string `json:"patterns"`
}

// ExtractLearnings diffs original against edited and asks the model to
// distill the changes and notes into memories. AccountID is left for the
// caller to set. Unusable model output yields no memories and no error;
// only gateway failures are returned.
func (l *Learner) ExtractLearnings(ctx context.Context, original, edited []model.LineItem, notes string) ([]model.Memory, error) {
	changes := Diff(original, edited)
	notes = strings.TrimSpace(notes)
	if len(changes) == 0 && notes == "" {
		return nil, nil
	}

	raw, err := l.llm.Complete(ctx, gateway.CompletionRequest{
		System: systemPrompt,
		Messages: []model.ConversationTurn{{
			Role:    model.RoleUser,
			Content: buildPrompt(changes, notes),
		}},
		Tier:        l.tier,
		Temperature: 0.2,
		MaxTokens:   1024,
		JSONMode:    true,
		Op:          "learn",
	})
	if err != nil {
		return nil, err
	}

	var d distillation
	if err := llmjson.Decode(raw, &d); err != nil {
		zap.L().Warn("learning: malformed distillation, no memories recorded",
			zap.Int("changes", len(changes)),
			zap.Error(err),
		)
		return nil, nil
	}

	now := l.now().UTC()
	var out []model.Memory
	add := func(t model.MemoryType, confidence string, items []string) {
		for _, c := range items {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			out = append(out, model.Memory{
				ID:        uuid.NewString(),
				Type:      t,
				Content:   c,
				Metadata:  map[string]string{"source": Source, "confidence": confidence},
				CreatedAt: now,
			})
		}
	}
	add(model.MemoryPricingCorrection, "high", d.PricingCorrections)
	add(model.MemoryPreference, "medium", d.Preferences)
	add(model.MemoryPattern, "medium", d.Patterns)

	zap.L().Info("learning: feedback distilled",
		zap.Int("changes", len(changes)),
		zap.Int("memories", len(out)),
	)
	return out, nil
}

func buildPrompt(changes []string, notes string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following estimate changes made by a contractor and extract learnings:\n\n## Changes Made:\n")
	if len(changes) == 0 {
		sb.WriteString("- (no line item changes)\n")
	}
	for _, c := range changes {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteByte('\n')
	}
	if notes != "" {
		sb.WriteString("\n## Contractor Notes:\n")
		sb.WriteString(notes)
		sb.WriteByte('\n')
	}
	sb.WriteString(`
Extract specific, actionable learnings in these categories:

1. Pricing Corrections: specific rate changes to remember (e.g. "Always use $85/hr for residential electrical, not $95")
2. Preferences: how the contractor structures or describes work
3. Patterns: recurring adjustments or business rules

Return JSON:
{"pricingCorrections": ["..."], "preferences": ["..."], "patterns": ["..."]}

Be specific and actionable. Avoid generic statements.`)
	return sb.String()
}
