// Package decision classifies a conversation as still gathering details or
// ready for an estimate.
package decision

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/llmjson"
	"github.com/sells-group/estimator/internal/model"
)

// State is the outcome of a turn decision.
type State string

const (
	Gathering State = "GATHERING"
	Ready     State = "READY"
)

// MinUserTurns is how many user turns a conversation needs before the
// classifier is consulted.
const MinUserTurns = 2

// Decision is the result of Decide. Justification is for logs only.
type Decision struct {
	State         State  `json:"state"`
	Justification string `json:"justification,omitempty"`
	Classified    bool   `json:"classified"`
	UserTurns     int    `json:"userTurns"`
}

// Completer is the slice of the model gateway the engine needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.CompletionRequest) (string, error)
}

// Config tunes the classifier call.
type Config struct {
	Tier    model.Tier
	Timeout time.Duration
}

// Engine decides GATHERING vs READY for each new user turn. It holds no
// conversation state; every call is computed from the history alone.
type Engine struct {
	llm Completer
	cfg Config
}

// NewEngine builds an Engine. The classifier defaults to the fast tier with
// a 10s timeout.
func NewEngine(llm Completer, cfg Config) *Engine {
	if cfg.Tier == "" {
		cfg.Tier = model.TierFast
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Engine{llm: llm, cfg: cfg}
}

const classifierPrompt = `You decide whether a construction estimating conversation has enough
information to price the job.

Answer true only if the customer has given ALL of:
1. The project type (what work is being done)
2. The scope or size (dimensions, quantities, number of fixtures, etc.)
3. Enough specificity to price both labor and materials

Respond with JSON only: {"ready": true|false, "justification": "one sentence"}`

type verdict struct {
	Ready         *bool  `json:"ready"`
	Justification string `json:"justification"`
}

// Decide classifies history. Any classifier failure yields Gathering so an
// estimate is never produced from insufficient information.
func (e *Engine) Decide(ctx context.Context, history []model.ConversationTurn) Decision {
	d := Decision{State: Gathering, UserTurns: model.UserTurns(history)}

	last, ok := model.LastTurn(history)
	if !ok || last.Role != model.RoleUser {
		d.Justification = "last turn is not from the user"
		return d
	}
	if d.UserTurns < MinUserTurns {
		d.Justification = "first user message, gathering details"
		return d
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.llm.Complete(cctx, gateway.CompletionRequest{
		System: classifierPrompt,
		Messages: []model.ConversationTurn{{
			Role:    model.RoleUser,
			Content: "Conversation:\n\n" + model.Transcript(history),
		}},
		Tier:        e.cfg.Tier,
		Temperature: 0,
		MaxTokens:   200,
		JSONMode:    true,
		Op:          "decide",
	})
	if err != nil {
		zap.L().Warn("decision: classifier failed, staying in gathering",
			zap.Int("user_turns", d.UserTurns),
			zap.Error(err),
		)
		d.Justification = "classifier unavailable"
		return d
	}

	var v verdict
	if err := llmjson.Decode(raw, &v); err != nil || v.Ready == nil {
		zap.L().Warn("decision: malformed classifier output, staying in gathering",
			zap.Int("user_turns", d.UserTurns),
			zap.String("raw", truncate(raw, 200)),
			zap.Error(err),
		)
		d.Justification = "classifier output malformed"
		return d
	}

	d.Classified = true
	d.Justification = v.Justification
	if *v.Ready {
		d.State = Ready
	}
	zap.L().Info("decision: classified",
		zap.String("state", string(d.State)),
		zap.Int("user_turns", d.UserTurns),
		zap.String("justification", v.Justification),
	)
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
