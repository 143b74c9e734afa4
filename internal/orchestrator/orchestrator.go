// Package orchestrator drives one turn of an estimate conversation: it
// decides whether to keep gathering details or produce a priced estimate,
// and returns the reply plus the updated history without persisting
// anything.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/decision"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/normalize"
	"github.com/sells-group/estimator/internal/pricing"
)

// ErrTurnTimeout is returned when a turn exceeds its wall-clock budget.
var ErrTurnTimeout = eris.New("orchestrator: turn timed out")

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("orchestrator: invalid %s: %s", e.Field, e.Reason)
}

// Decider classifies a conversation history.
type Decider interface {
	Decide(ctx context.Context, history []model.ConversationTurn) decision.Decision
}

// Normalizer turns raw model output into an estimate.
type Normalizer interface {
	Normalize(raw string, taxRate float64) (*model.Estimate, error)
}

// Config tunes the orchestrator.
type Config struct {
	TurnTimeout         time.Duration
	MemoryLimit         int
	EstimateTemperature float64
	ClarifyTemperature  float64
	EstimateMaxTokens   int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		TurnTimeout:         45 * time.Second,
		MemoryLimit:         pricing.DefaultMemoryLimit,
		EstimateTemperature: 0.3,
		ClarifyTemperature:  0.7,
		EstimateMaxTokens:   4096,
	}
}

// TurnRequest is one inbound user message with everything needed to answer
// it. Profile and Memories are loaded fresh by the caller.
type TurnRequest struct {
	AccountID string
	History   []model.ConversationTurn
	Message   string
	Images    []string
	Profile   *model.CompanyProfile
	Memories  []model.Memory
	Tier      model.Tier
}

// TurnResult is the outcome of a turn. History is a new slice with the user
// and assistant turns appended.
type TurnResult struct {
	Reply         string                   `json:"message"`
	IsEstimate    bool                     `json:"isEstimate"`
	Estimate      *model.Estimate          `json:"estimate,omitempty"`
	NeedsMoreInfo bool                     `json:"needsMoreInfo"`
	History       []model.ConversationTurn `json:"conversationHistory"`
	Decision      decision.Decision        `json:"-"`
	Degraded      bool                     `json:"degraded,omitempty"`
}

// Orchestrator handles conversation turns. It is safe for concurrent use.
type Orchestrator struct {
	llm        gateway.Gateway
	decider    Decider
	normalizer Normalizer
	directives pricing.Builder
	cfg        Config
}

// New builds an Orchestrator. Zero Config fields take DefaultConfig values.
func New(llm gateway.Gateway, decider Decider, normalizer Normalizer, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = def.TurnTimeout
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = def.MemoryLimit
	}
	if cfg.EstimateTemperature <= 0 {
		cfg.EstimateTemperature = def.EstimateTemperature
	}
	if cfg.ClarifyTemperature <= 0 {
		cfg.ClarifyTemperature = def.ClarifyTemperature
	}
	if cfg.EstimateMaxTokens <= 0 {
		cfg.EstimateMaxTokens = def.EstimateMaxTokens
	}
	return &Orchestrator{
		llm:        llm,
		decider:    decider,
		normalizer: normalizer,
		directives: pricing.Builder{MemoryLimit: cfg.MemoryLimit},
		cfg:        cfg,
	}
}

// HandleTurn answers req with either clarifying questions or an estimate.
// It never fabricates an estimate: every failure returns a typed error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if req.Tier == "" {
		req.Tier = model.DefaultTier
	}

	directive, err := o.directives.Build(req.Profile, req.Memories)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	res, err := o.turn(tctx, req, directive)
	if err != nil {
		if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			zap.L().Warn("orchestrator: turn budget exceeded",
				zap.String("account_id", req.AccountID),
				zap.Duration("budget", o.cfg.TurnTimeout),
				zap.Error(err),
			)
			return nil, ErrTurnTimeout
		}
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) turn(ctx context.Context, req TurnRequest, directive string) (*TurnResult, error) {
	content := strings.TrimSpace(req.Message)
	if len(req.Images) > 0 {
		analysis, err := o.llm.AnalyzeImages(ctx, req.Images, req.Tier)
		if err != nil {
			return nil, err
		}
		if analysis = strings.TrimSpace(analysis); analysis != "" {
			content += "\n\n[Photo analysis: " + analysis + "]"
		}
	}

	history := make([]model.ConversationTurn, 0, len(req.History)+2)
	history = append(history, req.History...)
	history = append(history, model.ConversationTurn{Role: model.RoleUser, Content: content, Images: req.Images})

	d := o.decider.Decide(ctx, history)
	log := zap.L().With(
		zap.String("account_id", req.AccountID),
		zap.String("tier", string(req.Tier)),
		zap.String("state", string(d.State)),
		zap.Int("user_turns", d.UserTurns),
	)
	log.Debug("orchestrator: turn decided", zap.String("justification", d.Justification))

	if d.State != decision.Ready {
		res, err := o.clarify(ctx, req.Tier, directive, history)
		if err != nil {
			return nil, err
		}
		res.Decision = d
		return res, nil
	}

	est, normErr, err := o.generate(ctx, req, directive, history, log)
	if err != nil {
		return nil, err
	}
	if normErr != nil {
		if prev, ok := model.LastAssistantTurn(req.History); ok && prev.Degraded {
			log.Error("orchestrator: estimate unparseable twice in a row", zap.Error(normErr))
			return nil, normErr
		}
		log.Warn("orchestrator: degrading to clarifying questions", zap.Error(normErr))
		res, err := o.clarify(ctx, req.Tier, directive, history)
		if err != nil {
			log.Error("orchestrator: fallback reply failed", zap.Error(err))
			return nil, normErr
		}
		res.Degraded = true
		res.History[len(res.History)-1].Degraded = true
		res.Decision = d
		return res, nil
	}

	reply := est.ProjectTitle + ": " + est.Summary
	history = append(history, model.ConversationTurn{Role: model.RoleAssistant, Content: reply})
	est.AccountID = req.AccountID
	est.ModelTier = req.Tier
	est.Conversation = history

	log.Info("orchestrator: estimate generated",
		zap.Int("line_items", len(est.LineItems)),
		zap.Float64("total", est.Total),
	)
	return &TurnResult{
		Reply:      reply,
		IsEstimate: true,
		Estimate:   est,
		History:    history,
		Decision:   d,
	}, nil
}

// generate asks for an estimate and normalizes it, re-prompting once with a
// stricter instruction. A non-nil NormalizationError means both attempts
// produced unusable output; the error result is reserved for gateway
// failures.
func (o *Orchestrator) generate(ctx context.Context, req TurnRequest, directive string, history []model.ConversationTurn, log *zap.Logger) (*model.Estimate, *normalize.NormalizationError, error) {
	msgs := promptTurns(history)
	system := directive + estimateInstruction
	ask := func(msgs []model.ConversationTurn, op string) (string, error) {
		return o.llm.Complete(ctx, gateway.CompletionRequest{
			System:      system,
			Messages:    msgs,
			Tier:        req.Tier,
			Temperature: o.cfg.EstimateTemperature,
			MaxTokens:   o.cfg.EstimateMaxTokens,
			JSONMode:    true,
			Op:          op,
		})
	}

	raw, err := ask(msgs, "estimate")
	if err != nil {
		return nil, nil, err
	}
	est, err := o.normalizer.Normalize(raw, req.Profile.TaxRate)
	if err == nil {
		return est, nil, nil
	}
	var ne *normalize.NormalizationError
	if !errors.As(err, &ne) {
		return nil, nil, err
	}
	log.Warn("orchestrator: estimate unparseable, retrying with strict prompt", zap.Error(err))

	retry := append(msgs,
		model.ConversationTurn{Role: model.RoleAssistant, Content: raw},
		model.ConversationTurn{Role: model.RoleUser, Content: fmt.Sprintf(strictRetryInstruction, ne.Error())},
	)
	raw, err = ask(retry, "estimate_strict")
	if err != nil {
		return nil, nil, err
	}
	est, err = o.normalizer.Normalize(raw, req.Profile.TaxRate)
	if err == nil {
		return est, nil, nil
	}
	if errors.As(err, &ne) {
		return nil, ne, nil
	}
	return nil, nil, err
}

func (o *Orchestrator) clarify(ctx context.Context, tier model.Tier, directive string, history []model.ConversationTurn) (*TurnResult, error) {
	reply, err := o.llm.Complete(ctx, gateway.CompletionRequest{
		System:      directive + clarifyInstruction,
		Messages:    promptTurns(history),
		Tier:        tier,
		Temperature: o.cfg.ClarifyTemperature,
		MaxTokens:   1024,
		Op:          "clarify",
	})
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	out := append(append([]model.ConversationTurn(nil), history...),
		model.ConversationTurn{Role: model.RoleAssistant, Content: reply})
	return &TurnResult{Reply: reply, NeedsMoreInfo: true, History: out}, nil
}

// promptTurns copies the user and assistant turns for a completion request.
// Images are dropped: photos reach the model only through their analysis
// text.
func promptTurns(history []model.ConversationTurn) []model.ConversationTurn {
	out := make([]model.ConversationTurn, 0, len(history))
	for _, t := range history {
		if t.Role == model.RoleSystem {
			continue
		}
		out = append(out, model.ConversationTurn{Role: t.Role, Content: t.Content})
	}
	return out
}
