package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/decision"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/normalize"
	"github.com/sells-group/estimator/internal/pricing"
)

// scriptedGateway answers Complete calls from per-op queues and records
// every request.
type scriptedGateway struct {
	mu       sync.Mutex
	replies  map[string][]reply
	requests []gateway.CompletionRequest
	vision   string
	images   [][]string
	block    bool
}

type reply struct {
	text string
	err  error
}

func newScripted() *scriptedGateway {
	return &scriptedGateway{replies: make(map[string][]reply)}
}

func (g *scriptedGateway) on(op string, text string, err error) *scriptedGateway {
	g.replies[op] = append(g.replies[op], reply{text, err})
	return g
}

func (g *scriptedGateway) Complete(ctx context.Context, req gateway.CompletionRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	if g.block {
		g.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer g.mu.Unlock()
	q := g.replies[req.Op]
	if len(q) == 0 {
		return "", errors.New("unexpected call: " + req.Op)
	}
	g.replies[req.Op] = q[1:]
	return q[0].text, q[0].err
}

func (g *scriptedGateway) AnalyzeImages(_ context.Context, images []string, _ model.Tier) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images = append(g.images, images)
	return g.vision, nil
}

func (g *scriptedGateway) ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.requests))
	for i, r := range g.requests {
		out[i] = r.Op
	}
	return out
}

type countingNormalizer struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNormalizer) Normalize(raw string, taxRate float64) (*model.Estimate, error) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	return normalize.Normalize(raw, taxRate)
}

func electrician() *model.CompanyProfile {
	return &model.CompanyProfile{
		CompanyName: "Volt Bros",
		Trades:      []string{"electrical"},
		LaborRates:  map[string]float64{"electrician": 95},
		TaxRate:     0.08,
	}
}

const validEstimate = `{"projectTitle": "Panel upgrade", "summary": "Swap 100A panel for 200A.",
 "lineItems": [{"category": "Labor", "description": "Electrician", "quantity": 4, "unit": "hours", "rate": 95}],
 "timeline": "1 day"}`

func gatheredHistory() []model.ConversationTurn {
	return []model.ConversationTurn{
		{Role: model.RoleUser, Content: "I need electrical work"},
		{Role: model.RoleAssistant, Content: "What kind of work?"},
	}
}

func newTestOrchestrator(gw *scriptedGateway, norm Normalizer) *Orchestrator {
	return New(gw, decision.NewEngine(gw, decision.Config{}), norm, Config{})
}

func TestHandleTurn_FirstMessageAsksQuestions(t *testing.T) {
	t.Parallel()

	gw := newScripted().on("clarify", "1. Residential or commercial?\n2. How many circuits?", nil)
	norm := &countingNormalizer{}
	o := newTestOrchestrator(gw, norm)

	res, err := o.HandleTurn(context.Background(), TurnRequest{
		AccountID: "acct-1",
		Message:   "I need electrical work",
		Profile:   electrician(),
	})
	require.NoError(t, err)
	assert.True(t, res.NeedsMoreInfo)
	assert.False(t, res.IsEstimate)
	assert.Nil(t, res.Estimate)
	assert.Equal(t, 0, norm.calls)
	assert.Equal(t, []string{"clarify"}, gw.ops())
	assert.Equal(t, decision.Gathering, res.Decision.State)

	require.Len(t, res.History, 2)
	assert.Equal(t, model.RoleUser, res.History[0].Role)
	assert.Equal(t, model.RoleAssistant, res.History[1].Role)

	system := gw.requests[0].System
	assert.Contains(t, system, "- electrician: $95/hr")
	assert.Contains(t, system, "GATHER DETAILS")
}

func TestHandleTurn_Estimate(t *testing.T) {
	t.Parallel()

	gw := newScripted().
		on("decide", `{"ready": true, "justification": "scope known"}`, nil).
		on("estimate", "```json\n"+validEstimate+"\n```", nil)
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	history := gatheredHistory()
	res, err := o.HandleTurn(context.Background(), TurnRequest{
		AccountID: "acct-1",
		History:   history,
		Message:   "Replace a 100A panel with 200A, single family home",
		Profile:   electrician(),
		Tier:      model.TierExpert,
	})
	require.NoError(t, err)
	require.True(t, res.IsEstimate)
	assert.False(t, res.NeedsMoreInfo)
	assert.Equal(t, "Panel upgrade: Swap 100A panel for 200A.", res.Reply)
	assert.Equal(t, 380.0, res.Estimate.Subtotal)
	assert.Equal(t, 410.4, res.Estimate.Total)
	assert.Equal(t, model.TierExpert, res.Estimate.ModelTier)
	assert.Equal(t, "acct-1", res.Estimate.AccountID)
	assert.Len(t, res.History, 4)
	assert.Len(t, history, 2, "caller history must not be mutated")

	est := gw.requests[1]
	assert.True(t, est.JSONMode)
	assert.Equal(t, model.TierExpert, est.Tier)
	assert.InDelta(t, 0.3, est.Temperature, 1e-9)
}

func TestHandleTurn_StrictRetry(t *testing.T) {
	t.Parallel()

	gw := newScripted().
		on("decide", `{"ready": true}`, nil).
		on("estimate", "Sure! I'd estimate about $400 total.", nil).
		on("estimate_strict", validEstimate, nil)
	norm := &countingNormalizer{}
	o := newTestOrchestrator(gw, norm)

	res, err := o.HandleTurn(context.Background(), TurnRequest{
		History: gatheredHistory(), Message: "200A panel swap", Profile: electrician(),
	})
	require.NoError(t, err)
	assert.True(t, res.IsEstimate)
	assert.Equal(t, 2, norm.calls)

	strict := gw.requests[2]
	last := strict.Messages[len(strict.Messages)-1]
	assert.Equal(t, model.RoleUser, last.Role)
	assert.Contains(t, last.Content, "could not be used")
}

func TestHandleTurn_DegradesOnceThenFails(t *testing.T) {
	t.Parallel()

	gw := newScripted().
		on("decide", `{"ready": true}`, nil).
		on("estimate", "no json here", nil).
		on("estimate_strict", `{"projectTitle": "x"}`, nil).
		on("clarify", "Could you confirm the panel location?", nil)
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	res, err := o.HandleTurn(context.Background(), TurnRequest{
		History: gatheredHistory(), Message: "200A panel swap", Profile: electrician(),
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.NeedsMoreInfo)
	assert.False(t, res.IsEstimate)
	assert.True(t, res.History[len(res.History)-1].Degraded)

	gw2 := newScripted().
		on("decide", `{"ready": true}`, nil).
		on("estimate", "still no json", nil).
		on("estimate_strict", "nope", nil)
	o2 := newTestOrchestrator(gw2, normalize.Normalizer{})

	_, err = o2.HandleTurn(context.Background(), TurnRequest{
		History: res.History, Message: "It's in the garage", Profile: electrician(),
	})
	var ne *normalize.NormalizationError
	require.ErrorAs(t, err, &ne)
	assert.NotContains(t, gw2.ops(), "clarify")
}

func TestHandleTurn_CapabilityErrorNotRetried(t *testing.T) {
	t.Parallel()

	capErr := &gateway.CapabilityError{Tier: model.TierPro, Provider: "anthropic", Setting: "ANTHROPIC_API_KEY"}
	gw := newScripted().on("clarify", "", capErr)
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	_, err := o.HandleTurn(context.Background(), TurnRequest{Message: "I need electrical work", Profile: electrician()})
	require.Error(t, err)
	assert.True(t, gateway.IsCapability(err))
	assert.Equal(t, []string{"clarify"}, gw.ops())
}

func TestHandleTurn_ProfileIncomplete(t *testing.T) {
	t.Parallel()

	gw := newScripted()
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	p := electrician()
	p.LaborRates = nil
	_, err := o.HandleTurn(context.Background(), TurnRequest{Message: "hi", Profile: p})
	var pie *pricing.ProfileIncompleteError
	require.ErrorAs(t, err, &pie)
	assert.Empty(t, gw.ops())
}

func TestHandleTurn_EmptyMessage(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(newScripted(), normalize.Normalizer{})
	_, err := o.HandleTurn(context.Background(), TurnRequest{Message: "  \n", Profile: electrician()})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "message", ve.Field)
}

func TestHandleTurn_PhotoAnalysisAppended(t *testing.T) {
	t.Parallel()

	gw := newScripted().on("clarify", "How old is the panel?", nil)
	gw.vision = "Federal Pacific panel, scorch marks near main breaker."
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	photos := []string{"https://cdn.example.com/panel.jpg"}
	res, err := o.HandleTurn(context.Background(), TurnRequest{
		Message: "Can you look at this panel?", Images: photos, Profile: electrician(),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{photos}, gw.images)

	user := res.History[0]
	assert.True(t, strings.HasSuffix(user.Content, "[Photo analysis: Federal Pacific panel, scorch marks near main breaker.]"))
	assert.Equal(t, photos, user.Images)

	for _, m := range gw.requests[0].Messages {
		assert.Empty(t, m.Images, "photos reach the model only as analysis text")
	}
}

func TestHandleTurn_Timeout(t *testing.T) {
	t.Parallel()

	gw := newScripted()
	gw.block = true
	o := New(gw, decision.NewEngine(gw, decision.Config{}), normalize.Normalizer{}, Config{TurnTimeout: 20 * time.Millisecond})

	_, err := o.HandleTurn(context.Background(), TurnRequest{Message: "hi", Profile: electrician()})
	assert.ErrorIs(t, err, ErrTurnTimeout)
}

func TestHandleTurn_CallerCancelIsNotTimeout(t *testing.T) {
	t.Parallel()

	gw := newScripted()
	gw.block = true
	o := newTestOrchestrator(gw, normalize.Normalizer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := o.HandleTurn(ctx, TurnRequest{Message: "hi", Profile: electrician()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTurnTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}
