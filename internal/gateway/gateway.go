// Package gateway routes completion and vision requests to the model
// provider serving each tier, applying retries, circuit breaking, rate
// limiting and cost logging uniformly across providers.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/estimator/internal/cost"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/resilience"
)

// Gateway is the provider-agnostic model interface the core depends on.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	AnalyzeImages(ctx context.Context, images []string, tier model.Tier) (string, error)
}

// CompletionRequest asks a tier for one completion.
type CompletionRequest struct {
	System      string
	Messages    []model.ConversationTurn
	Tier        model.Tier
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	// Op labels the call in logs and cost attribution.
	Op string
}

// Route binds a tier to a provider and model. NoPrefill is for Anthropic
// models that reject a trailing assistant message (Opus 4.6 and later);
// JSON mode then relies on the instruction and on extracting the object
// from the reply.
type Route struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	NoPrefill bool   `yaml:"no_prefill" mapstructure:"no_prefill"`
}

// DefaultRoutes is the tier table used when configuration supplies none.
func DefaultRoutes() map[model.Tier]Route {
	return map[model.Tier]Route{
		model.TierFast:   {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
		model.TierPro:    {Provider: ProviderAnthropic, Model: "claude-sonnet-4-5-20250929"},
		model.TierExpert: {Provider: ProviderAnthropic, Model: "claude-opus-4-6", NoPrefill: true},
	}
}

// Config tunes a Router. Zero values fall back to defaults.
type Config struct {
	Routes           map[model.Tier]Route
	Retry            resilience.Policy
	Breaker          resilience.BreakerConfig
	RatePerSecond    float64
	Burst            int
	VisionCacheSize  int
	DefaultMaxTokens int
	Images           Loader
	Rates            cost.Rates
}

const visionPrompt = `You are analyzing photos a customer attached to a construction job request.
Describe what is visible that matters for pricing the work: the type of space or structure,
existing materials and fixtures, approximate dimensions or quantities you can infer, visible
damage or wear, access constraints and anything that suggests code or safety issues.
Be factual and concise. Do not quote prices.`

var _ Gateway = (*Router)(nil)

// Router implements Gateway over a set of providers.
type Router struct {
	routes    map[model.Tier]Route
	providers map[string]Provider
	limiters  map[string]*rate.Limiter
	breakers  *resilience.Breakers
	retry     resilience.Policy
	maxTokens int
	images    Loader
	vision    *lru.Cache[string, string]
	costs     *cost.Calculator
}

// New builds a Router. Nil providers are skipped, so a provider whose
// credential is missing simply leaves its tiers unavailable.
func New(cfg Config, providers ...Provider) (*Router, error) {
	routes := cfg.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	for tier, rt := range routes {
		if rt.Provider == "" || rt.Model == "" {
			return nil, eris.Errorf("gateway: route for tier %q needs provider and model", tier)
		}
	}

	r := &Router{
		routes:    routes,
		providers: make(map[string]Provider),
		limiters:  make(map[string]*rate.Limiter),
		breakers:  resilience.NewBreakers(cfg.Breaker),
		retry:     cfg.Retry,
		maxTokens: cfg.DefaultMaxTokens,
		images:    cfg.Images,
	}
	if r.maxTokens <= 0 {
		r.maxTokens = 4096
	}
	rates := cfg.Rates
	if len(rates) == 0 {
		rates = cost.DefaultRates()
	}
	r.costs = cost.NewCalculator(rates)

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
		r.limiters[p.Name()] = rate.NewLimiter(limit, burst)
	}

	size := cfg.VisionCacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, eris.Wrap(err, "gateway: vision cache")
	}
	r.vision = cache
	return r, nil
}

// Available returns nil when tier can be served, or a *CapabilityError
// naming the missing credential.
func (r *Router) Available(tier model.Tier) error {
	_, _, err := r.resolve(tier)
	return err
}

// Breakers reports the circuit state of every provider that has been called.
func (r *Router) Breakers() map[string]string {
	return r.breakers.Snapshot()
}

func (r *Router) resolve(tier model.Tier) (Route, Provider, error) {
	if tier == "" {
		tier = model.DefaultTier
	}
	rt, ok := r.routes[tier]
	if !ok {
		return Route{}, nil, eris.Errorf("gateway: no route for tier %q", tier)
	}
	p, ok := r.providers[rt.Provider]
	if !ok {
		return Route{}, nil, &CapabilityError{Tier: tier, Provider: rt.Provider, Setting: settingFor(rt.Provider)}
	}
	return rt, p, nil
}

// Complete sends req to the provider serving req.Tier.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Tier == "" {
		req.Tier = model.DefaultTier
	}
	rt, p, err := r.resolve(req.Tier)
	if err != nil {
		return "", err
	}

	msgs := make([]Message, 0, len(req.Messages))
	for _, t := range req.Messages {
		m := Message{Role: t.Role, Text: t.Content}
		if len(t.Images) > 0 {
			imgs, err := r.images.Load(ctx, t.Images)
			if err != nil {
				return "", err
			}
			m.Images = imgs
		}
		msgs = append(msgs, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.maxTokens
	}
	call := Call{
		Tier:        req.Tier,
		Model:       rt.Model,
		System:      req.System,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		JSON:        req.JSONMode,
		NoPrefill:   rt.NoPrefill,
	}
	op := req.Op
	if op == "" {
		op = "complete"
	}
	return r.call(ctx, p, call, op)
}

// AnalyzeImages describes the photos in images using the tier's provider.
// Results are cached per tier and image set.
func (r *Router) AnalyzeImages(ctx context.Context, images []string, tier model.Tier) (string, error) {
	if len(images) == 0 {
		return "", nil
	}
	if tier == "" {
		tier = model.DefaultTier
	}
	rt, p, err := r.resolve(tier)
	if err != nil {
		return "", err
	}

	key := visionKey(tier, images)
	if text, ok := r.vision.Get(key); ok {
		zap.L().Debug("gateway: vision cache hit", zap.String("tier", string(tier)), zap.Int("images", len(images)))
		return text, nil
	}

	loaded, err := r.images.Load(ctx, images)
	if err != nil {
		return "", err
	}
	text, err := r.call(ctx, p, Call{
		Tier:        tier,
		Model:       rt.Model,
		Messages:    []Message{{Role: model.RoleUser, Text: visionPrompt, Images: loaded}},
		Temperature: 0.2,
		MaxTokens:   1024,
	}, "analyze_images")
	if err != nil {
		return "", err
	}
	r.vision.Add(key, text)
	return text, nil
}

func (r *Router) call(ctx context.Context, p Provider, call Call, op string) (string, error) {
	name := p.Name()
	if err := r.limiters[name].Wait(ctx); err != nil {
		return "", eris.Wrap(err, "gateway: rate limit wait")
	}

	policy := r.retry
	policy.OnRetry = resilience.LogRetry(name, op)
	breaker := r.breakers.For(name)

	start := time.Now()
	attempts := 0
	res, err := resilience.Retry(ctx, policy, func(ctx context.Context) (*Result, error) {
		attempts++
		return resilience.Call(ctx, breaker, func(ctx context.Context) (*Result, error) {
			return p.Complete(ctx, call)
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) || resilience.IsTransient(err) {
			err = &TransportError{Provider: name, Attempts: attempts, Err: err}
		}
		zap.L().Warn("gateway: model call failed",
			zap.String("provider", name),
			zap.String("model", call.Model),
			zap.String("tier", string(call.Tier)),
			zap.String("op", op),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return "", err
	}

	modelID := res.Model
	if modelID == "" || !r.costs.Known(modelID) {
		modelID = call.Model
	}
	zap.L().Info("gateway: model call",
		zap.String("provider", name),
		zap.String("model", modelID),
		zap.String("tier", string(call.Tier)),
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Int64("input_tokens", res.Usage.InputTokens),
		zap.Int64("output_tokens", res.Usage.OutputTokens),
		zap.Int64("cache_write_tokens", res.Usage.CacheWrite),
		zap.Int64("cache_read_tokens", res.Usage.CacheRead),
		zap.Float64("estimated_cost_usd", r.costs.Cost(modelID, res.Usage)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if strings.TrimSpace(res.Text) == "" {
		return "", ErrEmptyResponse
	}
	return res.Text, nil
}

func visionKey(tier model.Tier, images []string) string {
	h := sha256.New()
	h.Write([]byte(tier))
	for _, img := range images {
		h.Write([]byte{0})
		h.Write([]byte(img))
	}
	return hex.EncodeToString(h.Sum(nil))
}
