package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/advisor"
	"github.com/sells-group/estimator/internal/decision"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/learning"
	"github.com/sells-group/estimator/internal/normalize"
	"github.com/sells-group/estimator/internal/orchestrator"
	"github.com/sells-group/estimator/internal/store"
	anthropicpkg "github.com/sells-group/estimator/pkg/anthropic"
	"github.com/sells-group/estimator/pkg/gemini"
)

// appEnv holds the store and the model-backed components shared by the
// serve, chat and learn commands.
type appEnv struct {
	Store        store.Store
	Gateway      *gateway.Router
	Orchestrator *orchestrator.Orchestrator
	Learner      *learning.Learner
	Advisor      *advisor.Advisor
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates the config for mode, opens the store and builds the
// gateway and everything that talks to it. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	router, err := initGateway(ctx)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := decision.NewEngine(router, cfg.DecisionOptions())
	orch := orchestrator.New(router, engine, normalize.Normalizer{}, cfg.OrchestratorOptions())

	return &appEnv{
		Store:        st,
		Gateway:      router,
		Orchestrator: orch,
		Learner:      learning.NewLearner(router, cfg.LearningTier()),
		Advisor:      advisor.New(router, cfg.AdvisorTier()),
	}, nil
}

// initGateway builds provider clients for the configured keys and routes
// tiers across them. A provider without a key is left out; its tiers report
// a capability error when called.
func initGateway(ctx context.Context) (*gateway.Router, error) {
	gwCfg, err := cfg.GatewayOptions()
	if err != nil {
		return nil, err
	}

	var providers []gateway.Provider
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.Options{
			BaseURL: cfg.Anthropic.BaseURL,
			Timeout: cfg.Anthropic.Timeout(),
		})
		providers = append(providers, gateway.NewAnthropicProvider(client))
	} else {
		zap.L().Debug("ANTHROPIC_API_KEY not set, anthropic tiers disabled")
	}

	if cfg.Gemini.Key != "" {
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL, cfg.Gemini.Timeout())
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		providers = append(providers, gateway.NewGeminiProvider(client))
	} else {
		zap.L().Debug("GEMINI_API_KEY not set, gemini tiers disabled")
	}

	router, err := gateway.New(gwCfg, providers...)
	if err != nil {
		return nil, err
	}
	for tier, rt := range gwCfg.Routes {
		if err := router.Available(tier); err != nil {
			zap.L().Warn("tier unavailable", zap.String("tier", string(tier)), zap.String("provider", rt.Provider))
		}
	}
	return router, nil
}
