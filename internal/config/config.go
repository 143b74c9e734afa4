package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/estimator/internal/cost"
	"github.com/sells-group/estimator/internal/decision"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/orchestrator"
	"github.com/sells-group/estimator/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    ProviderConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini       ProviderConfig     `yaml:"gemini" mapstructure:"gemini"`
	Gateway      GatewayConfig      `yaml:"gateway" mapstructure:"gateway"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Cost         CostConfig         `yaml:"cost" mapstructure:"cost"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DefaultSQLitePath is the database file used by the sqlite driver when no
// database_url is set.
const DefaultSQLitePath = "estimator.db"

// DSN returns the connection string for the configured driver.
func (s StoreConfig) DSN() string {
	if s.DatabaseURL == "" && s.Driver == "sqlite" {
		return DefaultSQLitePath
	}
	return s.DatabaseURL
}

// ProviderConfig holds model provider credentials and endpoint overrides.
type ProviderConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// GatewayConfig configures tier routing and transport resilience.
type GatewayConfig struct {
	Tiers            map[string]gateway.Route `yaml:"tiers" mapstructure:"tiers"`
	TiersFile        string                   `yaml:"tiers_file" mapstructure:"tiers_file"`
	Retry            RetryConfig              `yaml:"retry" mapstructure:"retry"`
	Circuit          CircuitConfig            `yaml:"circuit" mapstructure:"circuit"`
	RateLimit        RateLimitConfig          `yaml:"rate_limit" mapstructure:"rate_limit"`
	VisionCacheSize  int                      `yaml:"vision_cache_size" mapstructure:"vision_cache_size"`
	DefaultMaxTokens int                      `yaml:"default_max_tokens" mapstructure:"default_max_tokens"`
	ImageMaxBytes    int64                    `yaml:"image_max_bytes" mapstructure:"image_max_bytes"`
	ImageConcurrency int                      `yaml:"image_concurrency" mapstructure:"image_concurrency"`
}

// RetryConfig configures transport retries.
type RetryConfig struct {
	Attempts    int     `yaml:"attempts" mapstructure:"attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Jitter      float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	Threshold    int `yaml:"threshold" mapstructure:"threshold"`
	CooldownSecs int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// RateLimitConfig configures per-provider request rate limits.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// OrchestratorConfig configures conversation turns.
type OrchestratorConfig struct {
	TurnTimeoutSecs     int     `yaml:"turn_timeout_secs" mapstructure:"turn_timeout_secs"`
	EstimateTemperature float64 `yaml:"estimate_temperature" mapstructure:"estimate_temperature"`
	ClarifyTemperature  float64 `yaml:"clarify_temperature" mapstructure:"clarify_temperature"`
	EstimateMaxTokens   int     `yaml:"estimate_max_tokens" mapstructure:"estimate_max_tokens"`
	DecisionTier        string  `yaml:"decision_tier" mapstructure:"decision_tier"`
	DecisionTimeoutSecs int     `yaml:"decision_timeout_secs" mapstructure:"decision_timeout_secs"`
	LearningTier        string  `yaml:"learning_tier" mapstructure:"learning_tier"`
	AdvisorTier         string  `yaml:"advisor_tier" mapstructure:"advisor_tier"`
}

// PricingConfig configures how learned memories feed the pricing directive.
type PricingConfig struct {
	MemoryLimit int `yaml:"memory_limit" mapstructure:"memory_limit"`
	MemoryCap   int `yaml:"memory_cap" mapstructure:"memory_cap"`
}

// CostConfig holds per-model token pricing (USD per million tokens).
type CostConfig struct {
	Rates map[string]cost.ModelRate `yaml:"rates" mapstructure:"rates"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	JWTSecret   string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ESTIMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider SDK conventions are honored alongside the prefixed names.
	for key, env := range map[string]string{
		"anthropic.key":      "ANTHROPIC_API_KEY",
		"gemini.key":         "GEMINI_API_KEY",
		"server.jwt_secret":  "JWT_SECRET",
		"store.database_url": "DATABASE_URL",
	} {
		if err := v.BindEnv(key, "ESTIMATOR_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Gateway.TiersFile != "" {
		tiers, err := LoadTiers(cfg.Gateway.TiersFile)
		if err != nil {
			return nil, err
		}
		if cfg.Gateway.Tiers == nil {
			cfg.Gateway.Tiers = make(map[string]gateway.Route, len(tiers))
		}
		for name, rt := range tiers {
			cfg.Gateway.Tiers[name] = rt
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.timeout_secs", 60)

	for tier, rt := range gateway.DefaultRoutes() {
		v.SetDefault("gateway.tiers."+string(tier)+".provider", rt.Provider)
		v.SetDefault("gateway.tiers."+string(tier)+".model", rt.Model)
		v.SetDefault("gateway.tiers."+string(tier)+".no_prefill", rt.NoPrefill)
	}
	v.SetDefault("gateway.tiers_file", "")
	v.SetDefault("gateway.retry.attempts", 3)
	v.SetDefault("gateway.retry.base_delay_ms", 500)
	v.SetDefault("gateway.retry.max_delay_ms", 8000)
	v.SetDefault("gateway.retry.jitter", 0.2)
	v.SetDefault("gateway.circuit.threshold", 5)
	v.SetDefault("gateway.circuit.cooldown_secs", 30)
	v.SetDefault("gateway.rate_limit.per_second", 5)
	v.SetDefault("gateway.rate_limit.burst", 10)
	v.SetDefault("gateway.vision_cache_size", 256)
	v.SetDefault("gateway.default_max_tokens", 4096)
	v.SetDefault("gateway.image_max_bytes", 5<<20)
	v.SetDefault("gateway.image_concurrency", 4)

	v.SetDefault("orchestrator.turn_timeout_secs", 45)
	v.SetDefault("orchestrator.estimate_temperature", 0.3)
	v.SetDefault("orchestrator.clarify_temperature", 0.7)
	v.SetDefault("orchestrator.estimate_max_tokens", 4096)
	v.SetDefault("orchestrator.decision_tier", string(model.TierFast))
	v.SetDefault("orchestrator.decision_timeout_secs", 10)
	v.SetDefault("orchestrator.learning_tier", string(model.TierPro))
	v.SetDefault("orchestrator.advisor_tier", string(model.TierExpert))

	v.SetDefault("pricing.memory_limit", 50)
	v.SetDefault("pricing.memory_cap", 500)
}

// LoadTiers reads a YAML tier table of the form
//
//	fast: {provider: gemini, model: gemini-2.5-flash}
func LoadTiers(path string) (map[string]gateway.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read tiers file %s", path)
	}
	var tiers map[string]gateway.Route
	if err := yaml.Unmarshal(data, &tiers); err != nil {
		return nil, eris.Wrapf(err, "config: parse tiers file %s", path)
	}
	return tiers, nil
}

// Validate checks the settings a command mode needs. Missing provider keys
// are not an error: the affected tiers report themselves unavailable at
// request time.
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if _, err := c.Routes(); err != nil {
		return err
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			return eris.Errorf("config: invalid server.port %d", c.Server.Port)
		}
		if c.Server.JWTSecret == "" {
			return eris.New("config: server.jwt_secret (JWT_SECRET) is required to serve")
		}
	}

	if c.Anthropic.Key == "" && c.Gemini.Key == "" && mode != "migrate" {
		zap.L().Warn("config: no model provider key configured, every tier is unavailable")
	}
	return nil
}

// Routes converts the tier table into gateway routes.
func (c *Config) Routes() (map[model.Tier]gateway.Route, error) {
	out := make(map[model.Tier]gateway.Route, len(c.Gateway.Tiers))
	for name, rt := range c.Gateway.Tiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, eris.Wrapf(err, "config: gateway.tiers.%s", name)
		}
		switch rt.Provider {
		case gateway.ProviderAnthropic, gateway.ProviderGemini:
		default:
			return nil, eris.Errorf("config: gateway.tiers.%s: unknown provider %q", name, rt.Provider)
		}
		if rt.Model == "" {
			return nil, eris.Errorf("config: gateway.tiers.%s: model is required", name)
		}
		out[tier] = rt
	}
	return out, nil
}

// GatewayOptions builds the gateway configuration.
func (c *Config) GatewayOptions() (gateway.Config, error) {
	routes, err := c.Routes()
	if err != nil {
		return gateway.Config{}, err
	}
	g := c.Gateway
	return gateway.Config{
		Routes: routes,
		Retry: resilience.Policy{
			Attempts:  g.Retry.Attempts,
			BaseDelay: time.Duration(g.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:  time.Duration(g.Retry.MaxDelayMs) * time.Millisecond,
			Jitter:    g.Retry.Jitter,
		},
		Breaker: resilience.BreakerConfig{
			Threshold: g.Circuit.Threshold,
			Cooldown:  time.Duration(g.Circuit.CooldownSecs) * time.Second,
		},
		RatePerSecond:    g.RateLimit.PerSecond,
		Burst:            g.RateLimit.Burst,
		VisionCacheSize:  g.VisionCacheSize,
		DefaultMaxTokens: g.DefaultMaxTokens,
		Images: gateway.Loader{
			MaxBytes:    g.ImageMaxBytes,
			Concurrency: g.ImageConcurrency,
		},
		Rates: c.Cost.Rates,
	}, nil
}

// OrchestratorOptions builds the orchestrator configuration.
func (c *Config) OrchestratorOptions() orchestrator.Config {
	o := c.Orchestrator
	return orchestrator.Config{
		TurnTimeout:         time.Duration(o.TurnTimeoutSecs) * time.Second,
		MemoryLimit:         c.Pricing.MemoryLimit,
		EstimateTemperature: o.EstimateTemperature,
		ClarifyTemperature:  o.ClarifyTemperature,
		EstimateMaxTokens:   o.EstimateMaxTokens,
	}
}

// DecisionOptions builds the turn classifier configuration.
func (c *Config) DecisionOptions() decision.Config {
	return decision.Config{
		Tier:    tierOrEmpty(c.Orchestrator.DecisionTier),
		Timeout: time.Duration(c.Orchestrator.DecisionTimeoutSecs) * time.Second,
	}
}

// LearningTier is the tier used to distill feedback.
func (c *Config) LearningTier() model.Tier { return tierOrEmpty(c.Orchestrator.LearningTier) }

// AdvisorTier is the tier used by the business advisor.
func (c *Config) AdvisorTier() model.Tier { return tierOrEmpty(c.Orchestrator.AdvisorTier) }

// tierOrEmpty leaves the tier unset for blank or unknown names so the
// component default applies.
func tierOrEmpty(s string) model.Tier {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	t, err := model.ParseTier(s)
	if err != nil {
		return ""
	}
	return t
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
