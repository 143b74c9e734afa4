package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
)

// chdirTemp moves into an empty directory so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Store.DSN())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3, cfg.Gateway.Retry.Attempts)
	assert.Equal(t, 500, cfg.Gateway.Retry.BaseDelayMs)
	assert.Equal(t, 5, cfg.Gateway.Circuit.Threshold)
	assert.Equal(t, 45, cfg.Orchestrator.TurnTimeoutSecs)
	assert.InDelta(t, 0.3, cfg.Orchestrator.EstimateTemperature, 0.001)
	assert.Equal(t, 50, cfg.Pricing.MemoryLimit)
	assert.Equal(t, 500, cfg.Pricing.MemoryCap)
	assert.Equal(t, 60*time.Second, cfg.Anthropic.Timeout())

	routes, err := cfg.Routes()
	require.NoError(t, err)
	assert.Equal(t, gateway.DefaultRoutes(), routes)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/estimator
log:
  level: debug
  format: console
gateway:
  tiers:
    fast:
      provider: anthropic
      model: claude-haiku-4-5-20251001
cost:
  rates:
    claude-haiku-4-5-20251001:
      input: 1
      output: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/estimator", cfg.Store.DSN())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, gateway.Route{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"}, cfg.Gateway.Tiers["fast"])
	assert.Equal(t, gateway.DefaultRoutes()[model.TierExpert], cfg.Gateway.Tiers["expert"])
	assert.InDelta(t, 5.0, cfg.Cost.Rates["claude-haiku-4-5-20251001"].Output, 0.001)
	// Defaults still apply for unset values.
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ESTIMATOR_SERVER_PORT", "9090")
	t.Setenv("ESTIMATOR_LOG_LEVEL", "warn")
	t.Setenv("ESTIMATOR_PRICING_MEMORY_LIMIT", "20")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("JWT_SECRET", "shh")
	t.Setenv("DATABASE_URL", "postgres://db/estimator")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Pricing.MemoryLimit)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "gm-test", cfg.Gemini.Key)
	assert.Equal(t, "shh", cfg.Server.JWTSecret)
	assert.Equal(t, "postgres://db/estimator", cfg.Store.DatabaseURL)
}

func TestLoadPrefixedKeyWins(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ESTIMATOR_ANTHROPIC_KEY", "prefixed")
	t.Setenv("ANTHROPIC_API_KEY", "conventional")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Anthropic.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ESTIMATOR_SERVER_PORT=7070\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ESTIMATOR_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadTiersFile(t *testing.T) {
	dir := chdirTemp(t)

	tiers := `
pro:
  provider: gemini
  model: gemini-2.5-pro
expert:
  provider: anthropic
  model: claude-opus-4-6
  no_prefill: true
`
	tiersPath := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(tiersPath, []byte(tiers), 0o644))
	t.Setenv("ESTIMATOR_GATEWAY_TIERS_FILE", tiersPath)

	cfg, err := Load()
	require.NoError(t, err)

	routes, err := cfg.Routes()
	require.NoError(t, err)
	assert.Equal(t, gateway.Route{Provider: gateway.ProviderGemini, Model: "gemini-2.5-pro"}, routes[model.TierPro])
	assert.Equal(t, gateway.DefaultRoutes()[model.TierFast], routes[model.TierFast])
	assert.True(t, routes[model.TierExpert].NoPrefill)
}

func TestLoadTiersFileMissing(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ESTIMATOR_GATEWAY_TIERS_FILE", "does-not-exist.yaml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read tiers file")
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig() *Config {
	return &Config{
		Store:   StoreConfig{Driver: "sqlite"},
		Gateway: GatewayConfig{Tiers: map[string]gateway.Route{"fast": {Provider: "gemini", Model: "gemini-2.5-flash"}}},
		Server:  ServerConfig{Port: 8080, JWTSecret: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr string
	}{
		{"serve ok", "serve", func(*Config) {}, ""},
		{"serve without jwt secret", "serve", func(c *Config) { c.Server.JWTSecret = "" }, "jwt_secret"},
		{"cli without jwt secret", "chat", func(c *Config) { c.Server.JWTSecret = "" }, ""},
		{"serve bad port", "serve", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"postgres without url", "migrate", func(c *Config) { c.Store.Driver = "postgres" }, "database_url"},
		{"postgres with url", "migrate", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = "postgres://localhost/estimator"
		}, ""},
		{"unknown driver", "serve", func(c *Config) { c.Store.Driver = "mysql" }, "unknown store.driver"},
		{"unknown tier", "serve", func(c *Config) {
			c.Gateway.Tiers["turbo"] = gateway.Route{Provider: "gemini", Model: "x"}
		}, "gateway.tiers.turbo"},
		{"unknown provider", "serve", func(c *Config) {
			c.Gateway.Tiers["pro"] = gateway.Route{Provider: "openai", Model: "gpt"}
		}, "unknown provider"},
		{"missing model", "serve", func(c *Config) {
			c.Gateway.Tiers["pro"] = gateway.Route{Provider: "anthropic"}
		}, "model is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGatewayOptions(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	g, err := cfg.GatewayOptions()
	require.NoError(t, err)
	assert.Equal(t, 3, g.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, g.Retry.BaseDelay)
	assert.Equal(t, 8*time.Second, g.Retry.MaxDelay)
	assert.Equal(t, 30*time.Second, g.Breaker.Cooldown)
	assert.Equal(t, 5, g.Breaker.Threshold)
	assert.InDelta(t, 5.0, g.RatePerSecond, 0.001)
	assert.Equal(t, 10, g.Burst)
	assert.Equal(t, int64(5<<20), g.Images.MaxBytes)
	assert.Len(t, g.Routes, 3)
}

func TestComponentOptions(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	o := cfg.OrchestratorOptions()
	assert.Equal(t, 45*time.Second, o.TurnTimeout)
	assert.Equal(t, 50, o.MemoryLimit)
	assert.InDelta(t, 0.7, o.ClarifyTemperature, 0.001)

	d := cfg.DecisionOptions()
	assert.Equal(t, model.TierFast, d.Tier)
	assert.Equal(t, 10*time.Second, d.Timeout)

	assert.Equal(t, model.TierPro, cfg.LearningTier())
	assert.Equal(t, model.TierExpert, cfg.AdvisorTier())

	cfg.Orchestrator.AdvisorTier = "bogus"
	assert.Equal(t, model.Tier(""), cfg.AdvisorTier())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zap.WarnLevel))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
