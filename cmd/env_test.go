package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/config"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
)

// loadTestConfig loads the defaults from an empty directory with no
// provider keys and a temp SQLite database.
func loadTestConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ESTIMATOR_STORE_DATABASE_URL", filepath.Join(tmpDir, "estimator.db"))

	c, err := config.Load()
	require.NoError(t, err)
	cfg = c
	return tmpDir
}

func TestAppEnv_Close_Nil(t *testing.T) {
	env := &appEnv{}
	assert.NotPanics(t, func() {
		env.Close()
	})
}

func TestInitApp_WithoutKeys(t *testing.T) {
	loadTestConfig(t)

	env, err := initApp(context.Background(), "chat")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Orchestrator)
	assert.NotNil(t, env.Learner)
	assert.NotNil(t, env.Advisor)
	require.NoError(t, env.Store.Ping(context.Background()))

	err = env.Gateway.Available(model.TierPro)
	require.Error(t, err)
	assert.True(t, gateway.IsCapability(err))
}

func TestInitApp_WithKeys(t *testing.T) {
	loadTestConfig(t)
	cfg.Anthropic.Key = "sk-ant-test"
	cfg.Gemini.Key = "gm-test"

	env, err := initApp(context.Background(), "chat")
	require.NoError(t, err)
	defer env.Close()

	for _, tier := range model.Tiers {
		assert.NoError(t, env.Gateway.Available(tier), "tier %s", tier)
	}
}

func TestInitApp_ServeNeedsJWTSecret(t *testing.T) {
	loadTestConfig(t)

	env, err := initApp(context.Background(), "serve")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestInitApp_FailsOnBadDriver(t *testing.T) {
	loadTestConfig(t)
	cfg.Store.Driver = "mysql"

	env, err := initApp(context.Background(), "chat")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store.driver")
}
