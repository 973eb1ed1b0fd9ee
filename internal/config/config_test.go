package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavepick/internal/opt"
	"wavepick/internal/wave"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "wavepick.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultValidates(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, opt.StrategyPartition, c.Solver.Strategy)
	assert.Equal(t, 600*time.Second, c.Solver.TimeLimit)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	p := writeFile(t, `
server:
  port: "9090"
oracle:
  default: cbc
solver:
  strategy: binary
  timeLimit: 90s
  gap: 0.05
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Server.Port)
	assert.Equal(t, "cbc", c.Oracle.Default)
	assert.Equal(t, opt.StrategyBinary, c.Solver.Strategy)
	assert.Equal(t, 90*time.Second, c.Solver.TimeLimit)
	assert.Equal(t, 0.05, c.Solver.Gap)
	// untouched fields keep their defaults
	assert.Equal(t, 20*time.Second, c.Solver.SafetyMargin)
	assert.Equal(t, 5, c.Server.RateBurst)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("SOLVER_TIME_LIMIT", "45")
	t.Setenv("RATE_RPS", "0.5")
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "7000", c.Server.Port)
	assert.Equal(t, 45*time.Second, c.Solver.TimeLimit)
	assert.Equal(t, 0.5, c.Server.RateRPS)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "solver: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "solver:\n  strategy: random\n"))
	assert.ErrorContains(t, err, "unknown strategy")

	t.Setenv("RATE_BURST", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "RATE_BURST")
}

func TestValidateAuth(t *testing.T) {
	c := Default()
	c.Auth.Mode = "hmac"
	assert.Error(t, c.Validate())
	c.Auth.HMACSecret = "s3cret"
	assert.NoError(t, c.Validate())
	c.Auth.Mode = "jwks"
	assert.Error(t, c.Validate())
}

func TestInstanceLimits(t *testing.T) {
	p := writeFile(t, `
server:
  instanceLimits:
    maxAisles: 500
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 500, c.Server.InstanceLimits.MaxAisles)
	assert.Equal(t, wave.DefaultLimits.MaxItems, c.Server.InstanceLimits.MaxItems)

	c.Server.InstanceLimits.MaxOrders = wave.DefaultLimits.MaxOrders * 2
	assert.ErrorContains(t, c.Validate(), "instanceLimits")
}
