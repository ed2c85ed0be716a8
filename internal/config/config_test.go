package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "surety.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	cfg.Owner = "0x01"
	cfg.FirstAirline = "0xa1"
	require.NoError(t, cfg.Validate())

	ledger, policy, identity, err := cfg.Ledger()
	require.NoError(t, err)
	assert.Equal(t, 4, ledger.Bootstrap)
	assert.True(t, ledger.Funding.Threshold().Equal(decimal.NewAmountFromInt(10)))
	assert.True(t, ledger.Pool.Cap.Equal(decimal.NewAmountFromInt(1)))
	assert.Equal(t, "3:2", ledger.Pool.Multiplier.String())
	assert.Equal(t, 3, ledger.Oracles.Threshold)
	assert.Equal(t, 5, ledger.Oracles.AssignmentSize)
	assert.True(t, policy.RequireFundedFlights)
	assert.False(t, policy.RequireFundedVoter)
	assert.Equal(t, models.MustAddress("0xa990"), identity)
}

func TestApplyFile(t *testing.T) {
	t.Run("should override only defined keys", func(t *testing.T) {
		path := writeFile(t, `
owner = "0x0f"
first_airline = "0xa1"
addr = ":9090"
etcd_endpoints = ["etcd-1:2379", " ", "etcd-2:2379"]

[policy]
payout_multiplier = "2:1"
require_funded_flights = false
`)
		cfg := Default()
		require.NoError(t, applyFile(path, &cfg))
		assert.Equal(t, "0x0f", cfg.Owner)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.EtcdEndpoints)
		assert.Equal(t, "2:1", cfg.Policy.PayoutMultiplier)
		assert.False(t, cfg.Policy.RequireFundedFlights)
		assert.Equal(t, "1", cfg.Policy.Cap)
		assert.Equal(t, 4, cfg.Policy.BootstrapThreshold)
	})

	t.Run("should reject unknown keys", func(t *testing.T) {
		path := writeFile(t, `ownr = "0x01"`)
		cfg := Default()
		assert.Error(t, applyFile(path, &cfg))
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("should take environment overrides", func(t *testing.T) {
		cfg := Default()
		err := applyEnv(&cfg, env(map[string]string{
			"SURETY_OWNER":                "0x02",
			"PORT":                        "7000",
			"ETCD_ENDPOINTS":              "a:2379,b:2379",
			"SURETY_REQUIRE_FUNDED_VOTER": "true",
			"SURETY_ORACLE_CONSENSUS":     "4",
			"NATS_URL":                    "nats://localhost:4222",
		}))
		require.NoError(t, err)

		assert.Equal(t, "0x02", cfg.Owner)
		assert.Equal(t, ":7000", cfg.Addr)
		assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
		assert.True(t, cfg.Policy.RequireFundedVoter)
		assert.Equal(t, 4, cfg.Policy.OracleConsensus)
		assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	})

	t.Run("should reject malformed values", func(t *testing.T) {
		cfg := Default()
		err := applyEnv(&cfg, env(map[string]string{"SURETY_BOOTSTRAP_THRESHOLD": "four"}))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Owner = "0x01"
		cfg.FirstAirline = "0xa1"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Owner = "" }},
		{"missing first airline", func(c *Config) { c.FirstAirline = "" }},
		{"zero cap", func(c *Config) { c.Policy.Cap = "0" }},
		{"bad multiplier", func(c *Config) { c.Policy.PayoutMultiplier = "3:0" }},
		{"assignment below consensus", func(c *Config) { c.Policy.OracleAssignment = 2 }},
		{"no bootstrap", func(c *Config) { c.Policy.BootstrapThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
owner = "0x01"
first_airline = "0xa1"
log_level = "debug"
`)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SURETY_POLICY_CAP", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "2", cfg.Policy.Cap)

	t.Run("should validate unless reading only", func(t *testing.T) {
		empty := writeFile(t, `log_format = "json"`)
		_, err := Load(empty)
		assert.Error(t, err)

		cfg, err := Read(empty)
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.LogFormat)
	})
}
