package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfig = `
server:
  port: 9090
  session_key: 0123456789abcdef0123456789abcdef
auth:
  email: admin@acme.edu
  password_hash: $2a$10$abcdefghijklmnopqrstuv
store:
  driver: memory
ledger:
  driver: badger
  badger:
    dir: ""
content:
  driver: memory
`

func loadFrom(t *testing.T, yaml string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t, testConfig)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	require.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, StoreMemory, cfg.Store.Driver)
	require.Equal(t, "", cfg.Ledger.Badger.Dir)
	require.Equal(t, uint64(3), cfg.Content.Pinata.MaxRetries)
	require.Equal(t, uint64(2_000_000), cfg.Ledger.Ethereum.GasLimit)
	require.Equal(t, 1, cfg.Issuer.Concurrency)
	require.NoError(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CERTIFIER_AUTH_EMAIL", "registrar@acme.edu")
	t.Setenv("CERTIFIER_ISSUER_CONCURRENCY", "4")

	cfg := loadFrom(t, testConfig)
	require.Equal(t, "registrar@acme.edu", cfg.Auth.Email)
	require.Equal(t, 4, cfg.Issuer.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short session key", func(c *Config) { c.Server.SessionKey = "short" }, "session key"},
		{"no auth email", func(c *Config) { c.Auth.Email = "" }, "auth email"},
		{"unknown store", func(c *Config) { c.Store.Driver = "postgres" }, "unknown store driver"},
		{"dynamo without region", func(c *Config) { c.Store.Driver = StoreDynamo }, "store region"},
		{"ethereum without contract", func(c *Config) {
			c.Ledger.Driver = LedgerEthereum
			c.Ledger.Ethereum.PrivateKey = "00"
		}, "contract address"},
		{"pinata without credentials", func(c *Config) { c.Content.Driver = ContentPinata }, "pinata credentials"},
		{"zero concurrency", func(c *Config) { c.Issuer.Concurrency = 0 }, "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFrom(t, testConfig)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
