package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "HOUSE", cfg.House.AccountID)
	assert.Equal(t, "yahoo", cfg.Oracle.Provider)
	assert.Equal(t, ".NS", cfg.Oracle.Suffix)
	assert.Equal(t, "Asia/Kolkata", cfg.Oracle.Timezone)

	fees := cfg.Fees.Schedule()
	assert.Equal(t, "20.00", fees.Flat.StringFixed(2))
	assert.Equal(t, "0.0005", fees.Rate.String())
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
house:
  account_id: BROKER
fees:
  flat: 15
  rate: 0.001
oracle:
  provider: static
ledger:
  type: memory
server:
  addr: ":9090"
  settle_interval: 10s
log_level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "BROKER", cfg.House.AccountID)
	assert.Equal(t, "static", cfg.Oracle.Provider)
	assert.Equal(t, "memory", cfg.Ledger.Type)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	interval, err := ParseDuration(cfg.Server.SettleInterval)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, interval)
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"house": {"account_id": "HOUSE"},
		"fees": {"flat": 20, "rate": 0.0005},
		"oracle": {"provider": "yahoo"},
		"ledger": {"type": "sqlite", "db_path": "/tmp/test.db"},
		"server": {"addr": ":8080", "settle_interval": "30s"}
	}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Ledger.Type)
	assert.Equal(t, "/tmp/test.db", cfg.Ledger.DBPath)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().SaveToFile(path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing house", func(c *Config) { c.House.AccountID = "" }},
		{"negative flat fee", func(c *Config) { c.Fees.Flat = -1 }},
		{"rate out of range", func(c *Config) { c.Fees.Rate = 1.5 }},
		{"unknown oracle", func(c *Config) { c.Oracle.Provider = "crystal-ball" }},
		{"bad oracle timeout", func(c *Config) { c.Oracle.Timeout = "soon" }},
		{"bad cache ttl", func(c *Config) { c.Oracle.CacheTTL = "later" }},
		{"sqlite without path", func(c *Config) { c.Ledger.DBPath = "" }},
		{"unknown ledger type", func(c *Config) { c.Ledger.Type = "papyrus" }},
		{"missing server addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad settle interval", func(c *Config) { c.Server.SettleInterval = "whenever" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not config"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseDurationEmptyIsZero(t *testing.T) {
	t.Parallel()

	d, err := ParseDuration("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)
}
