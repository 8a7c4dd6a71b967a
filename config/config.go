// Package config loads the simulator configuration from a YAML or JSON
// file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quantifylabs/quantify/settle"
)

// Config is the complete application configuration.
type Config struct {
	House    HouseConfig  `json:"house" yaml:"house"`
	Fees     FeesConfig   `json:"fees" yaml:"fees"`
	Oracle   OracleConfig `json:"oracle" yaml:"oracle"`
	Ledger   LedgerConfig `json:"ledger" yaml:"ledger"`
	Server   ServerConfig `json:"server" yaml:"server"`
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// HouseConfig names the account that accumulates brokerage.
type HouseConfig struct {
	AccountID string `json:"account_id" yaml:"account_id"`
	Name      string `json:"name" yaml:"name"`
}

// FeesConfig is the brokerage schedule: max(flat, notional*rate).
type FeesConfig struct {
	Flat float64 `json:"flat" yaml:"flat"`
	Rate float64 `json:"rate" yaml:"rate"`
}

// Schedule converts the configured fees into the engine's FeeSchedule.
func (f FeesConfig) Schedule() settle.FeeSchedule {
	return settle.FeeSchedule{
		Flat: decimal.NewFromFloat(f.Flat),
		Rate: decimal.NewFromFloat(f.Rate),
	}
}

// OracleConfig selects and tunes the price feed.
type OracleConfig struct {
	Provider string `json:"provider" yaml:"provider"` // "yahoo", "alpaca" or "static"
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Suffix   string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

// LedgerConfig selects the store backend.
type LedgerConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite" or "memory"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// ServerConfig tunes the HTTP surface and the settlement ticker.
type ServerConfig struct {
	Addr           string `json:"addr" yaml:"addr"`
	SettleInterval string `json:"settle_interval" yaml:"settle_interval"` // e.g. "30s"
}

// ParseDuration parses a duration field, with "" meaning zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LoadFromFile loads configuration from a file (YAML or JSON based on
// content; YAML is tried first).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON
// otherwise).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.House.AccountID == "" {
		return fmt.Errorf("house.account_id is required")
	}
	if c.Fees.Flat < 0 {
		return fmt.Errorf("fees.flat must not be negative")
	}
	if c.Fees.Rate < 0 || c.Fees.Rate >= 1 {
		return fmt.Errorf("fees.rate must be in [0, 1)")
	}
	switch c.Oracle.Provider {
	case "yahoo", "alpaca", "static":
	default:
		return fmt.Errorf("oracle.provider must be 'yahoo', 'alpaca' or 'static'")
	}
	if _, err := ParseDuration(c.Oracle.Timeout); err != nil {
		return fmt.Errorf("oracle.timeout: %w", err)
	}
	if _, err := ParseDuration(c.Oracle.CacheTTL); err != nil {
		return fmt.Errorf("oracle.cache_ttl: %w", err)
	}
	switch c.Ledger.Type {
	case "sqlite":
		if c.Ledger.DBPath == "" {
			return fmt.Errorf("ledger.db_path required for sqlite type")
		}
	case "memory":
	default:
		return fmt.Errorf("ledger.type must be 'sqlite' or 'memory'")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := ParseDuration(c.Server.SettleInterval); err != nil {
		return fmt.Errorf("server.settle_interval: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		House: HouseConfig{
			AccountID: "HOUSE",
			Name:      "Quantify Brokerage",
		},
		Fees: FeesConfig{
			Flat: 20,
			Rate: 0.0005,
		},
		Oracle: OracleConfig{
			Provider: "yahoo",
			Suffix:   ".NS",
			Timezone: "Asia/Kolkata",
			Timeout:  "10s",
			CacheTTL: "15s",
		},
		Ledger: LedgerConfig{
			Type:   "sqlite",
			DBPath: "./quantify.db",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			SettleInterval: "30s",
		},
		LogLevel: "info",
	}
}
