package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantifylabs/quantify/config"
	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/oracle"
	"github.com/quantifylabs/quantify/oracle/alpaca"
	"github.com/quantifylabs/quantify/oracle/yahoo"
)

var cfgPath string

func main() {
	// Feed credentials (ALPACA_API_KEY / ALPACA_API_SECRET) come from
	// the environment; a local .env is honored when present.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "quantify",
		Short: "Paper-trading simulator backend",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (YAML or JSON)")

	root.AddCommand(
		newServeCmd(),
		newSettleCmd(),
		newQuoteCmd(),
		newAccountCmd(),
		newInitCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgPath)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func openStore(cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Type {
	case "memory":
		return ledger.NewMemoryStore(), nil
	default:
		return ledger.NewSQLite(cfg.Ledger.DBPath)
	}
}

func buildOracle(cfg *config.Config) (oracle.Oracle, error) {
	var (
		src oracle.Oracle
		err error
	)

	timeout, err := config.ParseDuration(cfg.Oracle.Timeout)
	if err != nil {
		return nil, err
	}

	switch cfg.Oracle.Provider {
	case "alpaca":
		src, err = alpaca.NewClient(
			os.Getenv("ALPACA_API_KEY"),
			os.Getenv("ALPACA_API_SECRET"),
			cfg.Oracle.BaseURL,
			cfg.Oracle.Timezone,
			timeout,
		)
	case "static":
		src = oracle.NewStatic()
	default:
		src, err = yahoo.NewClient(yahoo.Options{
			BaseURL:  cfg.Oracle.BaseURL,
			Suffix:   cfg.Oracle.Suffix,
			Timezone: cfg.Oracle.Timezone,
			Timeout:  timeout,
		})
	}
	if err != nil {
		return nil, err
	}

	ttl, err := config.ParseDuration(cfg.Oracle.CacheTTL)
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		src = oracle.NewCached(src, ttl)
	}
	return src, nil
}

// ensureHouse creates the brokerage account on first run.
func ensureHouse(ctx context.Context, cfg *config.Config, store ledger.Store) error {
	err := store.CreateAccount(ctx, ledger.Account{
		ID:        cfg.House.AccountID,
		Name:      cfg.House.Name,
		CreatedAt: time.Now(),
	})
	if err != nil && !errors.Is(err, ledger.ErrExists) {
		return err
	}
	return nil
}
