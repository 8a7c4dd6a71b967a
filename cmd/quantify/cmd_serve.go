package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantifylabs/quantify/api"
	"github.com/quantifylabs/quantify/config"
	"github.com/quantifylabs/quantify/settle"
	"github.com/quantifylabs/quantify/trading"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic settlement loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := ensureHouse(ctx, cfg, store); err != nil {
				return err
			}

			src, err := buildOracle(cfg)
			if err != nil {
				return err
			}

			fees := cfg.Fees.Schedule()
			engine := settle.NewEngine(store, src, fees, cfg.House.AccountID, log)
			desk := trading.NewDesk(store, src, fees, cfg.House.AccountID, log)

			interval, err := config.ParseDuration(cfg.Server.SettleInterval)
			if err != nil {
				return err
			}

			srv := api.NewServer(store, desk, engine, src, cfg.House.AccountID, log)
			log.Info("quantify starting",
				zap.String("oracle", cfg.Oracle.Provider),
				zap.String("ledger", cfg.Ledger.Type))
			return srv.Run(ctx, cfg.Server.Addr, interval)
		},
	}
}
