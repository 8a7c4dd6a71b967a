package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantifylabs/quantify/settle"
)

func newSettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Run one settlement cycle over pending orders and exit",
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

			src, err := buildOracle(cfg)
			if err != nil {
				return err
			}

			engine := settle.NewEngine(store, src, cfg.Fees.Schedule(), cfg.House.AccountID, log)
			fills, err := engine.SettlePendingOrders(context.Background())
			if err != nil {
				return err
			}

			for _, f := range fills {
				fmt.Printf("settled %s  %s @ %s\n", f.OrderID, f.Symbol, f.Price)
			}
			fmt.Printf("%d order(s) settled\n", len(fills))
			return nil
		},
	}
}
