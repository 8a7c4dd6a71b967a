package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Fetch the live price for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, err := buildOracle(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			q, err := src.GetQuote(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  (as of %s)\n",
				q.Symbol, q.Price, q.Time.Format("15:04:05 MST"))
			return nil
		},
	}
}
