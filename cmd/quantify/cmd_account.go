package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantifylabs/quantify/ledger"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage holder accounts",
	}
	cmd.AddCommand(newAccountCreateCmd(), newAccountDepositCmd(), newAccountShowCmd())
	return cmd
}

func newAccountCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create ID",
		Short: "Create a holder account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store ledger.Store) error {
				err := store.CreateAccount(ctx, ledger.Account{
					ID:        args[0],
					Name:      name,
					CreatedAt: time.Now(),
				})
				if err != nil {
					return err
				}
				fmt.Printf("account %s created\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newAccountDepositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit ID AMOUNT",
		Short: "Deposit virtual funds into an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[1], err)
			}
			return withStore(func(ctx context.Context, store ledger.Store) error {
				if err := store.Deposit(ctx, args[0], amount); err != nil {
					return err
				}
				balance, err := store.GetBalance(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("balance: %s\n", balance)
				return nil
			})
		},
	}
}

func newAccountShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an account's balance and holdings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store ledger.Store) error {
				acct, err := store.GetAccount(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  balance=%s\n", acct.ID, acct.Balance)

				positions, err := store.Holdings(ctx, args[0])
				if err != nil {
					return err
				}
				for _, p := range positions {
					fmt.Printf("  %-12s qty=%-8d invested=%s\n", p.Symbol, p.Quantity, p.Invested)
				}
				return nil
			})
		},
	}
}

// withStore opens the configured store, runs fn, and closes it.
func withStore(fn func(ctx context.Context, store ledger.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}
