package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alemoreirac/maria-aux-back/internal/credits"
)

func newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant user credits",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "grant <user-id> [amount]",
			Short: "Add credits to a user balance",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := bootstrap()
				if err != nil {
					return err
				}
				amount := cfg.Credits.InitialGrant
				if len(args) == 2 {
					amount, err = strconv.ParseInt(args[1], 10, 64)
					if err != nil || amount <= 0 {
						return fmt.Errorf("amount must be a positive integer, got %q", args[1])
					}
				}

				ctx, cancel := signalContext()
				defer cancel()
				store, err := openStore(ctx, cfg, cfg.DB.AutoMigrate)
				if err != nil {
					return err
				}
				defer store.Close()

				balance, err := credits.New(store, log.Logger).Add(ctx, args[0], amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", args[0], balance)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <user-id>",
			Short: "Print a user balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := bootstrap()
				if err != nil {
					return err
				}
				ctx, cancel := signalContext()
				defer cancel()
				store, err := openStore(ctx, cfg, cfg.DB.AutoMigrate)
				if err != nil {
					return err
				}
				defer store.Close()

				n, err := store.GetCredits(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", args[0], n)
				return nil
			},
		},
	)
	return cmd
}
