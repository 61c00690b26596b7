package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alemoreirac/maria-aux-back/internal/crypto"
	"github.com/alemoreirac/maria-aux-back/internal/history"
)

func newResealCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reseal",
		Short: "Re-encrypt logged input summaries under the current seal key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if len(cfg.Crypto.Keys) == 0 {
				return history.ErrNoSealer
			}
			sealer, err := crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
			if err != nil {
				log.Error().Err(err).Msg("failed to initialize log sealer")
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			store, err := openStore(ctx, cfg, cfg.DB.AutoMigrate)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := history.Reseal(ctx, store, sealer, batch, log.Logger)
			log.Info().
				Str("key_id", cfg.Crypto.CurrentKeyID).
				Int("scanned", stats.Scanned).
				Int("resealed", stats.Resealed).
				Int("failed", stats.Failed).
				Msg("reseal finished")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, resealed %d, failed %d\n", stats.Scanned, stats.Resealed, stats.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 200, "rows read per page")
	return cmd
}
