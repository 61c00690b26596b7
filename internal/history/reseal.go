package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/crypto"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

const defaultResealBatch = 200

var ErrNoSealer = errors.New("no seal keys configured")

// ResealStore pages through the whole interaction log.
type ResealStore interface {
	ScanInteractions(ctx context.Context, afterID int64, limit uint64) ([]storage.Interaction, error)
	UpdateInteractionQuery(ctx context.Context, id int64, userQuery string) error
}

type ResealStats struct {
	Scanned  int
	Resealed int
	Failed   int
}

// Reseal rewrites stored input summaries under the sealer's current key,
// sealing plaintext rows written before sealing was enabled. Rows that
// cannot be opened are counted as failed and left as they are. Only the
// encoding of a summary changes, never its content.
func Reseal(ctx context.Context, store ResealStore, sealer *crypto.Sealer, batch int, log zerolog.Logger) (ResealStats, error) {
	var stats ResealStats
	if sealer == nil {
		return stats, ErrNoSealer
	}
	if batch <= 0 {
		batch = defaultResealBatch
	}

	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, err := store.ScanInteractions(ctx, after, uint64(batch))
		if err != nil {
			return stats, fmt.Errorf("scan interactions after %d: %w", after, err)
		}
		for _, r := range rows {
			after = r.ID
			stats.Scanned++
			if !sealer.NeedsReseal(r.UserQuery) {
				continue
			}
			sealed, err := sealer.Reseal(r.UserQuery, r.UserID)
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("request_id", r.RequestID).Msg("cannot reseal input summary")
				continue
			}
			if err := store.UpdateInteractionQuery(ctx, r.ID, sealed); err != nil {
				return stats, fmt.Errorf("update interaction %d: %w", r.ID, err)
			}
			stats.Resealed++
		}
		if len(rows) < batch {
			return stats, nil
		}
	}
}
