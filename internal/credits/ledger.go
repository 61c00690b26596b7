package credits

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/metrics"
)

var ErrNegativeAmount = errors.New("credit amount must not be negative")

// Store is the persistence the ledger needs. DeductCredit must be a single
// conditional update.
type Store interface {
	GetCredits(ctx context.Context, userID string) (int64, error)
	AddCredits(ctx context.Context, userID string, amount int64) (int64, error)
	DeductCredit(ctx context.Context, userID string) (bool, error)
}

// Ledger wraps the credit store with fail-closed semantics.
type Ledger struct {
	store Store
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log.With().Str("component", "credits").Logger()}
}

// Check reports whether the user has a positive balance, surfacing store errors.
func (l *Ledger) Check(ctx context.Context, userID string) (bool, error) {
	n, err := l.store.GetCredits(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasCredits is Check with errors treated as no credit, for callers that
// only need a yes/no answer and must fail closed. The router uses Check so
// that store outages surface as their own error.
func (l *Ledger) HasCredits(ctx context.Context, userID string) bool {
	ok, err := l.Check(ctx, userID)
	if err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("credit check failed")
		return false
	}
	return ok
}

// Deduct spends one credit. False means no row was decremented, either
// because the balance was already zero or because the store failed.
func (l *Ledger) Deduct(ctx context.Context, userID string) bool {
	ok, err := l.store.DeductCredit(ctx, userID)
	if err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("credit deduction failed")
		return false
	}
	if !ok {
		l.log.Warn().Str("user_id", userID).Msg("credit deduction found no balance")
		return false
	}
	metrics.Global().CreditsDeducted.Inc()
	return true
}

// Add grants credits, creating the balance if needed. Negative amounts are
// logged and rejected without touching the store.
func (l *Ledger) Add(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		l.log.Warn().Str("user_id", userID).Int64("amount", amount).Msg("ignoring negative credit grant")
		return 0, ErrNegativeAmount
	}
	balance, err := l.store.AddCredits(ctx, userID, amount)
	if err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Int64("amount", amount).Msg("credit grant failed")
		return 0, err
	}
	l.log.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("credits granted")
	return balance, nil
}

// Balance returns the current balance, 0 when unknown or unreadable.
func (l *Ledger) Balance(ctx context.Context, userID string) int64 {
	n, err := l.store.GetCredits(ctx, userID)
	if err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("credit balance read failed")
		return 0
	}
	return n
}
