package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNegativeAmount = errors.New("credit amount must not be negative")

// GetCredits returns the balance, 0 for users without a record.
func (s *Store) GetCredits(ctx context.Context, userID string) (int64, error) {
	q := s.sql.Select("credits").From("user_credits").Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build get credits query: %w", err)
	}
	var credits int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return credits, nil
}

// AddCredits creates the balance at amount or increases it, returning the new balance.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	q := s.sql.Insert("user_credits").
		Columns("user_id", "credits", "updated_at").
		Values(userID, amount, nowExpr(s.driver)).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET credits = user_credits.credits + excluded.credits, updated_at = excluded.updated_at RETURNING credits")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build add credits query: %w", err)
	}
	var balance int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&balance); err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return balance, nil
}

// DeductCredit decrements the balance by one only if it is positive. The
// check and the write are a single statement, so concurrent callers can
// never drive the balance below zero. It reports whether a row changed.
func (s *Store) DeductCredit(ctx context.Context, userID string) (bool, error) {
	q := s.sql.Update("user_credits").
		Set("credits", sq.Expr("credits - 1")).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.And{sq.Eq{"user_id": userID}, sq.Gt{"credits": 0}})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build deduct credit query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("deduct credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct credit rows affected: %w", err)
	}
	return n == 1, nil
}
