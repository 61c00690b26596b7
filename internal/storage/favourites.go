package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// AddFavourite marks a prompt as a user's favourite. It returns
// ErrNotFound for unknown prompts and ErrAlreadyExists for duplicates.
func (s *Store) AddFavourite(ctx context.Context, userID string, promptID int64) (string, error) {
	id := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sqlStr, args, err := s.sql.Select("1").From("prompts").Where(sq.Eq{"id": promptID}).ToSql()
		if err != nil {
			return fmt.Errorf("build prompt exists query: %w", err)
		}
		var one int
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("check prompt exists: %w", err)
		}

		q := s.sql.Insert("favourite_prompts").
			Columns("id", "user_id", "prompt_id", "created_at").
			Values(id, userID, promptID, nowExpr(s.driver)).
			Suffix("ON CONFLICT(user_id, prompt_id) DO NOTHING")
		sqlStr, args, err = q.ToSql()
		if err != nil {
			return fmt.Errorf("build add favourite query: %w", err)
		}
		res, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("add favourite: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) RemoveFavourite(ctx context.Context, userID string, promptID int64) error {
	sqlStr, args, err := s.sql.Delete("favourite_prompts").
		Where(sq.Eq{"user_id": userID, "prompt_id": promptID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove favourite query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("remove favourite: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) ListFavourites(ctx context.Context, userID string) ([]Favourite, error) {
	q := s.sql.Select("f.id", "f.user_id", "f.prompt_id", "p.title", "f.created_at").
		From("favourite_prompts f").
		Join("prompts p ON p.id = f.prompt_id").
		Where(sq.Eq{"f.user_id": userID}).
		OrderBy("f.created_at DESC", "p.id ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list favourites query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list favourites: %w", err)
	}
	defer rows.Close()

	out := make([]Favourite, 0)
	for rows.Next() {
		var f Favourite
		if err := rows.Scan(&f.ID, &f.UserID, &f.PromptID, &f.PromptTitle, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favourite: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favourites: %w", err)
	}
	return out, nil
}
