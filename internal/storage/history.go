package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// InsertInteraction appends one interaction log row and returns its row id.
func (s *Store) InsertInteraction(ctx context.Context, e Interaction) (int64, error) {
	q := s.sql.Insert("llm_log").
		Columns("request_id", "user_id", "user_query", "llm_response", "created_at").
		Values(e.RequestID, e.UserID, e.UserQuery, e.LLMResponse, nowExpr(s.driver)).
		Suffix("RETURNING id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert interaction query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert interaction: %w", err)
	}
	return id, nil
}

// ScanInteractions pages through the whole log in id order, returning rows
// with id greater than afterID.
func (s *Store) ScanInteractions(ctx context.Context, afterID int64, limit uint64) ([]Interaction, error) {
	q := s.sql.Select("id", "request_id", "user_id", "user_query", "llm_response", "created_at").
		From("llm_log").
		Where(sq.Gt{"id": afterID}).
		OrderBy("id ASC").
		Limit(limit)
	return s.queryInteractions(ctx, q)
}

// UpdateInteractionQuery replaces the stored input summary of one row.
func (s *Store) UpdateInteractionQuery(ctx context.Context, id int64, userQuery string) error {
	sqlStr, args, err := s.sql.Update("llm_log").Set("user_query", userQuery).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update interaction query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update interaction: %w", err)
	}
	return requireAffected(res)
}

// RecentInteractions lists a user's interactions, most recent first.
func (s *Store) RecentInteractions(ctx context.Context, userID string, limit uint64) ([]Interaction, error) {
	if limit == 0 {
		limit = 20
	}
	q := s.sql.Select("id", "request_id", "user_id", "user_query", "llm_response", "created_at").
		From("llm_log").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id DESC").
		Limit(limit)
	return s.queryInteractions(ctx, q)
}

func (s *Store) queryInteractions(ctx context.Context, q sq.SelectBuilder) ([]Interaction, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build interactions query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	out := make([]Interaction, 0)
	for rows.Next() {
		var e Interaction
		if err := rows.Scan(&e.ID, &e.RequestID, &e.UserID, &e.UserQuery, &e.LLMResponse, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return out, nil
}
