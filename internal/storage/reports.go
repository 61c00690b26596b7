package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

func (s *Store) CreateReport(ctx context.Context, r Report) (Report, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()
	q := s.sql.Insert("reports").
		Columns("id", "user_id", "request_id", "report_text", "created_at").
		Values(r.ID, r.UserID, r.RequestID, r.ReportText, r.CreatedAt)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Report{}, fmt.Errorf("build create report query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Report{}, fmt.Errorf("create report: %w", err)
	}
	return r, nil
}

func (s *Store) ListReports(ctx context.Context, userID string) ([]Report, error) {
	q := s.sql.Select("id", "user_id", "request_id", "report_text", "created_at").
		From("reports").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list reports query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]Report, 0)
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.UserID, &r.RequestID, &r.ReportText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}
