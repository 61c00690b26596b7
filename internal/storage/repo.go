package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/providers"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

var promptColumns = []string{
	"id", "title", "content", "description", "category", "kind", "preferred_provider",
	"has_reasoning", "has_search", "has_files", "has_photo",
}

func (s *Store) CreatePrompt(ctx context.Context, t prompts.Template) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		q := s.sql.Insert("prompts").
			Columns(promptColumns[1:]...).
			Values(t.Title, t.Content, t.Description, t.Category, int(t.Kind), nullProvider(t.PreferredProvider),
				t.Reasoning, t.Search, t.Files, t.Photo).
			Suffix("RETURNING id")
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build create prompt query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
			return fmt.Errorf("create prompt: %w", err)
		}
		for _, p := range t.Parameters {
			p.PromptID = id
			if _, err := s.insertParameter(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (s *Store) UpdatePrompt(ctx context.Context, t prompts.Template) error {
	q := s.sql.Update("prompts").SetMap(map[string]any{
		"title":              t.Title,
		"content":            t.Content,
		"description":        t.Description,
		"category":           t.Category,
		"kind":               int(t.Kind),
		"preferred_provider": nullProvider(t.PreferredProvider),
		"has_reasoning":      t.Reasoning,
		"has_search":         t.Search,
		"has_files":          t.Files,
		"has_photo":          t.Photo,
	}).Where(sq.Eq{"id": t.ID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update prompt query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	return requireAffected(res)
}

// DeletePrompt removes a prompt with its parameters and favourites.
func (s *Store) DeletePrompt(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"parameters", "favourite_prompts"} {
			sqlStr, args, err := s.sql.Delete(table).Where(sq.Eq{"prompt_id": id}).ToSql()
			if err != nil {
				return fmt.Errorf("build delete %s query: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		sqlStr, args, err := s.sql.Delete("prompts").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete prompt query: %w", err)
		}
		res, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("delete prompt: %w", err)
		}
		return requireAffected(res)
	})
}

// GetPrompt returns the prompt row without its parameters.
func (s *Store) GetPrompt(ctx context.Context, id int64) (prompts.Template, error) {
	q := s.sql.Select(promptColumns...).From("prompts").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return prompts.Template{}, fmt.Errorf("build get prompt query: %w", err)
	}
	t, err := scanPrompt(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return prompts.Template{}, ErrNotFound
		}
		return prompts.Template{}, fmt.Errorf("get prompt: %w", err)
	}
	return t, nil
}

// GetTemplate returns the prompt together with its parameter schema.
func (s *Store) GetTemplate(ctx context.Context, id int64) (prompts.Template, error) {
	t, err := s.GetPrompt(ctx, id)
	if err != nil {
		return prompts.Template{}, err
	}
	t.Parameters, err = s.ListParameters(ctx, id)
	if err != nil {
		return prompts.Template{}, err
	}
	return t, nil
}

// ListTemplates returns every prompt with parameters, ordered by id.
func (s *Store) ListTemplates(ctx context.Context) ([]prompts.Template, error) {
	sqlStr, args, err := s.sql.Select(promptColumns...).From("prompts").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list prompts query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	out := make([]prompts.Template, 0)
	index := map[int64]int{}
	for rows.Next() {
		t, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		t.Parameters = []prompts.Parameter{}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompts: %w", err)
	}
	_ = rows.Close()

	params, err := s.listParameters(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if i, ok := index[p.PromptID]; ok {
			out[i].Parameters = append(out[i].Parameters, p)
		}
	}
	return out, nil
}

// AddParameter attaches a parameter to an existing prompt.
func (s *Store) AddParameter(ctx context.Context, p prompts.Parameter) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sqlStr, args, err := s.sql.Select("1").From("prompts").Where(sq.Eq{"id": p.PromptID}).ToSql()
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
		id, err = s.insertParameter(ctx, tx, p)
		return err
	})
	return id, err
}

// DeleteParameter removes a parameter and returns the prompt it belonged to.
func (s *Store) DeleteParameter(ctx context.Context, id int64) (int64, error) {
	var promptID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sqlStr, args, err := s.sql.Select("prompt_id").From("parameters").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build parameter owner query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&promptID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get parameter owner: %w", err)
		}
		sqlStr, args, err = s.sql.Delete("parameters").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete parameter query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("delete parameter: %w", err)
		}
		return nil
	})
	return promptID, err
}

func (s *Store) GetParameter(ctx context.Context, id int64) (prompts.Parameter, error) {
	params, err := s.listParameters(ctx, sq.Eq{"id": id})
	if err != nil {
		return prompts.Parameter{}, err
	}
	if len(params) == 0 {
		return prompts.Parameter{}, ErrNotFound
	}
	return params[0], nil
}

// UpdateParameter rewrites a parameter's title, description and kind. The
// owning prompt never changes; its id is returned.
func (s *Store) UpdateParameter(ctx context.Context, p prompts.Parameter) (int64, error) {
	var promptID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sqlStr, args, err := s.sql.Select("prompt_id").From("parameters").Where(sq.Eq{"id": p.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build parameter owner query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&promptID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get parameter owner: %w", err)
		}
		sqlStr, args, err = s.sql.Update("parameters").SetMap(map[string]any{
			"title":       p.Title,
			"description": p.Description,
			"kind":        int(p.Kind),
		}).Where(sq.Eq{"id": p.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build update parameter query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("update parameter: %w", err)
		}
		return nil
	})
	return promptID, err
}

func (s *Store) ListParameters(ctx context.Context, promptID int64) ([]prompts.Parameter, error) {
	return s.listParameters(ctx, sq.Eq{"prompt_id": promptID})
}

func (s *Store) listParameters(ctx context.Context, where sq.Sqlizer) ([]prompts.Parameter, error) {
	q := s.sql.Select("id", "prompt_id", "title", "description", "kind").From("parameters").OrderBy("id ASC")
	if where != nil {
		q = q.Where(where)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list parameters query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	defer rows.Close()

	out := make([]prompts.Parameter, 0)
	for rows.Next() {
		var p prompts.Parameter
		var kind int
		if err := rows.Scan(&p.ID, &p.PromptID, &p.Title, &p.Description, &kind); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Kind = prompts.ParamKind(kind)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parameters: %w", err)
	}
	return out, nil
}

func (s *Store) insertParameter(ctx context.Context, tx *sql.Tx, p prompts.Parameter) (int64, error) {
	q := s.sql.Insert("parameters").
		Columns("prompt_id", "title", "description", "kind").
		Values(p.PromptID, p.Title, p.Description, int(p.Kind)).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert parameter query: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert parameter: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (prompts.Template, error) {
	var t prompts.Template
	var kind int
	var preferred sql.NullInt64
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Content,
		&t.Description,
		&t.Category,
		&kind,
		&preferred,
		&t.Reasoning,
		&t.Search,
		&t.Files,
		&t.Photo,
	); err != nil {
		return prompts.Template{}, err
	}
	t.Kind = prompts.Kind(kind)
	if preferred.Valid {
		t.PreferredProvider = providers.ID(preferred.Int64)
	}
	return t, nil
}

func nullProvider(id providers.ID) any {
	if id == 0 {
		return nil
	}
	return int(id)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
