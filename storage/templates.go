package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// GetMessageTemplate resolves a template by key, preferring a row scoped to
// the given project over the unscoped row. It returns ErrNotFound when
// neither exists; callers fall back to the built-in default.
func (s *Store) GetMessageTemplate(ctx context.Context, key, project string) (string, error) {
	if project != "" {
		text, err := s.lookupTemplate(ctx, key, project)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return s.lookupTemplate(ctx, key, "")
}

func (s *Store) lookupTemplate(ctx context.Context, key, project string) (string, error) {
	query, args, err := sq.Select("template_text").
		From("message_templates").
		Where(sq.Eq{"template_key": key, "project": project}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build template select: %w", err)
	}

	var text string
	if err := s.db.GetContext(ctx, &text, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get template %s: %w", key, err)
	}
	return text, nil
}

// SetMessageTemplate stores a template override. An empty project scopes
// the template to all projects.
func (s *Store) SetMessageTemplate(ctx context.Context, key, project, text string) error {
	unix, _ := s.timestamps()
	query, args, err := sq.Insert("message_templates").
		Options("OR REPLACE").
		Columns("template_key", "project", "template_text", "updated_at").
		Values(key, project, text, unix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build template upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set template %s: %w", key, err)
	}
	return nil
}
