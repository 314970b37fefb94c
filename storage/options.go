package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// optionsKey is the project_options row holding the full option document.
const optionsKey = "projects"

// GetProjectOptions returns the raw JSON option document, or ErrNotFound
// when the options were never imported.
func (s *Store) GetProjectOptions(ctx context.Context) ([]byte, error) {
	query, args, err := sq.Select("config_value").
		From("project_options").
		Where(sq.Eq{"config_key": optionsKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build options select: %w", err)
	}

	var doc string
	if err := s.db.GetContext(ctx, &doc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project options: %w", err)
	}
	return []byte(doc), nil
}

// UpdateProjectOptions replaces the option document.
func (s *Store) UpdateProjectOptions(ctx context.Context, doc []byte) error {
	unix, _ := s.timestamps()
	query, args, err := sq.Insert("project_options").
		Options("OR REPLACE").
		Columns("config_key", "config_value", "updated_at").
		Values(optionsKey, string(doc), unix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build options upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update project options: %w", err)
	}
	return nil
}

// HasProjectOptions reports whether the option document was imported.
func (s *Store) HasProjectOptions(ctx context.Context) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM project_options WHERE config_key = ?`, optionsKey)
	if err != nil {
		return false, fmt.Errorf("check project options: %w", err)
	}
	return n > 0, nil
}
