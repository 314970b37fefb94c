package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// GetConfig returns the value for key, or fallback when the key is missing
// or stored as NULL.
func (s *Store) GetConfig(ctx context.Context, key, fallback string) (string, error) {
	query, args, err := sq.Select("config_value").
		From("app_config").
		Where(sq.Eq{"config_key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build config select: %w", err)
	}

	var value sql.NullString
	if err := s.db.GetContext(ctx, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	if !value.Valid || value.String == "" {
		return fallback, nil
	}
	return value.String, nil
}

// AllConfig returns every configuration key and value. NULL values come
// back as empty strings.
func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT config_key, config_value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		config[key] = value.String
	}
	return config, rows.Err()
}

// SetConfig stores a configuration value, replacing any existing one.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	unix, _ := s.timestamps()
	query, args, err := sq.Insert("app_config").
		Options("OR REPLACE").
		Columns("config_key", "config_value", "updated_at").
		Values(key, value, unix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build config upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// ConfigCount returns the number of stored configuration keys.
func (s *Store) ConfigCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM app_config`); err != nil {
		return 0, fmt.Errorf("count config: %w", err)
	}
	return n, nil
}
