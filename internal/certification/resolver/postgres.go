package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads the admin platform's sys_config key/value table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT config_value FROM sys_config WHERE config_key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query sys_config %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresSource) GetConfigValues(ctx context.Context, keys []string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT config_key, config_value FROM sys_config WHERE config_key = ANY($1)`, keys,
	)
	if err != nil {
		return nil, fmt.Errorf("query sys_config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan sys_config: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sys_config: %w", err)
	}
	return values, nil
}
