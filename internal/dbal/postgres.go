package dbal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresAdapter wraps a pgx connection pool.
type postgresAdapter struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, s Settings) (Adapter, error) {
	host := s.Host
	if host == "" {
		host = "localhost"
	}
	port := s.Port
	if port == 0 {
		port = 5432
	}
	sslmode := s.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, host, port, s.Database, sslmode)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &postgresAdapter{pool: pool}, nil
}

func (a *postgresAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(descs))
		for i, d := range descs {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[string(d.Name)] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (a *postgresAdapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a *postgresAdapter) Ping(ctx context.Context) error { return a.pool.Ping(ctx) }

func (a *postgresAdapter) Close() error {
	a.pool.Close()
	return nil
}
