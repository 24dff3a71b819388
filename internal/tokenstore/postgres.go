package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps tokens in a shared table, one row per client name
type Postgres struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgres connects, pings and creates the table if it is missing
func NewPostgres(ctx context.Context, connString, name string) (*Postgres, error) {
	if connString == "" {
		return nil, errors.New("tokenstore: postgres url is empty")
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_tokens (
			name TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create session_tokens table: %w", err)
	}

	return &Postgres{pool: pool, name: name}, nil
}

func (p *Postgres) Load(ctx context.Context) (string, error) {
	var token string
	err := p.pool.QueryRow(ctx, "SELECT token FROM session_tokens WHERE name = $1", p.name).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

func (p *Postgres) Save(ctx context.Context, token string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_tokens (name, token, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET token = EXCLUDED.token, updated_at = now()`,
		p.name, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM session_tokens WHERE name = $1", p.name); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
