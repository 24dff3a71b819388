// Package app wires the client side together: token store, exchange
// client, session manager and trading desk.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xtrntr/energytrade/internal/auth"
	"github.com/xtrntr/energytrade/internal/config"
	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/metrics"
	"github.com/xtrntr/energytrade/internal/tokenstore"
	"github.com/xtrntr/energytrade/internal/trading"
)

// App holds the wired client components
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tokens  tokenstore.Store
	Client  *exchangeapi.Client
	Session *auth.Manager
	Desk    *trading.Desk
}

// Option configures New
type Option func(*App)

// WithTokenStore uses store instead of opening the configured one
func WithTokenStore(store tokenstore.Store) Option {
	return func(a *App) { a.Tokens = store }
}

// New builds the client components from cfg. The session starts
// unauthenticated; call Session.CheckAuth to restore a persisted token.
// A nil logger means slog.Default.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Tokens == nil {
		store, err := tokenstore.Open(ctx, cfg.TokenStore, logger)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		a.Tokens = store
	}

	var session *auth.Manager
	a.Client = exchangeapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		exchangeapi.TokenFunc(func() string { return session.Token() }),
		exchangeapi.WithLogger(logger.With("component", "exchangeapi")),
		exchangeapi.WithObserver(a.Metrics),
	)
	session = auth.NewManager(a.Client, a.Tokens,
		auth.WithLogger(logger.With("component", "session")),
		auth.WithObserver(a.Metrics),
	)
	a.Session = session
	a.Desk = trading.NewDesk(a.Client, session, logger.With("component", "desk"))
	return a, nil
}

// Close waits for background work and releases the token store
func (a *App) Close() error {
	a.Desk.Wait()
	return a.Tokens.Close()
}
