// Package exchangesim is a local, in-memory stand-in for the energy
// exchange API. It serves the same endpoints as the production backend and
// can be switched into an outage to exercise client fallbacks.
package exchangesim

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/xtrntr/energytrade/internal/config"
	"github.com/xtrntr/energytrade/internal/metrics"
)

// Option configures a Server
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request, order and trade metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces time.Now for timestamps and token expiry
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBcryptCost sets the password hashing cost; tests use bcrypt.MinCost
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// Server holds the simulator state and its HTTP router
type Server struct {
	cfg        config.SimConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	bcryptCost int

	store    *Store
	auth     *AuthService
	feed     *Feed
	validate *validator.Validate
	router   chi.Router
	outage   atomic.Bool
}

// New builds a simulator from cfg
func New(cfg config.SimConfig, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(cfg.StartingMoney, cfg.StartingEnergy, s.now)
	s.auth = NewAuthService(s.store, cfg.JWTSecret, cfg.TokenTTL, s.bcryptCost, s.now)
	s.validate = newValidator()
	s.feed = newFeed(s.logger, s.metrics)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.outageGuard)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/orders/sell", s.handleSellOrders)
	r.Get("/ws/market", s.handleMarketFeed)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/profile", s.handleProfile)
		r.Get("/balance", s.handleBalance)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/orders", s.handleOrders)
		r.Post("/orders", s.handleCreateOrder)
		r.Get("/orders/{id}", s.handleOrder)
		r.Put("/orders/{id}", s.handleUpdateOrder)
		r.Delete("/orders/{id}", s.handleDeleteOrder)
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetOutage makes every route answer 503 until switched off
func (s *Server) SetOutage(down bool) {
	s.outage.Store(down)
	s.logger.Warn("outage switched", "down", down)
}

// Feed returns the market feed hub
func (s *Server) Feed() *Feed {
	return s.feed
}

// RevokeTokens rejects every token issued to the user so far
func (s *Server) RevokeTokens(userID int) error {
	return s.store.RevokeTokens(userID)
}

// ListenAndServe serves on the configured address until ctx is canceled,
// then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("exchange simulator listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("exchange simulator stopped")
	return nil
}

func (s *Server) outageGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.outage.Load() {
			writeError(w, http.StatusServiceUnavailable, "exchange unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
