package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtrntr/energytrade/internal/exchangeapi"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/models"
)

var (
	// ErrNoToken is returned when an operation needs a token and none is held
	ErrNoToken = errors.New("auth: no token")
	// ErrEmptyToken is returned by Login for an empty token
	ErrEmptyToken = errors.New("auth: empty token")
	// ErrStale is returned when a result was dropped because the session
	// changed while it was in flight
	ErrStale = errors.New("auth: result superseded by a newer session")
)

const subscriberBuffer = 16

// TokenStore persists the session token between runs
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// ProfileSource fetches the profile for a given token. A 401 must surface
// as an error matching exchangeapi.ErrUnauthorized.
type ProfileSource interface {
	ProfileWithToken(ctx context.Context, token string) (models.User, error)
}

// Observer is told about transitions and validation outcomes
type Observer interface {
	SessionTransition(from, to Status)
	ValidationOutcome(outcome Outcome)
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver sets the manager's observer
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithClock replaces time.Now for snapshot timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the session token, profile and authentication status.
// It is safe for concurrent use and is the exchange client's TokenSource.
type Manager struct {
	profiles ProfileSource
	store    TokenStore
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	// storeMu orders store reads and writes with the in-memory transitions
	// that mirror them. Lock order is storeMu then mu.
	storeMu sync.Mutex

	mu        sync.Mutex
	status    Status
	token     string
	user      *models.User
	epoch     uint64
	changedAt time.Time
	subs      map[int]chan Snapshot
	nextSub   int
}

// NewManager creates an unauthenticated session. store may be nil, in
// which case nothing is persisted.
func NewManager(profiles ProfileSource, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		profiles: profiles,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		status:   StatusUnauthenticated,
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.changedAt = m.now()
	return m
}

// Login adopts token and marks the session authenticated without waiting
// for the server. The profile is not fetched; call RefreshProfile after.
// A persistence failure is returned but leaves the session authenticated.
func (m *Manager) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	m.epoch++
	m.token = token
	m.user = nil
	m.setStatusLocked(StatusAuthenticated, true)
	m.mu.Unlock()

	m.logger.Info("session login", "token", logging.Fingerprint(token))

	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, token); err != nil {
		m.logger.Warn("persisting token failed", "error", err)
		return fmt.Errorf("auth: persist token: %w", err)
	}
	return nil
}

// SetProfile attaches user to the session. With a token held, a profile is
// proof of authentication. Without one it is rejected.
func (m *Manager) SetProfile(user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return ErrNoToken
	}
	u := user
	m.user = &u
	m.setStatusLocked(StatusAuthenticated, true)
	return nil
}

// Logout clears the session and erases the persisted token
func (m *Manager) Logout(ctx context.Context) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	m.epoch++
	m.token = ""
	m.user = nil
	m.setStatusLocked(StatusUnauthenticated, true)
	m.mu.Unlock()

	m.logger.Info("session logout")

	if m.store == nil {
		return nil
	}
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("auth: clear persisted token: %w", err)
	}
	return nil
}

// Validate reconciles the session with the persisted token and checks it
// against the profile endpoint. A 401 invalidates the session; any other
// failure keeps it authenticated. The returned error describes the outcome
// but the state change has already been applied.
func (m *Manager) Validate(ctx context.Context) error {
	v, err := m.beginValidation(ctx)
	if err != nil {
		return err
	}

	user, err := m.profiles.ProfileWithToken(ctx, v.token)

	if ctx.Err() != nil {
		m.mu.Lock()
		if m.epoch == v.epoch && m.status == StatusValidating {
			m.abandonLocked(v)
		}
		m.mu.Unlock()
		m.outcome(OutcomeCanceled)
		return ctx.Err()
	}

	if exchangeapi.IsCredential(err) {
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
	}

	m.mu.Lock()
	if m.epoch != v.epoch {
		m.mu.Unlock()
		m.outcome(OutcomeStale)
		return ErrStale
	}

	switch {
	case err == nil:
		u := user
		m.user = &u
		m.setStatusLocked(StatusAuthenticated, true)
		m.mu.Unlock()
		m.outcome(OutcomeOK)
		return nil

	case exchangeapi.IsCredential(err):
		m.invalidateLocked()
		m.mu.Unlock()
		m.outcome(OutcomeCredential)
		m.logger.Warn("token rejected, session invalidated", "token", logging.Fingerprint(v.token))
		m.clearPersisted(ctx)
		return err

	default:
		m.setStatusLocked(StatusAuthenticated, true)
		m.mu.Unlock()
		m.outcome(OutcomeTransient)
		m.logger.Warn("token validation inconclusive, keeping session", "error", err)
		return err
	}
}

type validation struct {
	token string
	epoch uint64
	prev  Status
	// adopted is set when the token came from the store with none held
	adopted bool
}

// beginValidation reconciles the held token with the persisted one and
// moves the session to Validating. The store wins: an erased token logs
// the session out and a different one replaces the held token. Only a
// store that cannot be read leaves the held token in place.
func (m *Manager) beginValidation(ctx context.Context) (validation, error) {
	var (
		persisted string
		loadErr   error
	)
	if m.store != nil {
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
		persisted, loadErr = m.store.Load(ctx)
		if loadErr != nil {
			m.logger.Warn("loading persisted token failed", "error", loadErr)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.token
	adopted := false
	if m.store != nil && loadErr == nil && persisted != held {
		m.epoch++
		m.token = persisted
		m.user = nil
		if persisted == "" {
			m.setStatusLocked(StatusUnauthenticated, true)
			m.logger.Info("persisted token erased, session logged out")
			return validation{}, ErrNoToken
		}
		adopted = held == ""
		m.logger.Info("adopted persisted token", "token", logging.Fingerprint(persisted))
	}

	if m.token == "" {
		if loadErr != nil {
			return validation{}, fmt.Errorf("auth: load persisted token: %w", loadErr)
		}
		return validation{}, ErrNoToken
	}
	v := validation{token: m.token, epoch: m.epoch, prev: m.status, adopted: adopted}
	m.setStatusLocked(StatusValidating, true)
	return v, nil
}

// abandonLocked undoes beginValidation for a validation that will not
// finish. A token adopted from the store is dropped again.
func (m *Manager) abandonLocked(v validation) {
	prev := v.prev
	if v.adopted {
		m.epoch++
		m.token = ""
		m.user = nil
	} else if prev == StatusValidating {
		prev = StatusAuthenticated
	}
	m.setStatusLocked(prev, true)
}

// RefreshProfile fetches the profile for the held token and attaches it.
// A 401 invalidates the session; other failures leave it untouched.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.mu.Lock()
	token, epoch := m.token, m.epoch
	m.mu.Unlock()
	if token == "" {
		return ErrNoToken
	}

	user, err := m.profiles.ProfileWithToken(ctx, token)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if exchangeapi.IsCredential(err) {
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		if exchangeapi.IsCredential(err) {
			m.invalidateLocked()
			m.mu.Unlock()
			m.logger.Warn("profile fetch rejected token, session invalidated", "token", logging.Fingerprint(token))
			m.clearPersisted(ctx)
			return err
		}
		m.mu.Unlock()
		m.logger.Debug("profile fetch failed", "error", err)
		return err
	}
	u := user
	m.user = &u
	m.setStatusLocked(StatusAuthenticated, true)
	m.mu.Unlock()
	return nil
}

// CheckAuth validates the session and fetches the profile when none is
// cached. Failures become state transitions; the resulting state is returned.
func (m *Manager) CheckAuth(ctx context.Context) Snapshot {
	if err := m.Validate(ctx); err != nil && !errors.Is(err, ErrNoToken) {
		m.logger.Debug("check auth: validation", "error", err)
	}

	snap := m.Snapshot()
	if snap.HasToken && snap.User == nil && ctx.Err() == nil {
		if err := m.RefreshProfile(ctx); err != nil {
			m.logger.Debug("check auth: profile", "error", err)
		}
		snap = m.Snapshot()
	}
	return snap
}

// RefreshAuth forces a CheckAuth
func (m *Manager) RefreshAuth(ctx context.Context) Snapshot {
	return m.CheckAuth(ctx)
}

// Token returns the held token, or "" when there is none
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// IsAuthenticated reports whether a token is held that has not been
// rejected. A session being revalidated still counts as authenticated.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedLocked()
}

// Snapshot returns a copy of the current state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel receiving a Snapshot after every transition
// and a function that unsubscribes and closes it. Slow subscribers miss
// snapshots rather than block the session.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) authenticatedLocked() bool {
	if m.token == "" {
		return false
	}
	return m.status == StatusAuthenticated || m.status == StatusValidating
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:        m.status,
		Authenticated: m.authenticatedLocked(),
		HasToken:      m.token != "",
		Epoch:         m.epoch,
		ChangedAt:     m.changedAt,
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

func (m *Manager) invalidateLocked() {
	m.epoch++
	m.token = ""
	m.user = nil
	m.setStatusLocked(StatusInvalid, true)
}

// setStatusLocked moves to status and publishes a snapshot. With force a
// snapshot is published even when the status is unchanged, since the token
// or profile may have changed.
func (m *Manager) setStatusLocked(status Status, force bool) {
	from := m.status
	if from == status && !force {
		return
	}
	m.status = status
	m.changedAt = m.now()
	if from != status && m.observer != nil {
		m.observer.SessionTransition(from, status)
	}
	if from != status {
		m.logger.Debug("session transition", "from", from.String(), "to", status.String())
	}

	snap := m.snapshotLocked()
	for id, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			m.logger.Warn("session subscriber is full, dropping snapshot", "subscriber", id)
		}
	}
}

func (m *Manager) outcome(o Outcome) {
	if m.observer != nil {
		m.observer.ValidationOutcome(o)
	}
}

func (m *Manager) clearPersisted(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("erasing persisted token failed", "error", err)
	}
}

var _ exchangeapi.TokenSource = (*Manager)(nil)
