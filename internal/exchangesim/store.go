package exchangesim

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/energytrade/internal/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("order does not belong to user")
	ErrNotOpen            = errors.New("order is not open")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientEnergy = errors.New("insufficient energy")
	ErrNothingToUpdate    = errors.New("nothing to update")
)

type account struct {
	ID           int
	Name         string
	Email        string
	PasswordHash string
	Money        decimal.Decimal
	Energy       decimal.Decimal
	TokenGen     int
	CreatedAt    time.Time
}

// Range bounds order creation times; zero bounds are open
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Store is the simulator's in-memory ledger of accounts, orders and
// transactions. Balances are kept in decimal.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	startMoney  decimal.Decimal
	startEnergy decimal.Decimal

	nextUser  int
	nextOrder int
	nextTx    int

	users   map[int]*account
	byEmail map[string]int
	orders  map[int]*models.Order
	txs     []models.Transaction
}

// NewStore creates an empty ledger. New accounts start with the given
// money and energy.
func NewStore(startMoney, startEnergy float64, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:         now,
		startMoney:  decimal.NewFromFloat(startMoney),
		startEnergy: decimal.NewFromFloat(startEnergy),
		users:       make(map[int]*account),
		byEmail:     make(map[string]int),
		orders:      make(map[int]*models.Order),
	}
}

// CreateUser inserts a new account with the starting balance
func (s *Store) CreateUser(name, email, passwordHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.byEmail[key]; ok {
		return 0, ErrEmailTaken
	}
	s.nextUser++
	u := &account{
		ID:           s.nextUser,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Money:        s.startMoney,
		Energy:       s.startEnergy,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u.ID, nil
}

// UserByEmail returns a copy of the account registered under email
func (s *Store) UserByEmail(email string) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return account{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
	}
	return *s.users[id], nil
}

func (s *Store) user(id int) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return account{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return *u, nil
}

// RevokeTokens invalidates every token issued to the user so far
func (s *Store) RevokeTokens(userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.TokenGen++
	return nil
}

// Balance returns the user's money and energy
func (s *Store) Balance(userID int) (models.Balance, error) {
	u, err := s.user(userID)
	if err != nil {
		return models.Balance{}, err
	}
	return models.Balance{MoneyEUR: u.Money.InexactFloat64(), EnergyMWh: u.Energy.InexactFloat64()}, nil
}

// Profile returns the user's profile
func (s *Store) Profile(userID int) (models.User, error) {
	u, err := s.user(userID)
	if err != nil {
		return models.User{}, err
	}
	return models.User{UserID: u.ID, MoneyEUR: u.Money.InexactFloat64(), EnergyMWh: u.Energy.InexactFloat64()}, nil
}

// Orders lists the user's orders of type t (all when empty) created within
// r, newest first
func (s *Store) Orders(userID int, t models.OrderType, r Range) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.UserID != userID || (t != "" && o.OrderType != t) || !r.contains(o.CreatedAt) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SellOrders lists open sell orders of every user created within r,
// cheapest first, then oldest first
func (s *Store) SellOrders(r Range) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, o := range s.openSellsLocked() {
		if r.contains(o.CreatedAt) {
			out = append(out, *o)
		}
	}
	return out
}

// Order returns one order
func (s *Store) Order(id int) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return *o, nil
}

// PlaceOrder checks the user's balance, records the order and executes a
// buy immediately against the book. It returns the order as stored after
// matching and the transactions the fills produced.
func (s *Store) PlaceOrder(userID int, req models.CreateOrderRequest) (models.Order, []models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.Order{}, nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	amount := decimal.NewFromFloat(req.AmountMWh)
	price := decimal.NewFromFloat(req.PriceEURPerMWh)
	switch req.OrderType {
	case models.OrderTypeBuy:
		if u.Money.LessThan(amount.Mul(price)) {
			return models.Order{}, nil, ErrInsufficientFunds
		}
	case models.OrderTypeSell:
		if u.Energy.LessThan(amount) {
			return models.Order{}, nil, ErrInsufficientEnergy
		}
	}

	now := s.now()
	s.nextOrder++
	o := &models.Order{
		ID:             s.nextOrder,
		UserID:         userID,
		OrderType:      req.OrderType,
		AmountMWh:      req.AmountMWh,
		PriceEURPerMWh: req.PriceEURPerMWh,
		Status:         models.OrderStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
		UserName:       u.Name,
	}
	s.orders[o.ID] = o

	var fills []models.Transaction
	if o.OrderType == models.OrderTypeBuy {
		fills = s.executeBuyLocked(o)
	}
	return *o, fills, nil
}

// UpdateOrder changes the amount and/or price of the user's open order
func (s *Store) UpdateOrder(id, userID int, req models.UpdateOrderRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.ownOpenLocked(id, userID)
	if err != nil {
		return err
	}
	if req.AmountMWh == nil && req.PriceEURPerMWh == nil {
		return ErrNothingToUpdate
	}
	if req.AmountMWh != nil {
		o.AmountMWh = *req.AmountMWh
	}
	if req.PriceEURPerMWh != nil {
		o.PriceEURPerMWh = *req.PriceEURPerMWh
	}
	o.UpdatedAt = s.now()
	return nil
}

// CancelOrder withdraws the user's open order from the book
func (s *Store) CancelOrder(id, userID int) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.ownOpenLocked(id, userID)
	if err != nil {
		return models.Order{}, err
	}
	o.Status = models.OrderStatusCanceled
	o.UpdatedAt = s.now()
	return *o, nil
}

// Transactions lists the user's transactions, newest first
func (s *Store) Transactions(userID int) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].UserID == userID {
			out = append(out, s.txs[i])
		}
	}
	return out
}

func (s *Store) ownOpenLocked(id, userID int) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	if o.Status != models.OrderStatusOpen {
		return nil, ErrNotOpen
	}
	return o, nil
}
