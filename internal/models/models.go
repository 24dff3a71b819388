package models

import "time"

// OrderType is the side of an order or transaction
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// Valid reports whether t is buy or sell
func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// OrderStatus is the lifecycle state of an order as reported by the exchange
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// User is the authenticated account profile returned by /auth/profile
type User struct {
	UserID    int     `json:"user_id"`
	EnergyMWh float64 `json:"energy_mwh"`
	MoneyEUR  float64 `json:"money_eur"`
}

// Balance is the account balance returned by /balance
type Balance struct {
	MoneyEUR  float64 `json:"money_eur"`
	EnergyMWh float64 `json:"energy_mwh"`
}

// Order represents a buy or sell order owned by some user
type Order struct {
	ID             int         `json:"id"`
	UserID         int         `json:"user_id,omitempty"`
	OrderType      OrderType   `json:"order_type"`
	AmountMWh      float64     `json:"amount_mwh"`
	PriceEURPerMWh float64     `json:"price_eur_per_mwh"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	UserName       string      `json:"user_name,omitempty"`
}

// MarketListing is an open sell order visible to every client
type MarketListing struct {
	ID             int         `json:"id"`
	UserID         int         `json:"user_id,omitempty"`
	OrderType      OrderType   `json:"order_type"`
	AmountMWh      float64     `json:"amount_mwh"`
	PriceEURPerMWh float64     `json:"price_eur_per_mwh"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	SellerName     string      `json:"user_name,omitempty"`
}

// Transaction is an immutable settled trade record
type Transaction struct {
	ID              int       `json:"id"`
	UserID          int       `json:"user_id,omitempty"`
	OrderID         *int      `json:"order_id,omitempty"`
	TransactionType OrderType `json:"transaction_type"`
	AmountMWh       float64   `json:"amount_mwh"`
	PriceEURPerMWh  float64   `json:"price_eur_per_mwh"`
	TotalEUR        float64   `json:"total_eur"`
	CreatedAt       time.Time `json:"created_at"`
}

// BookUpdate is a market feed message carrying the open sell book after a change
type BookUpdate struct {
	Sequence uint64          `json:"sequence"`
	Reason   string          `json:"reason"`
	Listings []MarketListing `json:"sell_orders"`
	At       time.Time       `json:"at"`
}

// BookUpdate reasons
const (
	ReasonSnapshot = "snapshot"
	ReasonOrder    = "order"
	ReasonTrade    = "trade"
	ReasonUpdate   = "update"
	ReasonCancel   = "cancel"
)

// Credentials is the body of POST /login
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the body of POST /register
type Registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateOrderRequest is the body of POST /orders
type CreateOrderRequest struct {
	OrderType      OrderType `json:"order_type" validate:"required,oneof=buy sell"`
	AmountMWh      float64   `json:"amount_mwh" validate:"gt=0"`
	PriceEURPerMWh float64   `json:"price_eur_per_mwh" validate:"gt=0"`
}

// UpdateOrderRequest is the body of PUT /orders/{id}; nil fields are left unchanged
type UpdateOrderRequest struct {
	AmountMWh      *float64 `json:"amount_mwh,omitempty" validate:"omitempty,gt=0"`
	PriceEURPerMWh *float64 `json:"price_eur_per_mwh,omitempty" validate:"omitempty,gt=0"`
}

// OrderFilter narrows GET /orders
type OrderFilter struct {
	Type OrderType
	From string
	To   string
}
