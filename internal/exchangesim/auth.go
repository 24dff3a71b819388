package exchangesim

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/energytrade/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthService registers accounts and issues HS256 tokens carrying the user id
type AuthService struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewAuthService creates an auth service. A zero ttl issues tokens that
// never expire.
func NewAuthService(store *Store, secret string, ttl time.Duration, cost int, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{store: store, secret: []byte(secret), ttl: ttl, cost: cost, now: now}
}

// Register creates a user with a hashed password
func (s *AuthService) Register(reg models.Registration) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(reg.Name, reg.Email, string(hash))
}

// Login verifies credentials and signs a token
func (s *AuthService) Login(email, password string) (string, error) {
	u, err := s.store.UserByEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"gen":     u.TokenGen,
		"iat":     now.Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = now.Add(s.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserFromToken returns the user id of a valid, unrevoked token
func (s *AuthService) UserFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, ErrInvalidToken
	}
	gen, _ := claims["gen"].(float64)

	u, err := s.store.user(int(userID))
	if err != nil || int(gen) != u.TokenGen {
		return 0, ErrInvalidToken
	}
	return u.ID, nil
}
