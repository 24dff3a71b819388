package exchangesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xtrntr/energytrade/internal/models"
)

type ctxKey struct{}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates it
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// requireAuth verifies the bearer token and puts the user id in the context
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		userID, err := s.auth.UserFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userID(r *http.Request) int {
	id, _ := r.Context().Value(ctxKey{}).(int)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.auth.Register(req)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("register", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	s.logger.Info("user registered", "user_id", id)
	writeJSON(w, http.StatusCreated, map[string]int{"user_id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.Profile(userID(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.Balance(userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Transactions(userID(r)))
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t := models.OrderType(q.Get("type"))
	if t != "" && !t.Valid() {
		writeError(w, http.StatusBadRequest, "type must be buy or sell")
		return
	}
	rng, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.store.Orders(userID(r), t, rng))
}

func (s *Server) handleSellOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.store.SellOrders(rng))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, fills, err := s.store.PlaceOrder(userID(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.OrderAction("create", string(order.OrderType))
		for i := 0; i < len(fills)/2; i++ {
			s.metrics.TradeExecuted()
		}
	}
	s.logger.Info("order placed", "order_id", order.ID, "type", order.OrderType, "status", order.Status, "fills", len(fills)/2)
	switch {
	case len(fills) > 0:
		s.publishBook(models.ReasonTrade)
	case order.OrderType == models.OrderTypeSell:
		s.publishBook(models.ReasonOrder)
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := s.store.Order(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.UserID != userID(r) && order.OrderType != models.OrderTypeSell {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req models.UpdateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.UpdateOrder(id, userID(r), req); err != nil {
		writeError(w, orderErrorStatus(err), err.Error())
		return
	}
	if o, err := s.store.Order(id); err == nil {
		if s.metrics != nil {
			s.metrics.OrderAction("update", string(o.OrderType))
		}
		if o.OrderType == models.OrderTypeSell {
			s.publishBook(models.ReasonUpdate)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order updated successfully"})
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := s.store.CancelOrder(id, userID(r))
	if err != nil {
		writeError(w, orderErrorStatus(err), err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.OrderAction("cancel", string(order.OrderType))
	}
	if order.OrderType == models.OrderTypeSell {
		s.publishBook(models.ReasonCancel)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted successfully"})
}

func orderID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// parseRange accepts RFC 3339 timestamps or YYYY-MM-DD dates. A date-only
// upper bound includes the whole day.
func parseRange(from, to string) (Range, error) {
	var rng Range
	var err error
	if from != "" {
		if rng.From, _, err = parseTime(from); err != nil {
			return Range{}, fmt.Errorf("invalid from: %q", from)
		}
	}
	if to != "" {
		var dateOnly bool
		if rng.To, dateOnly, err = parseTime(to); err != nil {
			return Range{}, fmt.Errorf("invalid to: %q", to)
		}
		if dateOnly {
			rng.To = rng.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return rng, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	return t, true, err
}
