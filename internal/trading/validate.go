package trading

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xtrntr/energytrade/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError is a client-side rejection of user input. No request is
// sent to the exchange for input that fails validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func positive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "must be a finite number")
	}
	if v <= 0 {
		return invalid(field, "must be greater than 0")
	}
	return nil
}

// ValidateCreate checks a new order. Balance checks are skipped when bal
// is nil, which is the case when the balance could not be loaded.
func ValidateCreate(req models.CreateOrderRequest, bal *models.Balance) error {
	if !req.OrderType.Valid() {
		return invalid("order_type", "must be buy or sell, got %q", req.OrderType)
	}
	if err := positive("amount_mwh", req.AmountMWh); err != nil {
		return err
	}
	if err := positive("price_eur_per_mwh", req.PriceEURPerMWh); err != nil {
		return err
	}
	if bal == nil {
		return nil
	}

	switch req.OrderType {
	case models.OrderTypeBuy:
		cost := req.AmountMWh * req.PriceEURPerMWh
		if cost > bal.MoneyEUR {
			return invalid("amount_mwh", "insufficient funds: have %.2f EUR, need %.2f EUR", bal.MoneyEUR, cost)
		}
	case models.OrderTypeSell:
		if req.AmountMWh > bal.EnergyMWh {
			return invalid("amount_mwh", "insufficient energy: have %g MWh, want to sell %g MWh", bal.EnergyMWh, req.AmountMWh)
		}
	}
	return nil
}

// ValidateUpdate checks an edit. When current is non-nil the order must
// still be open.
func ValidateUpdate(req models.UpdateOrderRequest, current *models.Order) error {
	if req.AmountMWh == nil && req.PriceEURPerMWh == nil {
		return invalid("", "nothing to update: set an amount or a price")
	}
	if req.AmountMWh != nil {
		if err := positive("amount_mwh", *req.AmountMWh); err != nil {
			return err
		}
	}
	if req.PriceEURPerMWh != nil {
		if err := positive("price_eur_per_mwh", *req.PriceEURPerMWh); err != nil {
			return err
		}
	}
	if current != nil && current.Status != models.OrderStatusOpen {
		return invalid("status", "only open orders can be changed, order %d is %s", current.ID, current.Status)
	}
	return nil
}

// ValidateRegistration checks sign-up input against the same rules the
// exchange applies
func ValidateRegistration(reg models.Registration) error {
	return structError(validate.Struct(reg))
}

// ValidateCredentials checks login input
func ValidateCredentials(creds models.Credentials) error {
	return structError(validate.Struct(creds))
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return invalid(strings.ToLower(fe.Field()), "is required")
		case "email":
			return invalid("email", "is not a valid address")
		case "min":
			return invalid(strings.ToLower(fe.Field()), "must be at least %s characters", fe.Param())
		}
		return invalid(strings.ToLower(fe.Field()), "failed %s check", fe.Tag())
	}
	return err
}
