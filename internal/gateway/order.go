package gateway

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Order status labels shared with the host.
const (
	StatusPending        = "pending"
	StatusPendingPayment = "pending-payment"
	StatusProcessing     = "processing"
	StatusCompleted      = "completed"
)

// Billing is the buyer contact block of an order.
type Billing struct {
	FirstName string
	LastName  string
	Address1  string
	Address2  string
	City      string
	State     string
	Postcode  string
	Country   string `validate:"omitempty,iso3166_1_alpha2"`
	Email     string `validate:"omitempty,email"`
	Phone     string
}

// OrderRecord is the typed view of a live host order.
type OrderRecord struct {
	ID           int64  `validate:"gt=0"`
	Key          string `validate:"required"`
	Status       string `validate:"required"`
	Total        decimal.Decimal
	Currency     string `validate:"required,iso4217"`
	Billing      Billing
	PaidAt       *time.Time
	StockReduced bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the record before any of its fields leave the system.
func (o OrderRecord) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid order record %d: %w", o.ID, err)
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("invalid order record %d: %w", o.ID, errors.New("negative total"))
	}
	for name, v := range o.textFields() {
		if !utf8.ValidString(v) {
			return fmt.Errorf("invalid order record %d: %s is not valid UTF-8", o.ID, name)
		}
	}
	return nil
}

// textFields lists every string that is copied into the signed payload.
func (o OrderRecord) textFields() map[string]string {
	b := o.Billing
	return map[string]string{
		"key":                o.Key,
		"status":             o.Status,
		"currency":           o.Currency,
		"billing.first_name": b.FirstName,
		"billing.last_name":  b.LastName,
		"billing.address_1":  b.Address1,
		"billing.address_2":  b.Address2,
		"billing.city":       b.City,
		"billing.state":      b.State,
		"billing.postcode":   b.Postcode,
		"billing.country":    b.Country,
		"billing.email":      b.Email,
		"billing.phone":      b.Phone,
	}
}

// IsPaid reports whether payment has already been recorded for the order.
func (o OrderRecord) IsPaid() bool {
	if o.PaidAt != nil {
		return true
	}
	return o.Status == StatusProcessing || o.Status == StatusCompleted
}
