package domain

import (
	"context"
	"errors"
	"strings"
)

type CreatePaymentRequest struct {
	UserID        int64          `json:"user_id"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method"`
	MerchantID    string         `json:"merchant_id"`
	Metadata      map[string]any `json:"metadata"`
}

// Validate normalizes the request and reports the first invalid field.
// Validation failures surface to the caller immediately; nothing is retried.
func (r *CreatePaymentRequest) Validate() error {
	if r.UserID < 1 {
		return ErrInvalidUser
	}
	if r.Amount < 1 {
		return ErrInvalidAmount
	}
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = "VND"
	}
	if len(r.Currency) != 3 {
		return ErrInvalidCurrency
	}
	r.PaymentMethod = strings.ToUpper(strings.TrimSpace(r.PaymentMethod))
	valid := false
	for _, m := range PaymentMethods {
		if r.PaymentMethod == m {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidMethod
	}
	if len(r.MerchantID) > 100 {
		return ErrInvalidMerchant
	}
	return nil
}

type ListPaymentsRequest struct {
	Status  string
	UserID  int64
	Page    int
	PerPage int
}

type ListPaymentsResponse struct {
	Payments []Payment `json:"payments"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

// Statistics is the payment-table summary for the statistics endpoint.
type Statistics struct {
	Total         int64   `json:"total"`
	Success       int64   `json:"success"`
	Failed        int64   `json:"failed"`
	Pending       int64   `json:"pending"`
	FraudDetected int64   `json:"fraud_detected"`
	TotalAmount   float64 `json:"total_amount"`
	SuccessRate   float64 `json:"success_rate"`
}

// Service is the payment state machine.
type Service interface {
	// Create persists a PENDING payment and processes it synchronously, so the
	// caller receives a final-for-now status. Side effects are queued.
	Create(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	// Process runs the state machine once: fraud gate, gateway, outcome.
	Process(ctx context.Context, payment *Payment) (bool, error)
	// Retry re-processes a FAILED payment while retries remain and always
	// re-emits the outcome event afterward.
	Retry(ctx context.Context, id int64) (*Payment, error)
	Get(ctx context.Context, id int64) (*Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) (ListPaymentsResponse, error)
	Statistics(ctx context.Context) (Statistics, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user_id")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidMethod   = errors.New("invalid_payment_method")
	ErrInvalidMerchant = errors.New("invalid_merchant_id")
	ErrNotFound        = errors.New("payment_not_found")
	ErrRetryNotAllowed = errors.New("retry_not_allowed")
)
