package domain

import "time"

// One tagged payload type per topic, decoded exactly once at the consumer
// boundary. JSON field names follow the wire format of the producing side.

// PaymentEventPayload is the outcome snapshot published on payment-events
// (and mirrored on payment-success/payment-failed/fraud-detection). It is the
// single source of truth for analytics.
type PaymentEventPayload struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	MerchantID    string     `json:"merchant_id,omitempty"`
	Status        string     `json:"status"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RetryCount    int        `json:"retry_count"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// PaymentRequestPayload asks a consumer to run the state machine for a
// payment that is still PENDING.
type PaymentRequestPayload struct {
	ID int64 `json:"id"`
}

// PaymentRetryPayload re-runs the state machine, tracking the attempt number.
type PaymentRetryPayload struct {
	ID         int64 `json:"id"`
	RetryCount int   `json:"retry_count"`
}

// EmailRequestPayload is dispatched on send-email. RetryScheduledAt is
// advisory metadata on requeued retries; nothing delays visibility.
type EmailRequestPayload struct {
	Type             string         `json:"type"`
	UserID           int64          `json:"user_id"`
	PaymentID        int64          `json:"payment_id"`
	Email            string         `json:"email"`
	Subject          string         `json:"subject"`
	Template         string         `json:"template"`
	Data             map[string]any `json:"data,omitempty"`
	RetryCount       int            `json:"retry_count,omitempty"`
	RetryScheduledAt *time.Time     `json:"retry_scheduled_at,omitempty"`
}

// PushRequestPayload is dispatched on send-notification.
type PushRequestPayload struct {
	Type             string         `json:"type"`
	UserID           int64          `json:"user_id"`
	PaymentID        int64          `json:"payment_id"`
	Title            string         `json:"title"`
	Body             string         `json:"body"`
	Data             map[string]any `json:"data,omitempty"`
	RetryCount       int            `json:"retry_count,omitempty"`
	RetryScheduledAt *time.Time     `json:"retry_scheduled_at,omitempty"`
}

// NotificationPayload is the side-channel notifications topic.
type NotificationPayload struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	PaymentID int64  `json:"payment_id"`
	Message   string `json:"message"`
}

// TransactionPayload is the side-channel transactions topic.
type TransactionPayload struct {
	ReferenceNumber string  `json:"reference_number"`
	PaymentID       int64   `json:"payment_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}
