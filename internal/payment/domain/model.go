// Package domain contains the payment lifecycle model. Payment rows are owned
// by the state machine and never deleted.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the payment lifecycle state.
//
//	PENDING → PROCESSING → {SUCCESS, FAILED, FRAUD_DETECTED}
//
// FAILED → PROCESSING is reachable again only via an explicit retry while
// retry_count < 3. SUCCESS and FRAUD_DETECTED are terminal.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusProcessing    Status = "PROCESSING"
	StatusSuccess       Status = "SUCCESS"
	StatusFailed        Status = "FAILED"
	StatusFraudDetected Status = "FRAUD_DETECTED"
)

// MaxRetries bounds retry_count; once reached, FAILED is terminal.
const MaxRetries = 3

// Gateway decline codes, drawn uniformly on failure.
var ErrorCodes = []string{
	"INSUFFICIENT_FUNDS",
	"CARD_DECLINED",
	"NETWORK_ERROR",
	"TIMEOUT",
	"INVALID_CARD",
}

// ErrorCodeFraud marks payments blocked by the fraud engine.
const ErrorCodeFraud = "FRAUD_SUSPECTED"

// Methods accepted by create payment.
var PaymentMethods = []string{"CARD", "BANK_TRANSFER", "EWALLET", "CASH"}

type Payment struct {
	ID            int64             `gorm:"primaryKey"`
	UserID        int64             `gorm:"not null;index"`
	Amount        float64           `gorm:"not null"`
	Currency      string            `gorm:"type:varchar(3);not null;default:VND"`
	PaymentMethod string            `gorm:"type:varchar(20);not null"`
	MerchantID    string            `gorm:"type:varchar(100);index"`
	Status        Status            `gorm:"type:varchar(20);not null;index"`
	ErrorCode     string            `gorm:"type:varchar(50)"`
	ErrorMessage  string            `gorm:"type:text"`
	RetryCount    int               `gorm:"not null;default:0"`
	Metadata      datatypes.JSONMap `gorm:""`
	ProcessedAt   *time.Time        `gorm:""`
	CreatedAt     time.Time         `gorm:"not null;index"`
	UpdatedAt     time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// CanRetry reports whether an explicit retry is still allowed.
func (p *Payment) CanRetry() bool {
	return p.RetryCount < MaxRetries && p.Status == StatusFailed
}
