package domain

import (
	"context"

	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
)

// TodayStats summarizes today's payments from latest-status-per-payment rows.
type TodayStats struct {
	TotalPayments int64   `json:"total_payments"`
	TotalRevenue  float64 `json:"total_revenue"`
	SuccessRate   float64 `json:"success_rate"`
	FraudRate     float64 `json:"fraud_rate"`
}

type StatusBreakdown struct {
	Status string  `json:"status"`
	Count  int64   `json:"count"`
	Total  float64 `json:"total"`
}

type MethodBreakdown struct {
	PaymentMethod string  `json:"payment_method"`
	Count         int64   `json:"count"`
	Total         float64 `json:"total"`
}

type FailureRow struct {
	PaymentID     int64   `json:"payment_id"`
	UserID        int64   `json:"user_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method"`
	ErrorCode     string  `json:"error_code,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	RetryCount    int     `json:"retry_count"`
	FailedAt      string  `json:"failed_at"`
}

type DashboardStats struct {
	Today          TodayStats        `json:"today"`
	ByStatus       []StatusBreakdown `json:"by_status"`
	ByMethod       []MethodBreakdown `json:"by_method"`
	RecentFailures []FailureRow      `json:"recent_failures"`
}

type RevenueTrendRow struct {
	Date     string  `json:"date"`
	Currency string  `json:"currency"`
	Revenue  float64 `json:"revenue"`
}

type MerchantRow struct {
	MerchantID       string  `json:"merchant_id"`
	TransactionCount int64   `json:"transaction_count"`
	TotalRevenue     float64 `json:"total_revenue"`
	AvgAmount        float64 `json:"avg_amount"`
}

type RangeCount struct {
	AmountRange string `json:"amount_range"`
	Count       int64  `json:"count"`
}

type MethodCount struct {
	PaymentMethod string `json:"payment_method"`
	Count         int64  `json:"count"`
}

type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

type FraudPatterns struct {
	ByAmountRange   []RangeCount  `json:"by_amount_range"`
	ByPaymentMethod []MethodCount `json:"by_payment_method"`
	ByHour          []HourCount   `json:"by_hour"`
}

// Service ingests outcome events idempotently and serves the derived reads.
type Service interface {
	// Ingest rejects duplicates of (payment_id, status, event_timestamp) and
	// recomputes the hourly and daily buckets touched by the event timestamp.
	Ingest(ctx context.Context, event queuedomain.PaymentEventPayload) error
	Dashboard(ctx context.Context) (DashboardStats, error)
	RevenueTrend(ctx context.Context, days int) ([]RevenueTrendRow, error)
	TopMerchants(ctx context.Context, limit int) ([]MerchantRow, error)
	FraudPatterns(ctx context.Context) (FraudPatterns, error)
}
