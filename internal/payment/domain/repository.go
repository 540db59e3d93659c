package domain

import (
	"context"
	"time"
)

// Repository persists payments and answers the history questions the fraud
// rules ask.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id int64) (*Payment, error)
	Update(ctx context.Context, payment *Payment) error
	List(ctx context.Context, req ListPaymentsRequest) ([]Payment, int64, error)
	Statistics(ctx context.Context) (Statistics, error)

	// Trailing-window history for the fraud rules. All windows are closed at
	// the injected clock's now and exclude nothing by status unless stated.
	CountForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	CountFailedForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	CountSameAmountForUserSince(ctx context.Context, userID int64, amount float64, since time.Time) (int64, error)
	SumAmountForUserSince(ctx context.Context, userID int64, since time.Time) (float64, error)
}
