package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, payment *domain.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &payment, nil
}

func (r *Repository) Update(ctx context.Context, payment *domain.Payment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, req domain.ListPaymentsRequest) ([]domain.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Payment{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 15
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var payments []domain.Payment
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&payments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

func (r *Repository) Statistics(ctx context.Context) (domain.Statistics, error) {
	var stats domain.Statistics
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
		        COALESCE(SUM(CASE WHEN status = 'SUCCESS' THEN 1 ELSE 0 END), 0) AS success,
		        COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0) AS failed,
		        COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0) AS pending,
		        COALESCE(SUM(CASE WHEN status = 'FRAUD_DETECTED' THEN 1 ELSE 0 END), 0) AS fraud_detected,
		        COALESCE(SUM(CASE WHEN status = 'SUCCESS' THEN amount ELSE 0 END), 0) AS total_amount
		 FROM payments`,
	).Scan(&stats).Error
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("payment statistics: %w", err)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (r *Repository) CountForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *Repository) CountFailedForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, domain.StatusFailed, since).
		Count(&count).Error
	return count, err
}

func (r *Repository) CountSameAmountForUserSince(ctx context.Context, userID int64, amount float64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("user_id = ? AND amount = ? AND created_at >= ?", userID, amount, since).
		Count(&count).Error
	return count, err
}

func (r *Repository) SumAmountForUserSince(ctx context.Context, userID int64, since time.Time) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&total).Error
	return total, err
}
