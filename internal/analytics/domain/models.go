// Package domain contains the analytics event log and the derived rollup
// tables. Events are append-only; stat rows are fully derived and replaced
// wholesale on every recompute.
package domain

import "time"

// AnalyticsEvent is one status snapshot of a payment. The unique triple
// (payment_id, status, event_timestamp) is the idempotence key for
// re-delivered queue messages.
type AnalyticsEvent struct {
	ID             int64      `gorm:"primaryKey"`
	PaymentID      int64      `gorm:"not null;index;uniqueIndex:ux_analytics_dedupe,priority:1"`
	UserID         int64      `gorm:"not null;index"`
	Amount         float64    `gorm:"not null"`
	Currency       string     `gorm:"type:varchar(3);not null;index"`
	Status         string     `gorm:"type:varchar(20);not null;index;uniqueIndex:ux_analytics_dedupe,priority:2"`
	PaymentMethod  string     `gorm:"type:varchar(50);not null;index"`
	MerchantID     string     `gorm:"type:varchar(100);index"`
	ErrorCode      string     `gorm:"type:varchar(50)"`
	ErrorMessage   string     `gorm:"type:text"`
	RetryCount     int        `gorm:"not null;default:0"`
	ProcessedAt    *time.Time `gorm:""`
	EventTimestamp time.Time  `gorm:"not null;index;uniqueIndex:ux_analytics_dedupe,priority:3"`
	CreatedAt      time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (AnalyticsEvent) TableName() string { return "payment_analytics" }

// HourlyStat is a derived rollup row, uniquely keyed by bucket and group.
type HourlyStat struct {
	ID          int64     `gorm:"primaryKey"`
	Date        string    `gorm:"type:varchar(10);not null;index;uniqueIndex:ux_hourly_bucket,priority:1"`
	Hour        int       `gorm:"not null;uniqueIndex:ux_hourly_bucket,priority:2"`
	Currency    string    `gorm:"type:varchar(3);not null;uniqueIndex:ux_hourly_bucket,priority:3"`
	Status      string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_hourly_bucket,priority:4"`
	Count       int64     `gorm:"not null;default:0"`
	TotalAmount float64   `gorm:"not null;default:0"`
	AvgAmount   float64   `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (HourlyStat) TableName() string { return "payment_hourly_stats" }

// DailyStat additionally tracks min/max amounts.
type DailyStat struct {
	ID          int64     `gorm:"primaryKey"`
	Date        string    `gorm:"type:varchar(10);not null;index;uniqueIndex:ux_daily_bucket,priority:1"`
	Currency    string    `gorm:"type:varchar(3);not null;uniqueIndex:ux_daily_bucket,priority:2"`
	Status      string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_daily_bucket,priority:3"`
	Count       int64     `gorm:"not null;default:0"`
	TotalAmount float64   `gorm:"not null;default:0"`
	AvgAmount   float64   `gorm:"not null;default:0"`
	MinAmount   float64   `gorm:"not null;default:0"`
	MaxAmount   float64   `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (DailyStat) TableName() string { return "payment_daily_stats" }

// DateLayout is the bucket key format for stat rows.
const DateLayout = "2006-01-02"
