package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/smallbiznis/payflow/internal/analytics/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/smallbiznis/payflow/pkg/db"
	"github.com/smallbiznis/payflow/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *telemetry.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("analytics"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

var _ analyticsdomain.Service = (*Service)(nil)

// Ingest appends the event unless the exact (payment_id, status,
// event_timestamp) triple was seen before, then recomputes the hourly and
// daily buckets the event timestamp falls into. Duplicate suppression plus
// whole-bucket recompute keeps aggregates correct under out-of-order,
// duplicate-prone delivery.
func (s *Service) Ingest(ctx context.Context, event queuedomain.PaymentEventPayload) error {
	eventTimestamp := event.Timestamp
	if eventTimestamp.IsZero() {
		eventTimestamp = s.clock.Now()
	}
	eventTimestamp = eventTimestamp.UTC()

	var exists int64
	err := s.db.WithContext(ctx).Model(&analyticsdomain.AnalyticsEvent{}).
		Where("payment_id = ? AND status = ? AND event_timestamp = ?", event.ID, event.Status, eventTimestamp).
		Count(&exists).Error
	if err != nil {
		return fmt.Errorf("dedupe check: %w", err)
	}
	if exists > 0 {
		s.metrics.RecordIngest("duplicate")
		return nil
	}

	row := analyticsdomain.AnalyticsEvent{
		ID:             s.genID.Generate().Int64(),
		PaymentID:      event.ID,
		UserID:         event.UserID,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Status:         event.Status,
		PaymentMethod:  event.PaymentMethod,
		MerchantID:     event.MerchantID,
		ErrorCode:      event.ErrorCode,
		ErrorMessage:   event.ErrorMessage,
		RetryCount:     event.RetryCount,
		ProcessedAt:    event.ProcessedAt,
		EventTimestamp: eventTimestamp,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The unique index closes the check-then-insert race between
		// competing consumers.
		if db.IsDuplicateKeyErr(err) {
			s.metrics.RecordIngest("duplicate")
			return nil
		}
		return fmt.Errorf("insert analytics event: %w", err)
	}
	s.metrics.RecordIngest("ingested")

	if err := s.recomputeHourly(ctx, eventTimestamp); err != nil {
		return err
	}
	return s.recomputeDaily(ctx, eventTimestamp)
}

type bucketGroup struct {
	count int64
	total float64
	min   float64
	max   float64
}

type groupKey struct {
	currency string
	status   string
}

type latestRow struct {
	Currency string  `gorm:"column:currency"`
	Status   string  `gorm:"column:status"`
	Amount   float64 `gorm:"column:amount"`
}

// latestPerPayment returns, for every payment with events inside [start, end),
// the row of its latest event (highest id): current status as of now, not a
// count of all events.
func (s *Service) latestPerPayment(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]latestRow, error) {
	var rows []latestRow
	err := tx.WithContext(ctx).Raw(
		`SELECT a.currency, a.status, a.amount
		 FROM payment_analytics a
		 JOIN (
			SELECT payment_id, MAX(id) AS max_id
			FROM payment_analytics
			WHERE event_timestamp >= ? AND event_timestamp < ?
			GROUP BY payment_id
		 ) latest ON a.id = latest.max_id`,
		start, end,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest per payment: %w", err)
	}
	return rows, nil
}

func groupRows(rows []latestRow) map[groupKey]*bucketGroup {
	groups := make(map[groupKey]*bucketGroup)
	for _, row := range rows {
		key := groupKey{currency: row.Currency, status: row.Status}
		group, ok := groups[key]
		if !ok {
			group = &bucketGroup{min: row.Amount, max: row.Amount}
			groups[key] = group
		}
		group.count++
		group.total += row.Amount
		if row.Amount < group.min {
			group.min = row.Amount
		}
		if row.Amount > group.max {
			group.max = row.Amount
		}
	}
	return groups
}

// recomputeHourly rebuilds the whole hourly bucket: delete-then-reinsert, not
// an incremental increment, so the bucket stays consistent regardless of
// arrival order.
func (s *Service) recomputeHourly(ctx context.Context, at time.Time) error {
	start := at.Truncate(time.Hour)
	end := start.Add(time.Hour)
	date := start.Format(analyticsdomain.DateLayout)
	hour := start.Hour()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.latestPerPayment(ctx, tx, start, end)
		if err != nil {
			return err
		}

		if err := tx.Where("date = ? AND hour = ?", date, hour).
			Delete(&analyticsdomain.HourlyStat{}).Error; err != nil {
			return fmt.Errorf("clear hourly stats: %w", err)
		}

		now := s.clock.Now()
		for key, group := range groupRows(rows) {
			stat := analyticsdomain.HourlyStat{
				ID:          s.genID.Generate().Int64(),
				Date:        date,
				Hour:        hour,
				Currency:    key.currency,
				Status:      key.status,
				Count:       group.count,
				TotalAmount: group.total,
				AvgAmount:   group.total / float64(group.count),
				UpdatedAt:   now,
			}
			if err := tx.Create(&stat).Error; err != nil {
				return fmt.Errorf("insert hourly stat: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) recomputeDaily(ctx context.Context, at time.Time) error {
	start := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	date := start.Format(analyticsdomain.DateLayout)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.latestPerPayment(ctx, tx, start, end)
		if err != nil {
			return err
		}

		if err := tx.Where("date = ?", date).
			Delete(&analyticsdomain.DailyStat{}).Error; err != nil {
			return fmt.Errorf("clear daily stats: %w", err)
		}

		now := s.clock.Now()
		for key, group := range groupRows(rows) {
			stat := analyticsdomain.DailyStat{
				ID:          s.genID.Generate().Int64(),
				Date:        date,
				Currency:    key.currency,
				Status:      key.status,
				Count:       group.count,
				TotalAmount: group.total,
				AvgAmount:   group.total / float64(group.count),
				MinAmount:   group.min,
				MaxAmount:   group.max,
				UpdatedAt:   now,
			}
			if err := tx.Create(&stat).Error; err != nil {
				return fmt.Errorf("insert daily stat: %w", err)
			}
		}
		return nil
	})
}

type dashboardRow struct {
	Currency      string  `gorm:"column:currency"`
	Status        string  `gorm:"column:status"`
	PaymentMethod string  `gorm:"column:payment_method"`
	Amount        float64 `gorm:"column:amount"`
}

// Dashboard reads today's live totals from latest-status-per-payment rows.
func (s *Service) Dashboard(ctx context.Context) (analyticsdomain.DashboardStats, error) {
	now := s.clock.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var rows []dashboardRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT a.currency, a.status, a.payment_method, a.amount
		 FROM payment_analytics a
		 JOIN (
			SELECT payment_id, MAX(id) AS max_id
			FROM payment_analytics
			WHERE event_timestamp >= ? AND event_timestamp < ?
			GROUP BY payment_id
		 ) latest ON a.id = latest.max_id`,
		start, end,
	).Scan(&rows).Error
	if err != nil {
		return analyticsdomain.DashboardStats{}, fmt.Errorf("dashboard rows: %w", err)
	}

	stats := analyticsdomain.DashboardStats{}
	byStatus := make(map[string]*analyticsdomain.StatusBreakdown)
	byMethod := make(map[string]*analyticsdomain.MethodBreakdown)
	var successCount, fraudCount int64

	for _, row := range rows {
		stats.Today.TotalPayments++
		switch row.Status {
		case "SUCCESS":
			successCount++
			stats.Today.TotalRevenue += row.Amount
		case "FRAUD_DETECTED":
			fraudCount++
		}

		sb, ok := byStatus[row.Status]
		if !ok {
			sb = &analyticsdomain.StatusBreakdown{Status: row.Status}
			byStatus[row.Status] = sb
		}
		sb.Count++
		sb.Total += row.Amount

		mb, ok := byMethod[row.PaymentMethod]
		if !ok {
			mb = &analyticsdomain.MethodBreakdown{PaymentMethod: row.PaymentMethod}
			byMethod[row.PaymentMethod] = mb
		}
		mb.Count++
		mb.Total += row.Amount
	}

	if stats.Today.TotalPayments > 0 {
		stats.Today.SuccessRate = float64(successCount) / float64(stats.Today.TotalPayments) * 100
		stats.Today.FraudRate = float64(fraudCount) / float64(stats.Today.TotalPayments) * 100
	}

	for _, sb := range byStatus {
		stats.ByStatus = append(stats.ByStatus, *sb)
	}
	sort.Slice(stats.ByStatus, func(i, j int) bool { return stats.ByStatus[i].Status < stats.ByStatus[j].Status })
	for _, mb := range byMethod {
		stats.ByMethod = append(stats.ByMethod, *mb)
	}
	sort.Slice(stats.ByMethod, func(i, j int) bool { return stats.ByMethod[i].PaymentMethod < stats.ByMethod[j].PaymentMethod })

	failures, err := s.recentFailures(ctx, 10)
	if err != nil {
		return analyticsdomain.DashboardStats{}, err
	}
	stats.RecentFailures = failures

	return stats, nil
}

func (s *Service) recentFailures(ctx context.Context, limit int) ([]analyticsdomain.FailureRow, error) {
	var rows []analyticsdomain.AnalyticsEvent
	err := s.db.WithContext(ctx).Raw(
		`SELECT a.*
		 FROM payment_analytics a
		 WHERE a.status IN ('FAILED', 'FRAUD_DETECTED')
		   AND a.id = (SELECT MAX(b.id) FROM payment_analytics b WHERE b.payment_id = a.payment_id)
		 ORDER BY a.event_timestamp DESC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}

	failures := make([]analyticsdomain.FailureRow, 0, len(rows))
	for _, row := range rows {
		failures = append(failures, analyticsdomain.FailureRow{
			PaymentID:     row.PaymentID,
			UserID:        row.UserID,
			Amount:        row.Amount,
			Currency:      row.Currency,
			Status:        row.Status,
			PaymentMethod: row.PaymentMethod,
			ErrorCode:     row.ErrorCode,
			ErrorMessage:  row.ErrorMessage,
			RetryCount:    row.RetryCount,
			FailedAt:      row.EventTimestamp.Format(time.RFC3339),
		})
	}
	return failures, nil
}

// RevenueTrend sums SUCCESS revenue from the daily rollups for the trailing
// window.
func (s *Service) RevenueTrend(ctx context.Context, days int) ([]analyticsdomain.RevenueTrendRow, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days).Format(analyticsdomain.DateLayout)

	var rows []analyticsdomain.RevenueTrendRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT date, currency, SUM(total_amount) AS revenue
		 FROM payment_daily_stats
		 WHERE date >= ? AND status = 'SUCCESS'
		 GROUP BY date, currency
		 ORDER BY date`,
		cutoff,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("revenue trend: %w", err)
	}
	return rows, nil
}

func (s *Service) TopMerchants(ctx context.Context, limit int) ([]analyticsdomain.MerchantRow, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []analyticsdomain.MerchantRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT merchant_id,
		        COUNT(1) AS transaction_count,
		        SUM(amount) AS total_revenue,
		        AVG(amount) AS avg_amount
		 FROM payment_analytics
		 WHERE status = 'SUCCESS' AND merchant_id <> ''
		 GROUP BY merchant_id
		 ORDER BY total_revenue DESC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top merchants: %w", err)
	}
	return rows, nil
}

type fraudEventRow struct {
	Amount         float64   `gorm:"column:amount"`
	PaymentMethod  string    `gorm:"column:payment_method"`
	EventTimestamp time.Time `gorm:"column:event_timestamp"`
}

// FraudPatterns breaks FRAUD_DETECTED events down by amount range, method and
// hour of day. Grouping happens here rather than in SQL so the hour
// extraction stays portable across dialects.
func (s *Service) FraudPatterns(ctx context.Context) (analyticsdomain.FraudPatterns, error) {
	var rows []fraudEventRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT amount, payment_method, event_timestamp
		 FROM payment_analytics
		 WHERE status = 'FRAUD_DETECTED'`,
	).Scan(&rows).Error
	if err != nil {
		return analyticsdomain.FraudPatterns{}, fmt.Errorf("fraud patterns: %w", err)
	}

	rangeCounts := map[string]int64{}
	methodCounts := map[string]int64{}
	hourCounts := map[int]int64{}
	for _, row := range rows {
		rangeCounts[amountRange(row.Amount)]++
		methodCounts[row.PaymentMethod]++
		hourCounts[row.EventTimestamp.UTC().Hour()]++
	}

	patterns := analyticsdomain.FraudPatterns{}
	for _, label := range []string{"< 50K", "50K-100K", "100K-500K", "> 500K"} {
		if count, ok := rangeCounts[label]; ok {
			patterns.ByAmountRange = append(patterns.ByAmountRange, analyticsdomain.RangeCount{AmountRange: label, Count: count})
		}
	}
	for method, count := range methodCounts {
		patterns.ByPaymentMethod = append(patterns.ByPaymentMethod, analyticsdomain.MethodCount{PaymentMethod: method, Count: count})
	}
	sort.Slice(patterns.ByPaymentMethod, func(i, j int) bool {
		return patterns.ByPaymentMethod[i].PaymentMethod < patterns.ByPaymentMethod[j].PaymentMethod
	})
	for hour := 0; hour < 24; hour++ {
		if count, ok := hourCounts[hour]; ok {
			patterns.ByHour = append(patterns.ByHour, analyticsdomain.HourCount{Hour: hour, Count: count})
		}
	}
	return patterns, nil
}

func amountRange(amount float64) string {
	switch {
	case amount < 50000:
		return "< 50K"
	case amount < 100000:
		return "50K-100K"
	case amount < 500000:
		return "100K-500K"
	default:
		return "> 500K"
	}
}
