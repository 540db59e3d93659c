package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	analyticsdomain "github.com/smallbiznis/payflow/internal/analytics/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func setupAnalytics(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// One connection, so every query sees the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&analyticsdomain.AnalyticsEvent{},
		&analyticsdomain.HourlyStat{},
		&analyticsdomain.DailyStat{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	return &fixture{svc: svc, db: db, clock: clk}
}

func event(paymentID int64, status string, amount float64, at time.Time) queuedomain.PaymentEventPayload {
	return queuedomain.PaymentEventPayload{
		ID:            paymentID,
		UserID:        paymentID,
		Amount:        amount,
		Currency:      "VND",
		PaymentMethod: "CARD",
		MerchantID:    "merchant-1",
		Status:        status,
		Timestamp:     at,
	}
}

func (f *fixture) hourlyStats(t *testing.T) []analyticsdomain.HourlyStat {
	t.Helper()
	var stats []analyticsdomain.HourlyStat
	require.NoError(t, f.db.Order("status").Find(&stats).Error)
	return stats
}

func TestIngestDeduplicates(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 5000, at)))

	before := f.hourlyStats(t)
	require.Len(t, before, 1)
	assert.Equal(t, int64(1), before[0].Count)

	// Redelivery of the exact same (payment_id, status, event_timestamp)
	// changes nothing.
	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 5000, at)))

	var rows int64
	require.NoError(t, f.db.Model(&analyticsdomain.AnalyticsEvent{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	after := f.hourlyStats(t)
	assert.Equal(t, before, after)
}

func TestLatestStatusWinsInBuckets(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "FAILED", 5000, at)))
	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 5000, at.Add(time.Minute))))

	// The payment counts once, under its latest status.
	stats := f.hourlyStats(t)
	require.Len(t, stats, 1)
	assert.Equal(t, "SUCCESS", stats[0].Status)
	assert.Equal(t, int64(1), stats[0].Count)
	assert.Equal(t, float64(5000), stats[0].TotalAmount)

	var daily []analyticsdomain.DailyStat
	require.NoError(t, f.db.Find(&daily).Error)
	require.Len(t, daily, 1)
	assert.Equal(t, "SUCCESS", daily[0].Status)
	assert.Equal(t, int64(1), daily[0].Count)
}

func TestBucketAggregates(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 100, at)))
	require.NoError(t, f.svc.Ingest(ctx, event(2, "SUCCESS", 200, at.Add(time.Minute))))
	require.NoError(t, f.svc.Ingest(ctx, event(3, "SUCCESS", 300, at.Add(2*time.Minute))))
	require.NoError(t, f.svc.Ingest(ctx, event(4, "FAILED", 400, at.Add(3*time.Minute))))

	stats := f.hourlyStats(t)
	require.Len(t, stats, 2)

	failed, success := stats[0], stats[1]
	assert.Equal(t, "FAILED", failed.Status)
	assert.Equal(t, int64(1), failed.Count)
	assert.Equal(t, "SUCCESS", success.Status)
	assert.Equal(t, int64(3), success.Count)
	assert.Equal(t, float64(600), success.TotalAmount)
	assert.InDelta(t, 200, success.AvgAmount, 0.01)

	// Bucket counts sum to the number of distinct payments.
	assert.Equal(t, int64(4), failed.Count+success.Count)

	var daily []analyticsdomain.DailyStat
	require.NoError(t, f.db.Where("status = ?", "SUCCESS").Find(&daily).Error)
	require.Len(t, daily, 1)
	assert.Equal(t, float64(100), daily[0].MinAmount)
	assert.Equal(t, float64(300), daily[0].MaxAmount)
}

func TestEventsAcrossHoursLandInSeparateBuckets(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 100, time.Date(2026, 3, 1, 9, 55, 0, 0, time.UTC))))
	require.NoError(t, f.svc.Ingest(ctx, event(2, "SUCCESS", 200, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC))))

	var hourly []analyticsdomain.HourlyStat
	require.NoError(t, f.db.Order("hour").Find(&hourly).Error)
	require.Len(t, hourly, 2)
	assert.Equal(t, 9, hourly[0].Hour)
	assert.Equal(t, 10, hourly[1].Hour)

	// Same day, so one daily bucket covering both.
	var daily []analyticsdomain.DailyStat
	require.NoError(t, f.db.Find(&daily).Error)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(2), daily[0].Count)
	assert.Equal(t, float64(300), daily[0].TotalAmount)
}

func TestDashboard(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 100, at)))
	require.NoError(t, f.svc.Ingest(ctx, event(2, "FAILED", 200, at.Add(time.Minute))))
	require.NoError(t, f.svc.Ingest(ctx, event(3, "FRAUD_DETECTED", 300, at.Add(2*time.Minute))))

	stats, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Today.TotalPayments)
	assert.Equal(t, float64(100), stats.Today.TotalRevenue)
	assert.InDelta(t, 33.33, stats.Today.SuccessRate, 0.01)
	assert.InDelta(t, 33.33, stats.Today.FraudRate, 0.01)

	require.Len(t, stats.ByStatus, 3)
	require.Len(t, stats.ByMethod, 1)
	assert.Equal(t, int64(3), stats.ByMethod[0].Count)

	require.Len(t, stats.RecentFailures, 2)
	// Newest failure first.
	assert.Equal(t, int64(3), stats.RecentFailures[0].PaymentID)
	assert.Equal(t, int64(2), stats.RecentFailures[1].PaymentID)
}

func TestDashboardCountsLatestStatusOnly(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "FAILED", 100, at)))
	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 100, at.Add(time.Minute))))

	stats, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Today.TotalPayments)
	assert.InDelta(t, 100.0, stats.Today.SuccessRate, 0.01)
	// A payment that later succeeded is not a recent failure.
	assert.Empty(t, stats.RecentFailures)
}

func TestRevenueTrend(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.svc.Ingest(ctx, event(1, "SUCCESS", 100, at)))
	require.NoError(t, f.svc.Ingest(ctx, event(2, "SUCCESS", 250, at.Add(time.Minute))))
	require.NoError(t, f.svc.Ingest(ctx, event(3, "FAILED", 999, at.Add(2*time.Minute))))

	trend, err := f.svc.RevenueTrend(ctx, 7)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Equal(t, "2026-03-01", trend[0].Date)
	assert.Equal(t, "VND", trend[0].Currency)
	// Failed payments contribute no revenue.
	assert.Equal(t, float64(350), trend[0].Revenue)
}

func TestTopMerchants(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	at := f.clock.Now()

	big := event(1, "SUCCESS", 900, at)
	big.MerchantID = "merchant-big"
	require.NoError(t, f.svc.Ingest(ctx, big))

	small := event(2, "SUCCESS", 100, at.Add(time.Minute))
	small.MerchantID = "merchant-small"
	require.NoError(t, f.svc.Ingest(ctx, small))

	merchants, err := f.svc.TopMerchants(ctx, 10)
	require.NoError(t, err)
	require.Len(t, merchants, 2)
	assert.Equal(t, "merchant-big", merchants[0].MerchantID)
	assert.Equal(t, float64(900), merchants[0].TotalRevenue)
	assert.Equal(t, int64(1), merchants[0].TransactionCount)

	merchants, err = f.svc.TopMerchants(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, merchants, 1)
}

func TestFraudPatterns(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()

	amounts := []float64{40000, 60000, 200000, 600000}
	for i, amount := range amounts {
		at := time.Date(2026, 3, 1, 9+i, 0, 0, 0, time.UTC)
		require.NoError(t, f.svc.Ingest(ctx, event(int64(i+1), "FRAUD_DETECTED", amount, at)))
	}
	// Non-fraud events are excluded.
	require.NoError(t, f.svc.Ingest(ctx, event(99, "SUCCESS", 700000, f.clock.Now())))

	patterns, err := f.svc.FraudPatterns(ctx)
	require.NoError(t, err)

	require.Len(t, patterns.ByAmountRange, 4)
	assert.Equal(t, "< 50K", patterns.ByAmountRange[0].AmountRange)
	assert.Equal(t, "50K-100K", patterns.ByAmountRange[1].AmountRange)
	assert.Equal(t, "100K-500K", patterns.ByAmountRange[2].AmountRange)
	assert.Equal(t, "> 500K", patterns.ByAmountRange[3].AmountRange)
	for _, r := range patterns.ByAmountRange {
		assert.Equal(t, int64(1), r.Count)
	}

	require.Len(t, patterns.ByPaymentMethod, 1)
	assert.Equal(t, int64(4), patterns.ByPaymentMethod[0].Count)

	require.Len(t, patterns.ByHour, 4)
	assert.Equal(t, 9, patterns.ByHour[0].Hour)
}
