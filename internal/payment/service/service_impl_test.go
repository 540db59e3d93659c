package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payflow/internal/clock"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Stubs --

type fraudStub struct {
	suspicious bool
}

func (f *fraudStub) IsSuspicious(context.Context, *paymentdomain.Payment) bool {
	return f.suspicious
}

type gatewayStub struct {
	approve bool
	calls   int
}

func (g *gatewayStub) Charge(context.Context, float64, string) (bool, error) {
	g.calls++
	return g.approve, nil
}

type emitterStub struct {
	events        []queuedomain.PaymentEventPayload
	mirrorTopics  []string
	notifications []queuedomain.NotificationPayload
	emails        []queuedomain.EmailRequestPayload
	pushes        []queuedomain.PushRequestPayload
}

func (e *emitterStub) SendPaymentEvent(_ context.Context, ev queuedomain.PaymentEventPayload) bool {
	e.events = append(e.events, ev)
	return true
}
func (e *emitterStub) SendStatusEvent(_ context.Context, topic string, _ queuedomain.PaymentEventPayload) bool {
	e.mirrorTopics = append(e.mirrorTopics, topic)
	return true
}
func (e *emitterStub) SendNotification(_ context.Context, n queuedomain.NotificationPayload) bool {
	e.notifications = append(e.notifications, n)
	return true
}
func (e *emitterStub) SendEmail(_ context.Context, req queuedomain.EmailRequestPayload) bool {
	e.emails = append(e.emails, req)
	return true
}
func (e *emitterStub) SendPush(_ context.Context, req queuedomain.PushRequestPayload) bool {
	e.pushes = append(e.pushes, req)
	return true
}

type fixedRand struct{ v int }

func (r fixedRand) Intn(n int) int { return r.v % n }

type fixture struct {
	svc     *Service
	db      *gorm.DB
	gateway *gatewayStub
	fraud   *fraudStub
	emitter *emitterStub
	clock   *clock.FakeClock
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// One connection, so every query sees the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&paymentdomain.Payment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		gateway: &gatewayStub{approve: true},
		fraud:   &fraudStub{},
		emitter: &emitterStub{},
		clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
	f.svc = NewService(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.New(db),
		Fraud:   f.fraud,
		Gateway: f.gateway,
		Emitter: f.emitter,
		Clock:   f.clock,
		Rand:    fixedRand{v: 0},
	})
	return f
}

func validRequest() paymentdomain.CreatePaymentRequest {
	return paymentdomain.CreatePaymentRequest{
		UserID:        7,
		Amount:        60000,
		Currency:      "VND",
		PaymentMethod: "CARD",
		MerchantID:    "merchant-1",
	}
}

func TestCreateValidation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*paymentdomain.CreatePaymentRequest)
		wantErr error
	}{
		{"missing user", func(r *paymentdomain.CreatePaymentRequest) { r.UserID = 0 }, paymentdomain.ErrInvalidUser},
		{"zero amount", func(r *paymentdomain.CreatePaymentRequest) { r.Amount = 0 }, paymentdomain.ErrInvalidAmount},
		{"bad currency", func(r *paymentdomain.CreatePaymentRequest) { r.Currency = "DONG" }, paymentdomain.ErrInvalidCurrency},
		{"bad method", func(r *paymentdomain.CreatePaymentRequest) { r.PaymentMethod = "CHECK" }, paymentdomain.ErrInvalidMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateDefaultsCurrency(t *testing.T) {
	f := setupService(t)

	req := validRequest()
	req.Currency = ""
	payment, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "VND", payment.Currency)
}

func TestCreateSuccessPath(t *testing.T) {
	f := setupService(t)

	payment, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.StatusSuccess, payment.Status)
	assert.NotNil(t, payment.ProcessedAt)
	assert.Empty(t, payment.ErrorCode)
	assert.Equal(t, 0, payment.RetryCount)

	// Exactly one outcome event, in SUCCESS, mirrored on payment-success.
	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, payment.ID, f.emitter.events[0].ID)
	assert.Equal(t, "SUCCESS", f.emitter.events[0].Status)
	assert.Equal(t, []string{queuedomain.TopicPaymentSuccess}, f.emitter.mirrorTopics)

	require.Len(t, f.emitter.emails, 1)
	assert.Equal(t, "PAYMENT_SUCCESS", f.emitter.emails[0].Type)
	assert.Equal(t, "user7@example.com", f.emitter.emails[0].Email)
	require.Len(t, f.emitter.pushes, 1)
	require.Len(t, f.emitter.notifications, 1)
	assert.Equal(t, "PAYMENT_SUCCESS", f.emitter.notifications[0].Type)

	// The stored row matches the returned snapshot.
	var stored paymentdomain.Payment
	require.NoError(t, f.db.First(&stored, "id = ?", payment.ID).Error)
	assert.Equal(t, paymentdomain.StatusSuccess, stored.Status)
}

func TestCreateFailurePath(t *testing.T) {
	f := setupService(t)
	f.gateway.approve = false

	payment, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.StatusFailed, payment.Status)
	assert.Contains(t, paymentdomain.ErrorCodes, payment.ErrorCode)
	assert.NotNil(t, payment.ProcessedAt)
	// The first failure spends one retry.
	assert.Equal(t, 1, payment.RetryCount)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, "FAILED", f.emitter.events[0].Status)
	assert.Equal(t, []string{queuedomain.TopicPaymentFailed}, f.emitter.mirrorTopics)
	require.Len(t, f.emitter.emails, 1)
	assert.Equal(t, "PAYMENT_FAILED", f.emitter.emails[0].Type)
	assert.Equal(t, true, f.emitter.emails[0].Data["can_retry"])
	require.Len(t, f.emitter.notifications, 1)
	assert.Equal(t, "PAYMENT_RETRY", f.emitter.notifications[0].Type)
}

func TestFraudGateBlocksGateway(t *testing.T) {
	f := setupService(t)
	f.fraud.suspicious = true

	payment, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.StatusFraudDetected, payment.Status)
	assert.Equal(t, paymentdomain.ErrorCodeFraud, payment.ErrorCode)
	assert.Zero(t, f.gateway.calls)

	require.Len(t, f.emitter.notifications, 1)
	assert.Equal(t, "FRAUD_ALERT", f.emitter.notifications[0].Type)
	assert.Equal(t, []string{queuedomain.TopicFraudDetection}, f.emitter.mirrorTopics)
	// Fraud outcomes queue no customer email or push.
	assert.Empty(t, f.emitter.emails)
	assert.Empty(t, f.emitter.pushes)
}

func TestRetryCeiling(t *testing.T) {
	f := setupService(t)
	f.gateway.approve = false
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, 1, payment.RetryCount)

	// Each failed retry spends one more attempt; retry_count never decreases
	// and never exceeds the cap.
	prev := payment.RetryCount
	for i := 0; i < 2; i++ {
		payment, err = f.svc.Retry(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.StatusFailed, payment.Status)
		assert.GreaterOrEqual(t, payment.RetryCount, prev)
		assert.LessOrEqual(t, payment.RetryCount, paymentdomain.MaxRetries)
		prev = payment.RetryCount
	}
	assert.Equal(t, paymentdomain.MaxRetries, payment.RetryCount)

	// The budget is spent.
	_, err = f.svc.Retry(ctx, payment.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrRetryNotAllowed)
}

func TestRetryNotAllowed(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusSuccess, payment.Status)

	_, err = f.svc.Retry(ctx, payment.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrRetryNotAllowed)

	_, err = f.svc.Retry(ctx, 404404)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}

func TestRetrySucceedsAfterFailure(t *testing.T) {
	f := setupService(t)
	f.gateway.approve = false
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusFailed, payment.Status)

	f.gateway.approve = true
	payment, err = f.svc.Retry(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusSuccess, payment.Status)
	assert.Empty(t, payment.ErrorCode)

	// One event per processing pass: create, then retry.
	require.Len(t, f.emitter.events, 2)
	assert.Equal(t, "FAILED", f.emitter.events[0].Status)
	assert.Equal(t, "SUCCESS", f.emitter.events[1].Status)
}

func TestCanRetryMatchesRetryAdmission(t *testing.T) {
	f := setupService(t)
	f.gateway.approve = false
	ctx := context.Background()

	payment, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		fresh, err := f.svc.Get(ctx, payment.ID)
		require.NoError(t, err)

		_, retryErr := f.svc.Retry(ctx, payment.ID)
		if fresh.CanRetry() {
			assert.NoError(t, retryErr)
		} else {
			assert.ErrorIs(t, retryErr, paymentdomain.ErrRetryNotAllowed)
		}
	}
}

func TestStatistics(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	f.gateway.approve = false
	_, err = f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, float64(60000), stats.TotalAmount)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.01)
}
