package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/gateway"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/smallbiznis/payflow/internal/random"
	"github.com/smallbiznis/payflow/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FraudChecker gates the state machine before any gateway call.
type FraudChecker interface {
	IsSuspicious(ctx context.Context, payment *paymentdomain.Payment) bool
}

// Emitter is the slice of the producer the state machine publishes through.
// Every emission is fire-and-forget; failures never reach the caller.
type Emitter interface {
	SendPaymentEvent(ctx context.Context, event queuedomain.PaymentEventPayload) bool
	SendStatusEvent(ctx context.Context, topic string, event queuedomain.PaymentEventPayload) bool
	SendNotification(ctx context.Context, n queuedomain.NotificationPayload) bool
	SendEmail(ctx context.Context, req queuedomain.EmailRequestPayload) bool
	SendPush(ctx context.Context, req queuedomain.PushRequestPayload) bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     paymentdomain.Repository
	Fraud    FraudChecker
	Gateway  gateway.Gateway
	Emitter  Emitter
	Clock    clock.Clock
	Rand     random.Rand
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    paymentdomain.Repository
	fraud   FraudChecker
	gateway gateway.Gateway
	emitter Emitter
	clock   clock.Clock
	rng     random.Rand
	metrics *telemetry.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		fraud:   p.Fraud,
		gateway: p.Gateway,
		emitter: p.Emitter,
		clock:   p.Clock,
		rng:     p.Rand,
		metrics: p.Metrics,
	}
}

var _ paymentdomain.Service = (*Service)(nil)

// Create persists a PENDING payment and runs the state machine in the same
// call, so the caller receives a final-for-now status. Outcome and
// notification events are queued fire-and-forget afterward.
func (s *Service) Create(ctx context.Context, req paymentdomain.CreatePaymentRequest) (*paymentdomain.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:            s.genID.Generate().Int64(),
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		MerchantID:    req.MerchantID,
		Status:        paymentdomain.StatusPending,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}

	if _, err := s.Process(ctx, payment); err != nil {
		s.log.Error("payment processing error", zap.Int64("payment_id", payment.ID), zap.Error(err))
	}

	s.emitOutcome(ctx, payment)

	s.log.Info("payment processed",
		zap.Int64("payment_id", payment.ID),
		zap.String("status", string(payment.Status)),
	)
	return payment, nil
}

// Process runs one pass of the state machine. The bool mirrors the gateway
// outcome; store errors are returned, business failures are not.
func (s *Service) Process(ctx context.Context, payment *paymentdomain.Payment) (bool, error) {
	payment.Status = paymentdomain.StatusProcessing
	payment.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, payment); err != nil {
		return false, err
	}

	if s.fraud.IsSuspicious(ctx, payment) {
		return false, s.handleFraudDetected(ctx, payment)
	}

	ok, err := s.gateway.Charge(ctx, payment.Amount, payment.Currency)
	if err != nil {
		return false, fmt.Errorf("gateway charge: %w", err)
	}
	if ok {
		return true, s.handleSuccess(ctx, payment)
	}
	return false, s.handleFailure(ctx, payment)
}

// Retry re-processes a FAILED payment. Allowed only while CanRetry holds; the
// outcome event is always re-emitted afterward regardless of result.
func (s *Service) Retry(ctx context.Context, id int64) (*paymentdomain.Payment, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.CanRetry() {
		return nil, paymentdomain.ErrRetryNotAllowed
	}

	if _, err := s.Process(ctx, payment); err != nil {
		s.log.Error("payment retry error", zap.Int64("payment_id", payment.ID), zap.Error(err))
	}

	s.emitOutcome(ctx, payment)
	return payment, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*paymentdomain.Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentsRequest) (paymentdomain.ListPaymentsResponse, error) {
	payments, total, err := s.repo.List(ctx, req)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 15
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return paymentdomain.ListPaymentsResponse{
		Payments: payments,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	}, nil
}

func (s *Service) Statistics(ctx context.Context) (paymentdomain.Statistics, error) {
	return s.repo.Statistics(ctx)
}

func (s *Service) handleSuccess(ctx context.Context, payment *paymentdomain.Payment) error {
	now := s.clock.Now()
	payment.Status = paymentdomain.StatusSuccess
	payment.ErrorCode = ""
	payment.ErrorMessage = ""
	payment.ProcessedAt = &now
	payment.UpdatedAt = now
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}
	s.metrics.RecordPaymentOutcome(string(payment.Status))

	s.emitter.SendEmail(ctx, queuedomain.EmailRequestPayload{
		Type:      "PAYMENT_SUCCESS",
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Email:     userEmail(payment.UserID),
		Subject:   "Payment Successful",
		Template:  "payment-success",
		Data: map[string]any{
			"amount":         payment.Amount,
			"currency":       payment.Currency,
			"payment_method": payment.PaymentMethod,
			"transaction_id": payment.ID,
		},
	})
	s.emitter.SendPush(ctx, queuedomain.PushRequestPayload{
		Type:      "PAYMENT_SUCCESS",
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Title:     "Payment Successful",
		Body:      fmt.Sprintf("Your payment of %.2f %s was successful", payment.Amount, payment.Currency),
		Data: map[string]any{
			"payment_id": payment.ID,
			"amount":     payment.Amount,
			"status":     string(paymentdomain.StatusSuccess),
		},
	})

	s.log.Info("payment successful", zap.Int64("payment_id", payment.ID))
	return nil
}

func (s *Service) handleFailure(ctx context.Context, payment *paymentdomain.Payment) error {
	now := s.clock.Now()
	errorCode := paymentdomain.ErrorCodes[s.rng.Intn(len(paymentdomain.ErrorCodes))]

	payment.Status = paymentdomain.StatusFailed
	payment.ErrorCode = errorCode
	payment.ErrorMessage = "Payment failed: " + errorCode
	payment.ProcessedAt = &now
	payment.UpdatedAt = now
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}
	s.metrics.RecordPaymentOutcome(string(payment.Status))

	s.emitter.SendEmail(ctx, queuedomain.EmailRequestPayload{
		Type:      "PAYMENT_FAILED",
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Email:     userEmail(payment.UserID),
		Subject:   "Payment Failed",
		Template:  "payment-failed",
		Data: map[string]any{
			"amount":        payment.Amount,
			"currency":      payment.Currency,
			"error_code":    errorCode,
			"error_message": payment.ErrorMessage,
			"can_retry":     payment.CanRetry(),
		},
	})
	s.emitter.SendPush(ctx, queuedomain.PushRequestPayload{
		Type:      "PAYMENT_FAILED",
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Title:     "Payment Failed",
		Body:      fmt.Sprintf("Your payment of %.2f %s failed: %s", payment.Amount, payment.Currency, errorCode),
		Data: map[string]any{
			"payment_id": payment.ID,
			"amount":     payment.Amount,
			"status":     string(paymentdomain.StatusFailed),
			"error_code": errorCode,
		},
	})

	// The retry budget is spent on the transition into FAILED, while a retry
	// is still allowed.
	if payment.CanRetry() {
		payment.RetryCount++
		payment.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, payment); err != nil {
			return err
		}
		s.log.Warn("payment failed, can retry",
			zap.Int64("payment_id", payment.ID),
			zap.Int("retry_count", payment.RetryCount),
			zap.String("error_code", errorCode),
		)
	} else {
		s.log.Error("payment permanently failed",
			zap.Int64("payment_id", payment.ID),
			zap.String("error_code", errorCode),
		)
	}
	return nil
}

func (s *Service) handleFraudDetected(ctx context.Context, payment *paymentdomain.Payment) error {
	now := s.clock.Now()
	payment.Status = paymentdomain.StatusFraudDetected
	payment.ErrorCode = paymentdomain.ErrorCodeFraud
	payment.ErrorMessage = "Transaction flagged for fraud review"
	payment.ProcessedAt = &now
	payment.UpdatedAt = now
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}
	s.metrics.RecordPaymentOutcome(string(payment.Status))

	s.log.Warn("fraud detected", zap.Int64("payment_id", payment.ID))
	return nil
}

// emitOutcome publishes the status snapshot on payment-events, mirrors it on
// the per-status topic, and queues the per-status notifications. The mirror
// carries the identical payload, so the analytics dedupe triple collapses the
// two copies into one row. No error here may cross back over the payment
// caller's request boundary.
func (s *Service) emitOutcome(ctx context.Context, payment *paymentdomain.Payment) {
	event := queuedomain.PaymentEventPayload{
		ID:            payment.ID,
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		PaymentMethod: payment.PaymentMethod,
		MerchantID:    payment.MerchantID,
		Status:        string(payment.Status),
		ErrorCode:     payment.ErrorCode,
		ErrorMessage:  payment.ErrorMessage,
		RetryCount:    payment.RetryCount,
		ProcessedAt:   payment.ProcessedAt,
		Timestamp:     s.clock.Now(),
	}
	s.emitter.SendPaymentEvent(ctx, event)
	if topic := statusTopic(payment.Status); topic != "" {
		s.emitter.SendStatusEvent(ctx, topic, event)
	}

	switch payment.Status {
	case paymentdomain.StatusSuccess:
		s.emitter.SendNotification(ctx, queuedomain.NotificationPayload{
			Type:      "PAYMENT_SUCCESS",
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Message:   fmt.Sprintf("Payment of %.2f %s was successful", payment.Amount, payment.Currency),
		})
	case paymentdomain.StatusFailed:
		if payment.CanRetry() {
			s.emitter.SendNotification(ctx, queuedomain.NotificationPayload{
				Type:      "PAYMENT_RETRY",
				UserID:    payment.UserID,
				PaymentID: payment.ID,
				Message:   "Payment failed, retry available",
			})
		}
	case paymentdomain.StatusFraudDetected:
		s.emitter.SendNotification(ctx, queuedomain.NotificationPayload{
			Type:      "FRAUD_ALERT",
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Message:   "Fraud detected on payment",
		})
	}
}

func statusTopic(status paymentdomain.Status) string {
	switch status {
	case paymentdomain.StatusSuccess:
		return queuedomain.TopicPaymentSuccess
	case paymentdomain.StatusFailed:
		return queuedomain.TopicPaymentFailed
	case paymentdomain.StatusFraudDetected:
		return queuedomain.TopicFraudDetection
	default:
		return ""
	}
}

// User identity is consumed by numeric id only; the address is synthesized
// the same way the notification collaborators expect it.
func userEmail(userID int64) string {
	return fmt.Sprintf("user%d@example.com", userID)
}
