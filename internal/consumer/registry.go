package consumer

import (
	"context"
	"encoding/json"
	"errors"

	analyticsdomain "github.com/smallbiznis/payflow/internal/analytics/domain"
	"github.com/smallbiznis/payflow/internal/notify"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler processes one claimed message. A nil return (including handled
// poison pills) commits the message; an error leaves it for redelivery.
type Handler func(ctx context.Context, msg queuedomain.Message) error

// Registry maps a topic to its handler.
type Registry map[string]Handler

type RegistryParams struct {
	fx.In

	Log       *zap.Logger
	Payments  paymentdomain.Service
	Analytics analyticsdomain.Service
	Notify    *notify.Service
}

// NewRegistry wires the full topic set. Topics without domain logic
// (notifications, transactions) get log-only handlers so the backlog still
// drains.
func NewRegistry(p RegistryParams) Registry {
	h := &handlers{
		log:       p.Log.Named("consumer.handlers"),
		payments:  p.Payments,
		analytics: p.Analytics,
		notify:    p.Notify,
	}

	ingest := h.ingestEvent
	return Registry{
		queuedomain.TopicPaymentRequests:  h.paymentRequest,
		queuedomain.TopicPaymentRetry:     h.paymentRetry,
		queuedomain.TopicPaymentEvents:    ingest,
		queuedomain.TopicPaymentSuccess:   ingest,
		queuedomain.TopicPaymentFailed:    ingest,
		queuedomain.TopicFraudDetection:   ingest,
		queuedomain.TopicSendEmail:        h.sendEmail,
		queuedomain.TopicSendNotification: h.sendPush,
		queuedomain.TopicNotifications:    h.logNotification,
		queuedomain.TopicTransactions:     h.logTransaction,
	}
}

type handlers struct {
	log       *zap.Logger
	payments  paymentdomain.Service
	analytics analyticsdomain.Service
	notify    *notify.Service
}

// decode unmarshals the payload, reporting poison pills as handled so they
// are consumed rather than redelivered forever.
func (h *handlers) decode(msg queuedomain.Message, out any) bool {
	if err := json.Unmarshal(msg.Value, out); err != nil {
		h.log.Error("poison pill, consuming without processing",
			zap.Int64("message_id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		return false
	}
	return true
}

// paymentRequest runs the state machine for a payment that is still PENDING.
// Any later status means another consumer (or the synchronous create path)
// got there first, and the message is dropped.
func (h *handlers) paymentRequest(ctx context.Context, msg queuedomain.Message) error {
	var req queuedomain.PaymentRequestPayload
	if !h.decode(msg, &req) {
		return nil
	}

	payment, err := h.payments.Get(ctx, req.ID)
	if errors.Is(err, paymentdomain.ErrNotFound) {
		h.log.Warn("payment request for unknown payment", zap.Int64("payment_id", req.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status != paymentdomain.StatusPending {
		h.log.Debug("payment already processed, skipping",
			zap.Int64("payment_id", payment.ID),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}

	_, err = h.payments.Process(ctx, payment)
	return err
}

func (h *handlers) paymentRetry(ctx context.Context, msg queuedomain.Message) error {
	var req queuedomain.PaymentRetryPayload
	if !h.decode(msg, &req) {
		return nil
	}

	_, err := h.payments.Retry(ctx, req.ID)
	if errors.Is(err, paymentdomain.ErrNotFound) || errors.Is(err, paymentdomain.ErrRetryNotAllowed) {
		h.log.Warn("retry dropped",
			zap.Int64("payment_id", req.ID),
			zap.Int("retry_count", req.RetryCount),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (h *handlers) ingestEvent(ctx context.Context, msg queuedomain.Message) error {
	var event queuedomain.PaymentEventPayload
	if !h.decode(msg, &event) {
		return nil
	}
	if event.ID == 0 {
		h.log.Warn("event without payment id, dropping", zap.Int64("message_id", msg.ID))
		return nil
	}
	return h.analytics.Ingest(ctx, event)
}

func (h *handlers) sendEmail(ctx context.Context, msg queuedomain.Message) error {
	var req queuedomain.EmailRequestPayload
	if !h.decode(msg, &req) {
		return nil
	}
	return h.notify.HandleEmail(ctx, req)
}

func (h *handlers) sendPush(ctx context.Context, msg queuedomain.Message) error {
	var req queuedomain.PushRequestPayload
	if !h.decode(msg, &req) {
		return nil
	}
	return h.notify.HandlePush(ctx, req)
}

func (h *handlers) logNotification(_ context.Context, msg queuedomain.Message) error {
	var n queuedomain.NotificationPayload
	if !h.decode(msg, &n) {
		return nil
	}
	h.log.Info("notification",
		zap.String("type", n.Type),
		zap.Int64("user_id", n.UserID),
		zap.Int64("payment_id", n.PaymentID),
		zap.String("message", n.Message),
	)
	return nil
}

func (h *handlers) logTransaction(_ context.Context, msg queuedomain.Message) error {
	var t queuedomain.TransactionPayload
	if !h.decode(msg, &t) {
		return nil
	}
	h.log.Info("transaction recorded",
		zap.String("reference_number", t.ReferenceNumber),
		zap.Int64("payment_id", t.PaymentID),
		zap.Float64("amount", t.Amount),
		zap.String("currency", t.Currency),
	)
	return nil
}
