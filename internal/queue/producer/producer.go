// Package producer appends messages to the queue store. Emission is
// fire-and-forget: append failures are logged and swallowed so they can never
// fail the caller's payment decision. There is no transaction spanning the
// payment row and the queue row, so at-most-once emission is possible.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/queue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Queue domain.Queue
	Log   *zap.Logger
	Clock clock.Clock
}

type Producer struct {
	queue domain.Queue
	log   *zap.Logger
	clock clock.Clock
}

func New(p Params) *Producer {
	return &Producer{
		queue: p.Queue,
		log:   p.Log.Named("queue.producer"),
		clock: p.Clock,
	}
}

// Send marshals the payload and appends it under topic. An empty key is
// derived from the payload shape. Reports whether the append stuck; callers
// on the payment path ignore the result by design.
func (p *Producer) Send(ctx context.Context, topic string, payload any, key string) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal payload", zap.String("topic", topic), zap.Error(err))
		return false
	}

	if key == "" {
		key = p.deriveKey(topic, raw)
	}

	if _, err := p.queue.Append(ctx, topic, key, raw); err != nil {
		p.log.Error("append failed", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// deriveKey picks a partition key by payload shape: payment payloads key by
// payment id, user-scoped payloads by user id, transactions by reference
// number. The timestamp fallback is not ordering-safe.
func (p *Producer) deriveKey(topic string, raw []byte) string {
	var fields struct {
		ID              *int64 `json:"id"`
		UserID          *int64 `json:"user_id"`
		ReferenceNumber string `json:"reference_number"`
	}
	if err := json.Unmarshal(raw, &fields); err == nil {
		if fields.ID != nil && strings.Contains(topic, "payment") {
			return fmt.Sprintf("payment:%d", *fields.ID)
		}
		if fields.UserID != nil {
			return fmt.Sprintf("user:%d", *fields.UserID)
		}
		if fields.ReferenceNumber != "" {
			return fmt.Sprintf("txn:%s", fields.ReferenceNumber)
		}
	}
	return "event:" + strconv.FormatInt(p.clock.Now().Unix(), 10)
}

// SendPaymentRequest queues asynchronous processing for a pending payment.
func (p *Producer) SendPaymentRequest(ctx context.Context, req domain.PaymentRequestPayload) bool {
	return p.Send(ctx, domain.TopicPaymentRequests, req, fmt.Sprintf("payment:%d", req.ID))
}

// SendPaymentEvent publishes the outcome snapshot on payment-events, the
// single source of truth for analytics.
func (p *Producer) SendPaymentEvent(ctx context.Context, event domain.PaymentEventPayload) bool {
	return p.Send(ctx, domain.TopicPaymentEvents, event, fmt.Sprintf("payment:%d", event.ID))
}

// SendStatusEvent mirrors an outcome snapshot on its per-status topic
// (payment-success, payment-failed, fraud-detection).
func (p *Producer) SendStatusEvent(ctx context.Context, topic string, event domain.PaymentEventPayload) bool {
	return p.Send(ctx, topic, event, fmt.Sprintf("payment:%d", event.ID))
}

// SendNotification publishes on the side-channel notifications topic.
func (p *Producer) SendNotification(ctx context.Context, n domain.NotificationPayload) bool {
	key := ""
	if n.UserID != 0 {
		key = fmt.Sprintf("user:%d", n.UserID)
	}
	return p.Send(ctx, domain.TopicNotifications, n, key)
}

// SendEmail queues an email dispatch request keyed by user.
func (p *Producer) SendEmail(ctx context.Context, req domain.EmailRequestPayload) bool {
	return p.Send(ctx, domain.TopicSendEmail, req, fmt.Sprintf("user:%d", req.UserID))
}

// SendPush queues a push notification dispatch request keyed by user.
func (p *Producer) SendPush(ctx context.Context, req domain.PushRequestPayload) bool {
	return p.Send(ctx, domain.TopicSendNotification, req, fmt.Sprintf("user:%d", req.UserID))
}

// SendTransaction publishes on the side-channel transactions topic.
func (p *Producer) SendTransaction(ctx context.Context, t domain.TransactionPayload) bool {
	key := fmt.Sprintf("payment:%d", t.PaymentID)
	if t.ReferenceNumber != "" {
		key = "txn:" + t.ReferenceNumber
	}
	return p.Send(ctx, domain.TopicTransactions, t, key)
}
