// Package notify simulates the outbound email and push channels. Each message
// gets exactly one delivery attempt; failed attempts are requeued with a
// bumped retry_count until the cap, then dropped with a permanent-failure log.
package notify

import (
	"context"
	"time"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/smallbiznis/payflow/internal/queue/producer"
	"github.com/smallbiznis/payflow/internal/random"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxSendAttempts = 3
	retryDelay      = time.Minute
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Producer *producer.Producer
	Clock    clock.Clock
	Rand     random.Rand
}

type Service struct {
	email    config.EmailProfile
	push     config.NotificationProfile
	log      *zap.Logger
	producer *producer.Producer
	clock    clock.Clock
	rng      random.Rand
}

func NewService(p Params) *Service {
	log := p.Log.Named("notify")
	log.Info("delivery profiles",
		zap.String("email_mode", p.Config.Email.Mode()),
		zap.String("push_mode", p.Config.Notification.Mode()),
	)
	return &Service{
		email:    p.Config.Email,
		push:     p.Config.Notification,
		log:      log,
		producer: p.Producer,
		clock:    p.Clock,
		rng:      p.Rand,
	}
}

// HandleEmail delivers one email request. Delivery failure is not a handler
// error: the request is requeued (or dropped at the cap) and the message is
// consumed either way.
func (s *Service) HandleEmail(ctx context.Context, req domain.EmailRequestPayload) error {
	if err := s.simulate(ctx, s.email.MinLatency, s.email.MaxLatency); err != nil {
		return err
	}

	if s.rng.Intn(100) < s.email.SuccessRate {
		s.log.Info("email sent",
			zap.String("type", req.Type),
			zap.Int64("user_id", req.UserID),
			zap.Int64("payment_id", req.PaymentID),
			zap.String("email", req.Email),
		)
		return nil
	}

	if req.RetryCount >= maxSendAttempts {
		s.log.Error("email permanently failed",
			zap.String("type", req.Type),
			zap.Int64("user_id", req.UserID),
			zap.Int64("payment_id", req.PaymentID),
			zap.Int("retry_count", req.RetryCount),
		)
		return nil
	}

	retry := req
	retry.RetryCount++
	at := s.clock.Now().Add(retryDelay)
	retry.RetryScheduledAt = &at
	s.producer.SendEmail(ctx, retry)
	s.log.Warn("email delivery failed, requeued",
		zap.Int64("payment_id", req.PaymentID),
		zap.Int("retry_count", retry.RetryCount),
	)
	return nil
}

// HandlePush delivers one push notification request.
func (s *Service) HandlePush(ctx context.Context, req domain.PushRequestPayload) error {
	if err := s.simulate(ctx, s.push.MinLatency, s.push.MaxLatency); err != nil {
		return err
	}

	if s.rng.Intn(100) < s.push.SuccessRate {
		s.log.Info("push sent",
			zap.String("type", req.Type),
			zap.Int64("user_id", req.UserID),
			zap.Int64("payment_id", req.PaymentID),
			zap.String("title", req.Title),
		)
		return nil
	}

	if req.RetryCount >= maxSendAttempts {
		s.log.Error("push permanently failed",
			zap.String("type", req.Type),
			zap.Int64("user_id", req.UserID),
			zap.Int64("payment_id", req.PaymentID),
			zap.Int("retry_count", req.RetryCount),
		)
		return nil
	}

	retry := req
	retry.RetryCount++
	at := s.clock.Now().Add(retryDelay)
	retry.RetryScheduledAt = &at
	s.producer.SendPush(ctx, retry)
	s.log.Warn("push delivery failed, requeued",
		zap.Int64("payment_id", req.PaymentID),
		zap.Int("retry_count", retry.RetryCount),
	)
	return nil
}

func (s *Service) simulate(ctx context.Context, min, max time.Duration) error {
	latency := min
	if spread := max - min; spread > 0 {
		latency += time.Duration(s.rng.Intn(int(spread)))
	}
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
