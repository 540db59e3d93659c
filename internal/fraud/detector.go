// Package fraud is a stateless rule engine over a user's recent payment
// history. Rules short-circuit: the first hit wins, there is no scoring.
package fraud

import (
	"context"
	"time"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/random"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	largeAmountThreshold = 50000
	largeAmountFlagRate  = 10 // percent; kept probabilistic so large transfers are not all blocked

	failedAttemptsWindow = time.Hour
	failedAttemptsLimit  = 3

	rapidWindow = 5 * time.Minute
	rapidLimit  = 5

	hourlyWindow = time.Hour
	hourlyLimit  = 10

	sameAmountWindow = 10 * time.Minute
	sameAmountLimit  = 3

	velocityWindow    = 10 * time.Minute
	velocityThreshold = 100000
)

type Params struct {
	fx.In

	Repo  paymentdomain.Repository
	Log   *zap.Logger
	Clock clock.Clock
	Rand  random.Rand
	Cfg   config.Config
}

type Detector struct {
	repo    paymentdomain.Repository
	log     *zap.Logger
	clock   clock.Clock
	rng     random.Rand
	enabled bool
}

func NewDetector(p Params) *Detector {
	return &Detector{
		repo:    p.Repo,
		log:     p.Log.Named("fraud"),
		clock:   p.Clock,
		rng:     p.Rand,
		enabled: p.Cfg.Fraud.Enabled,
	}
}

var Module = fx.Module("fraud",
	fx.Provide(NewDetector),
)

// IsSuspicious evaluates the six heuristics against the payment's user
// history. History queries that fail are treated as not suspicious; blocking
// payments on an unreachable store would be worse than missing a flag.
func (d *Detector) IsSuspicious(ctx context.Context, payment *paymentdomain.Payment) bool {
	if !d.enabled {
		return false
	}

	now := d.clock.Now()

	// Rule 1: large transactions are flagged with fixed probability.
	if payment.Amount > largeAmountThreshold && d.rng.Intn(100) < largeAmountFlagRate {
		d.log.Warn("fraud: large transaction",
			zap.Int64("payment_id", payment.ID),
			zap.Float64("amount", payment.Amount),
		)
		return true
	}

	// Rule 2: repeated failures from the same user (credential stuffing).
	failures, err := d.repo.CountFailedForUserSince(ctx, payment.UserID, now.Add(-failedAttemptsWindow))
	if err == nil && failures >= failedAttemptsLimit {
		d.log.Warn("fraud: multiple failed attempts",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Int64("failures", failures),
		)
		return true
	}

	// Rule 3: rapid transactions in a short window.
	recent, err := d.repo.CountForUserSince(ctx, payment.UserID, now.Add(-rapidWindow))
	if err == nil && recent >= rapidLimit {
		d.log.Warn("fraud: rapid transactions",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Int64("count", recent),
		)
		return true
	}

	// Rule 4: too many payments in an hour.
	hourly, err := d.repo.CountForUserSince(ctx, payment.UserID, now.Add(-hourlyWindow))
	if err == nil && hourly >= hourlyLimit {
		d.log.Warn("fraud: high frequency",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Int64("count", hourly),
		)
		return true
	}

	// Rule 5: the same amount repeated in a short window.
	duplicates, err := d.repo.CountSameAmountForUserSince(ctx, payment.UserID, payment.Amount, now.Add(-sameAmountWindow))
	if err == nil && duplicates >= sameAmountLimit {
		d.log.Warn("fraud: duplicate amount",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Float64("amount", payment.Amount),
			zap.Int64("count", duplicates),
		)
		return true
	}

	// Rule 6: total spend velocity.
	total, err := d.repo.SumAmountForUserSince(ctx, payment.UserID, now.Add(-velocityWindow))
	if err == nil && total > velocityThreshold {
		d.log.Warn("fraud: high velocity spending",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("user_id", payment.UserID),
			zap.Float64("total_amount", total),
		)
		return true
	}

	return false
}
