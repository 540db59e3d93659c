// Package gateway simulates the external payment gateway: a latency draw from
// the configured profile followed by a fixed-probability success draw.
package gateway

import (
	"context"
	"time"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/random"
	"go.uber.org/zap"
)

// Gateway authorizes a charge. The simulation blocks the caller for the
// profile latency, which is why payment creation is deliberately synchronous.
type Gateway interface {
	Charge(ctx context.Context, amount float64, currency string) (bool, error)
}

type Simulator struct {
	profile config.GatewayProfile
	rng     random.Rand
}

func NewSimulator(cfg config.Config, rng random.Rand, log *zap.Logger) *Simulator {
	log.Named("gateway").Info("payment gateway profile",
		zap.String("mode", cfg.Gateway.Mode()),
		zap.Duration("min_latency", cfg.Gateway.MinLatency),
		zap.Duration("max_latency", cfg.Gateway.MaxLatency),
		zap.Int("success_rate", cfg.Gateway.SuccessRate),
	)
	return &Simulator{profile: cfg.Gateway, rng: rng}
}

var _ Gateway = (*Simulator)(nil)

func (s *Simulator) Charge(ctx context.Context, amount float64, currency string) (bool, error) {
	latency := s.profile.MinLatency
	if spread := s.profile.MaxLatency - s.profile.MinLatency; spread > 0 {
		latency += time.Duration(s.rng.Intn(int(spread)))
	}

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	return s.rng.Intn(100) < s.profile.SuccessRate, nil
}
