package payment

import (
	"github.com/smallbiznis/payflow/internal/fraud"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/gateway"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	"github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/internal/queue/producer"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		fx.Annotate(repository.New, fx.As(new(paymentdomain.Repository))),
		fx.Annotate(gateway.NewSimulator, fx.As(new(gateway.Gateway))),
		func(d *fraud.Detector) service.FraudChecker { return d },
		func(p *producer.Producer) service.Emitter { return p },
		fx.Annotate(service.NewService, fx.As(new(paymentdomain.Service))),
	),
)
