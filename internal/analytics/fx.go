package analytics

import (
	analyticsdomain "github.com/smallbiznis/payflow/internal/analytics/domain"
	"github.com/smallbiznis/payflow/internal/analytics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics",
	fx.Provide(
		fx.Annotate(service.NewService, fx.As(new(analyticsdomain.Service))),
	),
)
