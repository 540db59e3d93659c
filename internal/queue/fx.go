package queue

import (
	"github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/smallbiznis/payflow/internal/queue/producer"
	"github.com/smallbiznis/payflow/internal/queue/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("queue",
	fx.Provide(
		fx.Annotate(repository.New, fx.As(new(domain.Queue))),
		producer.New,
	),
)
