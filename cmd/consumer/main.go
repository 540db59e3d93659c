// The consumer binary drains queue topics in a poll loop. Several instances
// with the same group compete for messages via the claim step; partition
// flags split a topic's id space between instances.
package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/analytics"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/consumer"
	"github.com/smallbiznis/payflow/internal/fraud"
	"github.com/smallbiznis/payflow/internal/migration"
	"github.com/smallbiznis/payflow/internal/notify"
	"github.com/smallbiznis/payflow/internal/payment"
	"github.com/smallbiznis/payflow/internal/queue"
	"github.com/smallbiznis/payflow/internal/random"
	"github.com/smallbiznis/payflow/pkg/db"
	"github.com/smallbiznis/payflow/pkg/log"
	"github.com/smallbiznis/payflow/pkg/telemetry"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func main() {
	var (
		group             = pflag.String("group", "default", "consumer group name")
		topics            = pflag.StringArray("topic", nil, "topic to consume, repeatable; all topics when omitted")
		batch             = pflag.Int("batch", 100, "fetch batch size")
		partitions        = pflag.IntSlice("partition", nil, "partition to consume, repeatable")
		noPartitionFilter = pflag.Bool("no-partition-filter", false, "ignore partition flags and consume every partition")
	)
	pflag.Parse()

	opts := consumer.Options{
		Group:      *group,
		Topics:     *topics,
		Partitions: *partitions,
		BatchSize:  *batch,
	}
	if *noPartitionFilter {
		opts.Partitions = nil
	}

	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		random.Module,
		telemetry.Module,
		migration.Module,

		// Functional domains
		queue.Module,
		fraud.Module,
		payment.Module,
		analytics.Module,
		notify.Module,

		fx.Supply(opts),
		consumer.Module,
		fx.Invoke(runConsumer),
	)
	app.Run()
}

func runConsumer(lc fx.Lifecycle, r *consumer.Runner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = r.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
