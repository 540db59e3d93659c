package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/analytics"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/fraud"
	"github.com/smallbiznis/payflow/internal/migration"
	"github.com/smallbiznis/payflow/internal/payment"
	"github.com/smallbiznis/payflow/internal/queue"
	"github.com/smallbiznis/payflow/internal/random"
	"github.com/smallbiznis/payflow/internal/server"
	"github.com/smallbiznis/payflow/pkg/db"
	"github.com/smallbiznis/payflow/pkg/log"
	"github.com/smallbiznis/payflow/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
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
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
