package main

import (
	"github.com/billinglab/subledger/internal/cart"
	"github.com/billinglab/subledger/internal/charge"
	"github.com/billinglab/subledger/internal/checkout"
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/coupon"
	"github.com/billinglab/subledger/internal/events"
	"github.com/billinglab/subledger/internal/ledger"
	"github.com/billinglab/subledger/internal/logger"
	"github.com/billinglab/subledger/internal/migration"
	"github.com/billinglab/subledger/internal/observability/metrics"
	"github.com/billinglab/subledger/internal/organization"
	"github.com/billinglab/subledger/internal/plan"
	"github.com/billinglab/subledger/internal/platform"
	"github.com/billinglab/subledger/internal/processor"
	"github.com/billinglab/subledger/internal/server"
	"github.com/billinglab/subledger/internal/subscription"
	"github.com/billinglab/subledger/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure.
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		events.Module,
		migration.Module,

		// Billing engines.
		ledger.Module,
		organization.Module,
		plan.Module,
		subscription.Module,
		processor.Module,
		platform.Module,
		coupon.Module,
		cart.Module,
		charge.Module,
		checkout.Module,

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
