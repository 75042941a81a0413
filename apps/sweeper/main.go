// The sweeper deployment: runs the ghost reaper, entitlement sweep, and VIP
// bonus jobs without serving HTTP. Safe to run alongside apps/api; every job
// is idempotent and guarded by conditional writes.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/audit"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	"github.com/hilive/hilive/internal/entitlement"
	"github.com/hilive/hilive/internal/events"
	"github.com/hilive/hilive/internal/liveroom"
	"github.com/hilive/hilive/internal/logger"
	"github.com/hilive/hilive/internal/redisconn"
	"github.com/hilive/hilive/internal/scheduler"
	"github.com/hilive/hilive/internal/wallet"
	"github.com/hilive/hilive/pkg/db"
	"github.com/hilive/hilive/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		config.Module,
		logger.Module,
		clock.Module,
		telemetry.Module,
		db.Module,
		redisconn.Module,
		audit.Module,
		events.Module,
		wallet.Module,
		entitlement.Module,
		liveroom.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
