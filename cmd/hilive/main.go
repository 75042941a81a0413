// The hilive monolith: API server, sweep scheduler, and startup migrations
// in one process. Deployments that split the sweep out run apps/api and
// apps/sweeper instead.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/migration"
	"github.com/hilive/hilive/internal/scheduler"
	"github.com/hilive/hilive/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		server.Module,
		scheduler.Module,
		migration.Module,
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
