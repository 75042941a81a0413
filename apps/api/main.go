// The API-only deployment: serves the HTTP surface and runs startup
// migrations, leaving the sweep to apps/sweeper.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/migration"
	"github.com/hilive/hilive/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		server.Module,
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
