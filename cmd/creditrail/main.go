package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/catalog"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	"github.com/creditrail/creditrail/internal/consumption"
	"github.com/creditrail/creditrail/internal/grant"
	"github.com/creditrail/creditrail/internal/ledger"
	"github.com/creditrail/creditrail/internal/logger"
	"github.com/creditrail/creditrail/internal/migration"
	obsmetrics "github.com/creditrail/creditrail/internal/observability/metrics"
	"github.com/creditrail/creditrail/internal/ratelimit"
	"github.com/creditrail/creditrail/internal/seed"
	"github.com/creditrail/creditrail/internal/server"
	"github.com/creditrail/creditrail/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		obsmetrics.Module,
		migration.Module,

		// Functional domains
		catalog.Module,
		ledger.Module,
		ratelimit.Module,
		consumption.Module,
		grant.Module,
		seed.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
