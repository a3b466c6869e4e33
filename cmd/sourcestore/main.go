package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/vijay-eis/mod-source-record-storage/internal/clock"
	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/database"
	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/handler"
	"github.com/vijay-eis/mod-source-record-storage/internal/migration"
	"github.com/vijay-eis/mod-source-record-storage/internal/observability/logger"
	"github.com/vijay-eis/mod-source-record-storage/internal/pipeline"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
	"github.com/vijay-eis/mod-source-record-storage/internal/record"
	"github.com/vijay-eis/mod-source-record-storage/internal/snapshot"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		database.Module,
		clock.Module,
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),

		snapshot.Module,
		record.Module,
		profile.Module,
		events.Module,
		handler.Module,
		pipeline.Module,
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
