// Package database provides the shared gorm connection.
package database

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
)

type Param struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewDB(p Param) (*gorm.DB, error) {
	level := gormlogger.Warn
	if !p.Config.IsProduction() {
		level = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(p.Config.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	p.Log.Named("database").Info("connected")
	return db, nil
}

var Module = fx.Module("database",
	fx.Provide(NewDB),
	fx.Invoke(func(lc fx.Lifecycle, db *gorm.DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
	}),
)
