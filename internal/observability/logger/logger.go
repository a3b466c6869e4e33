// Package logger provides the service-wide zap logger. Components derive
// their own named loggers via log.Named("area.component").
package logger

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
)

var Module = fx.Module("logger",
	fx.Provide(New),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
)

func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}
