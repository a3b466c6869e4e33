package record

import (
	"go.uber.org/fx"

	"github.com/vijay-eis/mod-source-record-storage/internal/record/service"
)

var Module = fx.Module("record.service",
	fx.Provide(service.NewService),
)
