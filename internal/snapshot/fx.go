package snapshot

import (
	"go.uber.org/fx"

	"github.com/vijay-eis/mod-source-record-storage/internal/snapshot/service"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(service.NewService),
)
