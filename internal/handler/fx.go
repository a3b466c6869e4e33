package handler

import "go.uber.org/fx"

var Module = fx.Module("handler.registry",
	fx.Provide(NewRegistry),
)
