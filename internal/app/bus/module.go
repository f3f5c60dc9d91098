package bus

import (
	"go.uber.org/fx"

	"logview/internal/config"
	"logview/internal/config/logger"
)

// Module provides bus for dependency injection
var Module = fx.Module("bus",
	fx.Provide(func(cfg *config.Config, log logger.Logger) Bus {
		return New(cfg, log.WithComponent("BUS"))
	}),
	fx.Invoke(func(lc fx.Lifecycle, b Bus) {
		lc.Append(fx.StopHook(b.Close))
	}),
)
