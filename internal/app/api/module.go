package api

import (
	"go.uber.org/fx"

	"logview/internal/config"
	"logview/internal/config/logger"
)

// Module provides the platform client for dependency injection
var Module = fx.Module("api",
	fx.Provide(func(cfg *config.Config, log logger.Logger) *Client {
		return NewClient(cfg, log.WithComponent("API"))
	}),
)
