package app

import (
	"go.uber.org/fx"

	"logview/internal/app/api"
	"logview/internal/app/bus"
	"logview/internal/app/cli"
	"logview/internal/app/logs"
	"logview/internal/app/telemetry"
)

var Module = fx.Options(
	api.Module,
	bus.Module,
	telemetry.Module,
	logs.Module,
	cli.Module,
	fx.Provide(NewApp),
	fx.Invoke(Register),
)
