package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxevent"

	"logview/internal/config"
	"logview/internal/config/logger"
)

func Test_LoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig()

	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, config.DefaultAPIBaseURL, cfg.API.BaseURL)
}

func Test_CreateApp(t *testing.T) {
	tests := []struct {
		name  string
		level string
		dsn   string
	}{
		{name: "Creates app with info level logging", level: logger.InfoLevel},
		{name: "Creates app with debug level logging", level: logger.DebugLevel},
		{name: "Creates app with error reporting", level: logger.WarnLevel, dsn: "https://public@example.com/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = tt.level
			cfg.Sentry.DSN = tt.dsn

			app := createApp(cfg)

			assert.NotNil(t, app)
			assert.NoError(t, app.Err())
		})
	}
}

func Test_CreateFxLogger(t *testing.T) {
	tests := []struct {
		name           string
		level          string
		expectedType   interface{}
		expectedLogger interface{}
	}{
		{name: "Debug level returns console logger", level: logger.DebugLevel, expectedType: &fxevent.ConsoleLogger{}},
		{name: "Info level returns nop logger", level: logger.InfoLevel, expectedLogger: fxevent.NopLogger},
		{name: "Warn level returns nop logger", level: logger.WarnLevel, expectedLogger: fxevent.NopLogger},
		{name: "Error level returns nop logger", level: logger.ErrorLevel, expectedLogger: fxevent.NopLogger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = tt.level

			loggerFunc := createFxLogger(cfg)
			assert.NotNil(t, loggerFunc)

			result := loggerFunc()
			assert.NotNil(t, result)

			if tt.expectedType != nil {
				assert.IsType(t, tt.expectedType, result)
			}

			if tt.expectedLogger != nil {
				assert.Equal(t, tt.expectedLogger, result)
			}
		})
	}
}
