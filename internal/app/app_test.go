package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/mock/gomock"

	"logview/internal/app/cli"
	"logview/internal/config/logger"
)

// mockLifecycle implements fx.Lifecycle for testing
type mockLifecycle struct {
	onAppend func(fx.Hook)
}

func (m *mockLifecycle) Append(hook fx.Hook) {
	if m.onAppend != nil {
		m.onAppend(hook)
	}
}

func Test_NewApp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCLI := cli.NewMockCLI(ctrl)
	mockLogger := logger.NewMockLogger(ctrl)

	application := NewApp(mockCLI, nil, mockLogger)

	assert.NotNil(t, application)
	assert.Equal(t, mockCLI, application.cli)
	assert.Equal(t, mockLogger, application.log)
	assert.NotNil(t, application.done)
}

func Test_execute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCLI := cli.NewMockCLI(ctrl)
	mockLogger := logger.NewMockLogger(ctrl)
	noopLogger := zerolog.New(io.Discard)

	app := NewApp(mockCLI, nil, mockLogger)

	tests := []struct {
		name     string
		before   func()
		expected int
	}{
		{
			name: "Success",
			before: func() {
				mockCLI.EXPECT().Execute().Return(0, nil)
			},
			expected: 0,
		},
		{
			name: "Failure",
			before: func() {
				mockCLI.EXPECT().Execute().Return(1, errors.New("stream failed"))
				mockLogger.EXPECT().Debug().Return(noopLogger.Debug())
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.before()

			assert.Equal(t, tt.expected, app.execute())
		})
	}
}

func Test_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	app := NewApp(cli.NewMockCLI(ctrl), nil, logger.NewMockLogger(ctrl))

	var registered bool
	var capturedHook fx.Hook

	testLifecycle := &mockLifecycle{
		onAppend: func(hook fx.Hook) {
			registered = true
			capturedHook = hook
		},
	}

	Register(testLifecycle, app)

	assert.True(t, registered)
	assert.NotNil(t, capturedHook.OnStart)
	assert.NotNil(t, capturedHook.OnStop)
}

func Test_Register_OnStopHook(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	app := NewApp(cli.NewMockCLI(ctrl), nil, logger.NewMockLogger(ctrl))

	var capturedHook fx.Hook

	Register(&mockLifecycle{onAppend: func(hook fx.Hook) { capturedHook = hook }}, app)

	t.Run("Returns once the command is done", func(t *testing.T) {
		close(app.done)

		assert.NoError(t, capturedHook.OnStop(context.Background()))
	})

	t.Run("Gives up when the stop deadline passes", func(t *testing.T) {
		pending := NewApp(cli.NewMockCLI(ctrl), nil, logger.NewMockLogger(ctrl))

		var hook fx.Hook

		Register(&mockLifecycle{onAppend: func(h fx.Hook) { hook = h }}, pending)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, hook.OnStop(ctx), context.DeadlineExceeded)
	})
}
