package sse_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logview/internal/app/api"
	"logview/internal/app/api/apitest"
	"logview/internal/app/errors"
	"logview/internal/app/sse"
	"logview/internal/config"
	"logview/internal/config/logger"
)

func testOptions() sse.Options {
	return sse.Options{
		Retry: sse.RetryPolicy{
			Enabled:          true,
			BackoffFactor:    1,
			InitRetryTimeout: 10 * time.Millisecond,
			MaxRetryCount:    3,
		},
		ConnectTimeout:     time.Second,
		HeartbeatInterval:  20 * time.Millisecond,
		HeartbeatThreshold: 300 * time.Millisecond,
		EventsBuffer:       64,
	}
}

func newClient(srv *apitest.Server, opts sse.Options) *sse.Client {
	log := logger.NewLoggerWithOutput(config.DefaultConfig(), io.Discard)
	apiClient := api.NewClientWith(srv.URL, http.DefaultClient, nil, log)
	url := apiClient.LogsURL("orga_1", "app_1")

	return sse.New(apiClient, func() string { return url }, opts, log)
}

func collect(t *testing.T, c *sse.Client) []sse.Event {
	t.Helper()

	var out []sse.Event

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}

			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for the stream to close")
			return out
		}
	}
}

func waitFor(t *testing.T, c *sse.Client, match func(sse.Event) bool) {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "stream closed early")

			if match(ev) {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func wait(t *testing.T, c *sse.Client) (json.RawMessage, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return c.Wait(ctx)
}

func Test_Client_EndOfStream(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	var (
		mu     sync.Mutex
		header http.Header
	)

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		header = r.Header.Clone()
		mu.Unlock()

		apitest.StartEventStream(w)
		apitest.WriteEvent(w, "1", config.EventApplicationLog, `{"id":"1"}`)
		apitest.WriteEvent(w, "", config.EventHeartbeat, "")
		apitest.WriteEvent(w, "", config.EventEndOfStream, `{"type":"LIMIT_REACHED"}`)
	})

	c := newClient(srv, testOptions())
	c.Start(context.Background())
	c.Start(context.Background())

	events := collect(t, c)
	require.Len(t, events, 3)
	assert.Equal(t, sse.Opened{}, events[0])
	assert.Equal(t, sse.Message{ID: "1", Name: config.EventApplicationLog, Data: `{"id":"1"}`}, events[1])
	assert.Equal(t, sse.Closed{Reason: json.RawMessage(`{"type":"LIMIT_REACHED"}`)}, events[2])

	reason, err := wait(t, c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LIMIT_REACHED"}`, string(reason))
	assert.Equal(t, sse.StateClosed, c.State())
	assert.Equal(t, 1, srv.Hits("logs"))

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, config.EventStreamContentType, header.Get("Accept"))
	assert.Equal(t, "no-cache", header.Get("Cache-Control"))
	assert.NotEmpty(t, header.Get(api.RequestIDHeader))
	assert.Empty(t, header.Get("Last-Event-ID"))
}

func Test_Client_ReconnectsWithLastEventID(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	var (
		mu       sync.Mutex
		attempts int
		resumeID string
	)

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts

		if n == 2 {
			resumeID = r.Header.Get("Last-Event-ID")
		}
		mu.Unlock()

		apitest.StartEventStream(w)

		if n == 1 {
			apitest.WriteEvent(w, "log-1", config.EventApplicationLog, `{}`)
			apitest.WriteEvent(w, "log-2", config.EventApplicationLog, `{}`)

			return
		}

		apitest.WriteEvent(w, "", config.EventEndOfStream, `{}`)
	})

	c := newClient(srv, testOptions())
	c.Start(context.Background())

	events := collect(t, c)

	var (
		opened  int
		errored []sse.Errored
	)

	for _, ev := range events {
		switch e := ev.(type) {
		case sse.Opened:
			opened++
		case sse.Errored:
			errored = append(errored, e)
		}
	}

	assert.Equal(t, 2, opened)
	require.Len(t, errored, 1)
	assert.ErrorIs(t, errored[0].Err, errors.ErrUnexpectedClose)
	assert.Equal(t, 1, errored[0].Attempt)

	mu.Lock()
	assert.Equal(t, "log-2", resumeID)
	mu.Unlock()

	_, err := wait(t, c)
	assert.NoError(t, err)
}

func Test_Client_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		opts     func(o *sse.Options)
		hits     int
		expected error
		status   int
	}{
		{
			name: "Client error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"message":"forbidden"}`))
			},
			hits:   1,
			status: http.StatusForbidden,
		},
		{
			name: "Server error exhausts retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			},
			hits:     4,
			expected: errors.ErrMaxRetriesExceeded,
			status:   http.StatusServiceUnavailable,
		},
		{
			name: "Invalid content type without retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			opts:     func(o *sse.Options) { o.Retry.Enabled = false },
			hits:     1,
			expected: errors.ErrInvalidContentType,
		},
		{
			name: "Malformed end of stream is escalated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				apitest.StartEventStream(w)
				apitest.WriteEvent(w, "", config.EventEndOfStream, `{broken`)
			},
			hits:     1,
			expected: errors.ErrMalformedEndOfStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := apitest.New()
			defer srv.Close()

			srv.SetLogsHandler(tt.handler)

			opts := testOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}

			c := newClient(srv, opts)
			c.Start(context.Background())

			events := collect(t, c)
			require.NotEmpty(t, events)

			closed, ok := events[len(events)-1].(sse.Closed)
			require.True(t, ok)
			require.Error(t, closed.Err)

			_, err := wait(t, c)
			require.Error(t, err)

			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			}

			if tt.status != 0 {
				assert.Equal(t, tt.status, api.StatusCode(err))
			}

			assert.Equal(t, tt.hits, srv.Hits("logs"))
		})
	}
}

func Test_Client_HeartbeatTimeout(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		apitest.StartEventStream(w)
		<-r.Context().Done()
	})

	opts := testOptions()
	opts.Retry.Enabled = false

	c := newClient(srv, opts)
	c.Start(context.Background())

	_, err := wait(t, c)
	assert.ErrorIs(t, err, errors.ErrHeartbeatTimeout)
}

func Test_Client_HeartbeatKeepsConnectionAlive(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		apitest.StartEventStream(w)

		for i := 0; i < 10; i++ {
			time.Sleep(60 * time.Millisecond)
			apitest.WriteEvent(w, "", config.EventHeartbeat, "")
		}

		apitest.WriteEvent(w, "", config.EventEndOfStream, `{"done":true}`)
	})

	opts := testOptions()
	opts.Retry.Enabled = false

	c := newClient(srv, opts)
	c.Start(context.Background())

	events := collect(t, c)
	for _, ev := range events {
		_, isErr := ev.(sse.Errored)
		assert.False(t, isErr)
	}

	reason, err := wait(t, c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(reason))
}

func Test_Client_ConnectTimeout(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	opts := testOptions()
	opts.Retry.Enabled = false
	opts.ConnectTimeout = 50 * time.Millisecond

	c := newClient(srv, opts)
	c.Start(context.Background())

	_, err := wait(t, c)
	assert.ErrorIs(t, err, errors.ErrConnectTimeout)
}

func Test_Client_PauseResume(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	var (
		mu       sync.Mutex
		attempts int
		resumeID string
	)

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts

		if n == 2 {
			resumeID = r.Header.Get("Last-Event-ID")
		}
		mu.Unlock()

		apitest.StartEventStream(w)

		if n == 1 {
			apitest.WriteEvent(w, "a1", config.EventApplicationLog, `{}`)

			for {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(50 * time.Millisecond):
					apitest.WriteEvent(w, "", config.EventHeartbeat, "")
				}
			}
		}

		apitest.WriteEvent(w, "", config.EventEndOfStream, `{}`)
	})

	c := newClient(srv, testOptions())
	c.Start(context.Background())

	waitFor(t, c, func(ev sse.Event) bool {
		_, ok := ev.(sse.Message)
		return ok
	})

	c.Pause()
	assert.Equal(t, sse.StatePaused, c.State())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, srv.Hits("logs"))
	assert.Equal(t, "a1", c.LastEventID())

	c.Resume()

	events := collect(t, c)
	for _, ev := range events {
		_, isErr := ev.(sse.Errored)
		assert.False(t, isErr)
	}

	_, err := wait(t, c)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, "a1", resumeID)
	mu.Unlock()
}

func Test_Client_Close(t *testing.T) {
	t.Run("Close while open resolves with the reason", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()

		srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
			apitest.StartEventStream(w)

			for {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(50 * time.Millisecond):
					apitest.WriteEvent(w, "", config.EventHeartbeat, "")
				}
			}
		})

		c := newClient(srv, testOptions())
		c.Start(context.Background())

		waitFor(t, c, func(ev sse.Event) bool {
			_, ok := ev.(sse.Opened)
			return ok
		})

		c.Close(json.RawMessage(`{"by":"user"}`))
		c.Close(json.RawMessage(`{"by":"again"}`))

		collect(t, c)

		reason, err := wait(t, c)
		require.NoError(t, err)
		assert.JSONEq(t, `{"by":"user"}`, string(reason))
		assert.Equal(t, sse.StateClosed, c.State())
	})

	t.Run("Close before start", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()

		c := newClient(srv, testOptions())
		c.Close(nil)
		c.Start(context.Background())

		_, err := wait(t, c)
		require.NoError(t, err)
		assert.Equal(t, 0, srv.Hits("logs"))

		_, ok := <-c.Events()
		assert.False(t, ok)
	})

	t.Run("Pause and resume are ignored once closed", func(t *testing.T) {
		srv := apitest.New()
		defer srv.Close()

		c := newClient(srv, testOptions())
		c.Close(nil)
		c.Pause()
		c.Resume()

		assert.Equal(t, sse.StateClosed, c.State())
	})
}

func Test_Client_ContextCancel(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.SetLogsHandler(func(w http.ResponseWriter, r *http.Request) {
		apitest.StartEventStream(w)

		for {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(50 * time.Millisecond):
				apitest.WriteEvent(w, "", config.EventHeartbeat, "")
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())

	c := newClient(srv, testOptions())
	c.Start(ctx)

	waitFor(t, c, func(ev sse.Event) bool {
		_, ok := ev.(sse.Opened)
		return ok
	})

	cancel()

	collect(t, c)

	_, err := wait(t, c)
	assert.ErrorIs(t, err, context.Canceled)
}
