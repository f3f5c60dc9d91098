package sse

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"syscall"
	"time"

	"logview/internal/app/api"
	"logview/internal/app/errors"
	"logview/internal/config"
)

// RetryPolicy controls reconnection after a retryable failure
type RetryPolicy struct {
	Enabled          bool
	BackoffFactor    float64
	InitRetryTimeout time.Duration
	MaxRetryCount    int
}

// PolicyFromConfig converts the configured retry section
func PolicyFromConfig(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		Enabled:          cfg.Enabled,
		BackoffFactor:    cfg.BackoffFactor,
		InitRetryTimeout: cfg.InitRetryTimeout,
		MaxRetryCount:    cfg.MaxRetryCount,
	}
}

// Delay returns the wait before the given 1-based retry attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(math.Round(float64(p.InitRetryTimeout) * math.Pow(p.BackoffFactor, float64(attempt))))
}

// transportErrnos are the OS-level failures that happen before any response
var transportErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
	syscall.ENETDOWN,
}

// IsTransportError reports a connection-level failure (refused, reset, timeout, DNS)
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	for _, errno := range transportErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}

// IsRetryable reports whether a failed attempt may be retried
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, errors.ErrInvalidContentType),
		errors.Is(err, errors.ErrConnectTimeout),
		errors.Is(err, errors.ErrHeartbeatTimeout),
		errors.Is(err, errors.ErrUnexpectedClose):
		return true
	case errors.Is(err, errors.ErrMalformedEndOfStream):
		return false
	}

	if status := api.StatusCode(err); status != 0 {
		return status >= http.StatusInternalServerError
	}

	return IsTransportError(err)
}
