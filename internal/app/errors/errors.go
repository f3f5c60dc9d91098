package errors

import (
	"errors"
)

var (
	ErrFailedToReadConfig  = errors.New("failed to read config file")
	ErrFailedToParseConfig = errors.New("failed to parse config file")
	ErrInvalidConfig       = errors.New("invalid configuration")

	ErrAPIBaseURLRequired     = errors.New("api base url is required")
	ErrInvalidRetryFactor     = errors.New("stream retry backoff factor must be >= 1")
	ErrInvalidRetryTimeout    = errors.New("stream retry timeout must be positive")
	ErrInvalidRetryCount      = errors.New("stream retry max count must not be negative")
	ErrInvalidConnectTimeout  = errors.New("stream connect timeout must be positive")
	ErrInvalidHeartbeat       = errors.New("stream heartbeat interval must be positive and below threshold")
	ErrInvalidProgressLimit   = errors.New("progress limit must be positive")
	ErrInvalidWatermark       = errors.New("progress watermark offset must be between 0 and limit")
	ErrInvalidRefreshInterval = errors.New("instances refresh interval must be positive")

	ErrBufferNotConfigured = errors.New("buffer requires a timeout or a length")
	ErrInvalidBufferLength = errors.New("buffer length must be positive")
	ErrInvalidBufferDelay  = errors.New("buffer timeout must be positive")

	ErrFailedToCreateRequest = errors.New("failed to create request")
	ErrFailedToSignRequest   = errors.New("failed to sign request")
	ErrFailedToDecodeBody    = errors.New("failed to decode response body")
	ErrRequestFailed         = errors.New("request failed")

	ErrInvalidContentType   = errors.New("invalid content type")
	ErrConnectTimeout       = errors.New("connection attempt timed out")
	ErrHeartbeatTimeout     = errors.New("no heartbeat received")
	ErrUnexpectedClose      = errors.New("stream closed without end of stream event")
	ErrMalformedEndOfStream = errors.New("malformed end of stream payload")
	ErrMaxRetriesExceeded   = errors.New("max retry attempts exceeded")
	ErrStreamClosed         = errors.New("stream closed")

	ErrMalformedLog = errors.New("malformed log payload")

	ErrUnknownDeploymentState = errors.New("unknown deployment state")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrNoDeploymentFound      = errors.New("no deployment found")
	ErrInvalidPattern         = errors.New("invalid instance name pattern")
	ErrNoMatchingInstance     = errors.New("no instance matches the given names")
	ErrViewerClosed           = errors.New("viewer closed")

	ErrOwnerRequired       = errors.New("owner id is required")
	ErrApplicationRequired = errors.New("application id is required")
	ErrConflictingSources  = errors.New("--deployment, --last-deployment and --since are mutually exclusive")
	ErrFailedToParseDate   = errors.New("failed to parse date")
	ErrUnknownCommand      = errors.New("unknown command")
)

var (
	As   = errors.As
	Is   = errors.Is
	New  = errors.New
	Join = errors.Join
)
