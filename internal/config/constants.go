package config

import "time"

// app constants
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	ConfigFile = "logview.yaml"
	EnvFile    = ".env"
	EnvPrefix  = "LOGVIEW"

	AppName        = "logview"
	AppDescription = "Stream application logs from the cloud platform"
	Version        = "0.4.0"
)

// api constants
const (
	DefaultAPIBaseURL = "https://api.example-cloud.io"
	DefaultAPITimeout = 30 * time.Second
	TokenLifetime     = 5 * time.Minute
)

// stream constants
const (
	EventStreamContentType = "text/event-stream"

	ConnectTimeout     = 5000 * time.Millisecond
	HeartbeatInterval  = 1000 * time.Millisecond
	HeartbeatThreshold = 4000 * time.Millisecond

	RetryEnabled     = true
	RetryFactor      = 1.25
	RetryInitTimeout = 1000 * time.Millisecond
	RetryMaxCount    = 6

	EventsBufferSize = 256
)

// sse event names
const (
	EventApplicationLog = "APPLICATION_LOG"
	EventHeartbeat      = "HEARTBEAT"
	EventEndOfStream    = "END_OF_STREAM"
)

// buffer constants
const (
	BufferTimeout = 200 * time.Millisecond
	BufferLength  = 500
)

// progress constants
const (
	ProgressLimit           = 1000
	ProgressWatermarkOffset = 10
	NothingReceivedDelay    = 2000 * time.Millisecond
)

// instances constants
const (
	RefreshInterval        = 2000 * time.Millisecond
	LastDeploymentLookback = 24 * time.Hour
	MaxConcurrentFetches   = 4
)
