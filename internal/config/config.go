package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"logview/internal/app/errors"
)

const maskedSecret = "********"

// Config represents the application configuration
type Config struct {
	API struct {
		BaseURL    string        `yaml:"baseUrl"`
		Token      string        `yaml:"token"`
		SigningKey string        `yaml:"signingKey"`
		Subject    string        `yaml:"subject"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Stream    Stream    `yaml:"stream"`
	Buffer    Buffer    `yaml:"buffer"`
	Progress  Progress  `yaml:"progress"`
	Instances Instances `yaml:"instances"`
	Sentry    struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`
}

// Stream represents the event stream connection settings
type Stream struct {
	Retry              Retry         `yaml:"retry"`
	ConnectTimeout     time.Duration `yaml:"connectTimeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeatInterval"`
	HeartbeatThreshold time.Duration `yaml:"heartbeatThreshold"`
	Events             int           `yaml:"events"`
}

// Retry represents the reconnect policy of the event stream
type Retry struct {
	Enabled          bool          `yaml:"enabled"`
	BackoffFactor    float64       `yaml:"backoffFactor"`
	InitRetryTimeout time.Duration `yaml:"initRetryTimeout"`
	MaxRetryCount    int           `yaml:"maxRetryCount"`
}

// Buffer represents the log batching settings
type Buffer struct {
	Timeout time.Duration `yaml:"timeout"`
	Length  int           `yaml:"length"`
}

// Progress represents the loading progress limits
type Progress struct {
	Limit                int           `yaml:"limit"`
	WatermarkOffset      int           `yaml:"watermarkOffset"`
	NothingReceivedDelay time.Duration `yaml:"nothingReceivedDelay"`
}

// Instances represents the instance reconciliation settings
type Instances struct {
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	Lookback        time.Duration `yaml:"lookback"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.API.BaseURL = DefaultAPIBaseURL
	cfg.API.Timeout = DefaultAPITimeout

	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat

	cfg.Stream = Stream{
		Retry: Retry{
			Enabled:          RetryEnabled,
			BackoffFactor:    RetryFactor,
			InitRetryTimeout: RetryInitTimeout,
			MaxRetryCount:    RetryMaxCount,
		},
		ConnectTimeout:     ConnectTimeout,
		HeartbeatInterval:  HeartbeatInterval,
		HeartbeatThreshold: HeartbeatThreshold,
		Events:             EventsBufferSize,
	}

	cfg.Buffer = Buffer{
		Timeout: BufferTimeout,
		Length:  BufferLength,
	}

	cfg.Progress = Progress{
		Limit:                ProgressLimit,
		WatermarkOffset:      ProgressWatermarkOffset,
		NothingReceivedDelay: NothingReceivedDelay,
	}

	cfg.Instances = Instances{
		RefreshInterval: RefreshInterval,
		Lookback:        LastDeploymentLookback,
	}

	return cfg
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %w", errors.ErrFailedToReadConfig, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	data, err := os.ReadFile(ConfigFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.ErrFailedToReadConfig
	}

	if err == nil {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, errors.ErrFailedToReadConfig
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ErrFailedToParseConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// setDefaults registers every known key so environment overrides apply on unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.baseUrl", cfg.API.BaseURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.signingKey", cfg.API.SigningKey)
	v.SetDefault("api.subject", cfg.API.Subject)
	v.SetDefault("api.timeout", cfg.API.Timeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("stream.retry.enabled", cfg.Stream.Retry.Enabled)
	v.SetDefault("stream.retry.backoffFactor", cfg.Stream.Retry.BackoffFactor)
	v.SetDefault("stream.retry.initRetryTimeout", cfg.Stream.Retry.InitRetryTimeout)
	v.SetDefault("stream.retry.maxRetryCount", cfg.Stream.Retry.MaxRetryCount)
	v.SetDefault("stream.connectTimeout", cfg.Stream.ConnectTimeout)
	v.SetDefault("stream.heartbeatInterval", cfg.Stream.HeartbeatInterval)
	v.SetDefault("stream.heartbeatThreshold", cfg.Stream.HeartbeatThreshold)
	v.SetDefault("stream.events", cfg.Stream.Events)

	v.SetDefault("buffer.timeout", cfg.Buffer.Timeout)
	v.SetDefault("buffer.length", cfg.Buffer.Length)

	v.SetDefault("progress.limit", cfg.Progress.Limit)
	v.SetDefault("progress.watermarkOffset", cfg.Progress.WatermarkOffset)
	v.SetDefault("progress.nothingReceivedDelay", cfg.Progress.NothingReceivedDelay)

	v.SetDefault("instances.refreshInterval", cfg.Instances.RefreshInterval)
	v.SetDefault("instances.lookback", cfg.Instances.Lookback)

	v.SetDefault("sentry.dsn", cfg.Sentry.DSN)
	v.SetDefault("sentry.environment", cfg.Sentry.Environment)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.ErrAPIBaseURLRequired
	}

	if err := c.validateStream(); err != nil {
		return err
	}

	if err := c.validateBuffer(); err != nil {
		return err
	}

	if err := c.validateProgress(); err != nil {
		return err
	}

	if c.Instances.RefreshInterval <= 0 {
		return errors.ErrInvalidRefreshInterval
	}

	return nil
}

// validateStream validates connection and retry settings
func (c *Config) validateStream() error {
	r := c.Stream.Retry

	if r.BackoffFactor < 1 {
		return errors.ErrInvalidRetryFactor
	}

	if r.InitRetryTimeout <= 0 {
		return errors.ErrInvalidRetryTimeout
	}

	if r.MaxRetryCount < 0 {
		return errors.ErrInvalidRetryCount
	}

	if c.Stream.ConnectTimeout <= 0 {
		return errors.ErrInvalidConnectTimeout
	}

	if c.Stream.HeartbeatInterval <= 0 || c.Stream.HeartbeatThreshold <= c.Stream.HeartbeatInterval {
		return errors.ErrInvalidHeartbeat
	}

	return nil
}

// validateBuffer validates batching settings
func (c *Config) validateBuffer() error {
	if c.Buffer.Timeout == 0 && c.Buffer.Length == 0 {
		return errors.ErrBufferNotConfigured
	}

	if c.Buffer.Timeout < 0 {
		return errors.ErrInvalidBufferDelay
	}

	if c.Buffer.Length < 0 {
		return errors.ErrInvalidBufferLength
	}

	return nil
}

// validateProgress validates limit and watermark settings
func (c *Config) validateProgress() error {
	if c.Progress.Limit <= 0 {
		return errors.ErrInvalidProgressLimit
	}

	if c.Progress.WatermarkOffset < 0 || c.Progress.WatermarkOffset >= c.Progress.Limit {
		return errors.ErrInvalidWatermark
	}

	return nil
}

// Dump renders the configuration as YAML with secrets masked
func Dump(cfg *Config) ([]byte, error) {
	masked := *cfg

	if masked.API.Token != "" {
		masked.API.Token = maskedSecret
	}

	if masked.API.SigningKey != "" {
		masked.API.SigningKey = maskedSecret
	}

	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = maskedSecret
	}

	return yaml.Marshal(&masked)
}
