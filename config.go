// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package coapfs holds the environment configuration of the coapfs server.
package coapfs

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every coapfs environment variable.
const EnvPrefix = "COAPFS_"

// Config errors.
var (
	ErrEmptyPort       = errors.New("port must be set")
	ErrEmptyStorageDir = errors.New("storage directory must be set")
	ErrNoAllowedHosts  = errors.New("at least one allowed host is required")
	ErrBufferSize      = errors.New("buffer size must be positive")
	ErrWorkerPoolSize  = errors.New("worker pool size must be positive")
	ErrLogLevel        = errors.New("unknown log level")
	ErrLogFormat       = errors.New("unknown log format")
)

// Config holds the server configuration.
type Config struct {
	// Listener
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	Port string `env:"PORT" envDefault:"5683"`

	// Storage
	StorageDir   string   `env:"STORAGE_DIR"   envDefault:"Storage"`
	AllowedHosts []string `env:"ALLOWED_HOSTS" envDefault:"localhost,127.0.0.1" envSeparator:","`

	// Transport
	BufferSize      int           `env:"BUFFER_SIZE"       envDefault:"15000"`
	WorkerPoolSize  int           `env:"WORKER_POOL_SIZE"  envDefault:"100"`
	QueueSize       int           `env:"QUEUE_SIZE"        envDefault:"0"`
	ReadBufferSize  int           `env:"READ_BUFFER_SIZE"  envDefault:"0"`
	WriteBufferSize int           `env:"WRITE_BUFFER_SIZE" envDefault:"0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`

	// Storage circuit breaker, 0 failures disables it
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"0"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Rate Limiting
	RateLimitCapacity int64 `env:"RATE_LIMIT_CAPACITY" envDefault:"0"`
	RateLimitRefill   int64 `env:"RATE_LIMIT_REFILL"   envDefault:"10"`

	// Observability
	LogLevel      string `env:"LOG_LEVEL"      envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT"     envDefault:"json"`
	MetricsPort   int    `env:"METRICS_PORT"   envDefault:"9090"`
	HealthPort    int    `env:"HEALTH_PORT"    envDefault:"8080"`
	MaxGoroutines int    `env:"MAX_GOROUTINES" envDefault:"50000"`
}

// NewConfig parses the configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Address returns the UDP listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return ErrEmptyPort
	case c.StorageDir == "":
		return ErrEmptyStorageDir
	case len(c.AllowedHosts) == 0:
		return ErrNoAllowedHosts
	case c.BufferSize <= 0:
		return ErrBufferSize
	case c.WorkerPoolSize <= 0:
		return ErrWorkerPoolSize
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrLogLevel, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrLogFormat, c.LogFormat)
	}
	return nil
}
