// Package config provides the bus configuration: one instance per process,
// consumed read-only by the core components. Values load from environment
// variables via struct tags, with optional .env file support.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// APIConfig holds per-API behavior flags.
type APIConfig struct {
	// CastValues controls whether incoming keyword-argument values are
	// coerced to Go-native forms before a listener is invoked.
	CastValues bool
}

// SchemaConfig configures schema transport upkeep.
type SchemaConfig struct {
	// TTL is the expiry set when storing a schema; schemas are pinged at
	// half this interval to stay alive.
	TTL time.Duration `env:"BUS_SCHEMA_TTL" envDefault:"60s"`
}

// Config is the process-wide bus configuration.
type Config struct {
	// QueueSizeWarning is the internal queue depth at which the monitor
	// starts logging growth warnings.
	QueueSizeWarning int `env:"BUS_QUEUE_SIZE_WARNING" envDefault:"5"`

	// MonitorInterval is the queue monitor's poll interval.
	MonitorInterval time.Duration `env:"BUS_MONITOR_INTERVAL" envDefault:"100ms"`

	// StopWait bounds the graceful-drain phase of consumer shutdown.
	StopWait time.Duration `env:"BUS_STOP_WAIT" envDefault:"1s"`

	Schema SchemaConfig

	mu   sync.RWMutex
	apis map[string]APIConfig
}

// Default returns a Config with default values, without consulting the
// environment.
func Default() *Config {
	return &Config{
		QueueSizeWarning: 5,
		MonitorInterval:  100 * time.Millisecond,
		StopWait:         time.Second,
		Schema:           SchemaConfig{TTL: time.Minute},
	}
}

// Load builds a Config from environment variables. A .env file in the
// working directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bus config: %w", err)
	}
	return cfg, nil
}

// SetAPI records per-API configuration.
func (c *Config) SetAPI(name string, apiCfg APIConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apis == nil {
		c.apis = make(map[string]APIConfig)
	}
	c.apis[name] = apiCfg
}

// API returns the configuration for the named API. APIs without explicit
// configuration get the zero value.
func (c *Config) API(name string) APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apis[name]
}
