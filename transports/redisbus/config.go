package redisbus

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config holds the Redis backend configuration. Each transport type declares
// its configuration fields explicitly; nothing is derived from constructor
// signatures.
type Config struct {
	Addr     string `env:"BUS_REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"BUS_REDIS_PASSWORD"`
	DB       int    `env:"BUS_REDIS_DB" envDefault:"0"`

	// StreamPrefix namespaces the per-event stream keys.
	StreamPrefix string `env:"BUS_REDIS_STREAM_PREFIX" envDefault:"fluxbus:stream:"`

	// SchemaPrefix namespaces the schema keys and their index set.
	SchemaPrefix string `env:"BUS_REDIS_SCHEMA_PREFIX" envDefault:"fluxbus:schema:"`

	// StreamMaxLen caps each stream's approximate length.
	StreamMaxLen int64 `env:"BUS_REDIS_STREAM_MAXLEN" envDefault:"100000"`

	// BatchSize is the maximum number of entries read per consume call.
	BatchSize int64 `env:"BUS_REDIS_BATCH_SIZE" envDefault:"10"`

	// BlockTimeout is how long a consume read blocks waiting for entries.
	BlockTimeout time.Duration `env:"BUS_REDIS_BLOCK_TIMEOUT" envDefault:"5s"`
}

// LoadConfig builds a Config from environment variables. A .env file in the
// working directory is applied first if present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return cfg, nil
}

// NewClient creates a Redis client from the configuration.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  cfg.BlockTimeout + 3*time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
}
