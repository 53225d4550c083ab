package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (COMANDA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (COMANDA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage      string `default:"postgres" usage:"Storage driver: postgres or memory"`
	Timezone     string `default:"UTC" usage:"Business timezone for order numbering, receipts and reports"`
	APIKeyPepper string `usage:"HMAC pepper for terminal key hashing (COMANDA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	MenuFile     string `usage:"Menu JSON file for the memory store (defaults to the sample menu)" flag:"menu-file"`
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Outbox       OutboxConfig
	AMQP         AMQPConfig
	Redis        RedisConfig
}

// AuthConfig controls terminal authentication.
type AuthConfig struct {
	Disabled     bool   `default:"false" usage:"Accept unauthenticated requests" flag:"auth-disabled"`
	BootstrapKey string `usage:"Terminal key registered with every scope at startup" flag:"bootstrap-key"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// OutboxConfig tunes event dispatch.
type OutboxConfig struct {
	Interval     time.Duration `default:"1s" usage:"Outbox poll interval" flag:"outbox-interval"`
	BatchSize    int           `default:"100" usage:"Events claimed per poll" flag:"outbox-batch"`
	BacklogLimit int           `default:"10000" usage:"Undelivered events tolerated before readiness fails" flag:"outbox-backlog"`
	Lease        time.Duration `default:"30s" usage:"How long a claimed batch is hidden from other dispatchers" flag:"outbox-lease"`
	MaxAttempts  int           `default:"10" usage:"Failed deliveries before an event is dead-lettered" flag:"outbox-max-attempts"`
}

// AMQPConfig enables the RabbitMQ sink when URL is set.
type AMQPConfig struct {
	URL      string `usage:"AMQP broker URL" flag:"amqp-url"`
	Exchange string `default:"comanda.events" usage:"Fanout exchange for order events" flag:"amqp-exchange"`
}

// RedisConfig enables the Redis pub/sub sink when Addr is set.
type RedisConfig struct {
	Addr          string `usage:"Redis address" flag:"redis-addr"`
	Password      string `usage:"Redis password" flag:"redis-password"`
	DB            int    `default:"0" usage:"Redis database" flag:"redis-db"`
	ChannelPrefix string `default:"comanda:events" usage:"Pub/sub channel prefix" flag:"redis-prefix"`
}

// LoadConfig loads .env, then configuration from environment variables, flags
// and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "COMANDA",
		Files:     []string{"config.yaml", "/etc/comanda/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COMANDA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set COMANDA_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: use %q or %q", c.Storage, StoragePostgres, StorageMemory)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	return loc, nil
}
