// Package config loads gateway configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Poll serialization modes.
const (
	PollSerializationNone  = "none"
	PollSerializationLocal = "local"
	PollSerializationRedis = "redis"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Config holds all gateway configuration.
type Config struct {
	Providers  ProvidersConfig  `mapstructure:"providers"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ProvidersConfig holds one section per provider.
type ProvidersConfig struct {
	Kling  ProviderConfig `mapstructure:"kling"`
	Runway ProviderConfig `mapstructure:"runway"`
	Deer   ProviderConfig `mapstructure:"deer"`
}

// ProviderConfig holds a provider's endpoint and credential.
type ProviderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// SecretKey turns APIKey into an access key for signed tokens.
	SecretKey string `mapstructure:"secret_key"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	KeepAlive time.Duration `mapstructure:"keep_alive"`
	UserAgent string        `mapstructure:"user_agent"`
}

// GatewayConfig holds orchestrator behavior switches.
type GatewayConfig struct {
	// PollSerialization is one of none, local or redis.
	PollSerialization string        `mapstructure:"poll_serialization"`
	PollLockTTL       time.Duration `mapstructure:"poll_lock_ttl"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds the per-provider circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Interval         time.Duration `mapstructure:"interval"`
}

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from file and environment. Extra search paths
// are tried before the defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("vidgate")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/vidgate")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("VIDGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecrets overrides credentials from the environment.
func applySecrets(cfg *Config) {
	if key := os.Getenv("VIDGATE_KLING_API_KEY"); key != "" {
		cfg.Providers.Kling.APIKey = key
	}
	if key := os.Getenv("VIDGATE_KLING_SECRET_KEY"); key != "" {
		cfg.Providers.Kling.SecretKey = key
	}
	if key := os.Getenv("VIDGATE_RUNWAY_API_KEY"); key != "" {
		cfg.Providers.Runway.APIKey = key
	}
	if key := os.Getenv("VIDGATE_DEER_API_KEY"); key != "" {
		cfg.Providers.Deer.APIKey = key
	}
	if password := os.Getenv("VIDGATE_DB_PASSWORD"); password != "" {
		cfg.Store.Database.Password = password
	}
	if password := os.Getenv("VIDGATE_REDIS_PASSWORD"); password != "" {
		cfg.Store.Redis.Password = password
	}

	// Runway is served by the same relay account as Kling.
	if cfg.Providers.Runway.APIKey == "" && cfg.Providers.Kling.SecretKey == "" {
		cfg.Providers.Runway.APIKey = cfg.Providers.Kling.APIKey
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Gateway.PollSerialization {
	case PollSerializationNone, PollSerializationLocal, PollSerializationRedis:
	default:
		return fmt.Errorf("invalid gateway.poll_serialization %q", c.Gateway.PollSerialization)
	}
	switch c.Store.Driver {
	case StoreMemory, StorePostgres, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("invalid store.driver %q", c.Store.Driver)
	}
	if c.Gateway.PollSerialization == PollSerializationRedis && c.Store.Redis.Address == "" {
		return fmt.Errorf("redis poll serialization requires store.redis.address")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("providers.kling.enabled", true)
	v.SetDefault("providers.kling.base_url", "https://api.302.ai")
	v.SetDefault("providers.kling.api_key", "")
	v.SetDefault("providers.kling.secret_key", "")
	v.SetDefault("providers.runway.enabled", true)
	v.SetDefault("providers.runway.base_url", "https://api.302.ai")
	v.SetDefault("providers.runway.api_key", "")
	v.SetDefault("providers.deer.enabled", true)
	v.SetDefault("providers.deer.base_url", "https://api.deerapi.com")
	v.SetDefault("providers.deer.api_key", "")

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 120*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.user_agent", "vidgate/1.0")

	// Gateway defaults
	v.SetDefault("gateway.poll_serialization", PollSerializationNone)
	v.SetDefault("gateway.poll_lock_ttl", 30*time.Second)
	v.SetDefault("gateway.poll_interval", 10*time.Second)
	v.SetDefault("gateway.breaker.enabled", true)
	v.SetDefault("gateway.breaker.failure_threshold", 5)
	v.SetDefault("gateway.breaker.success_threshold", 2)
	v.SetDefault("gateway.breaker.timeout", 30*time.Second)
	v.SetDefault("gateway.breaker.interval", time.Minute)

	// Store defaults
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.database.host", "localhost")
	v.SetDefault("store.database.port", 5432)
	v.SetDefault("store.database.user", "postgres")
	v.SetDefault("store.database.password", "")
	v.SetDefault("store.database.database", "vidgate")
	v.SetDefault("store.database.ssl_mode", "disable")
	v.SetDefault("store.database.path", "vidgate.db")
	v.SetDefault("store.database.max_open_conns", 25)
	v.SetDefault("store.database.max_idle_conns", 10)
	v.SetDefault("store.database.conn_max_lifetime", time.Hour)
	v.SetDefault("store.redis.address", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "vidgate:task:")
	v.SetDefault("store.redis.ttl", 7*24*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "vidgate")
}
