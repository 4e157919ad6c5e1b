package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Provider ProviderConfig `mapstructure:"provider"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration. PublicURL is the
// externally reachable base URL embedded in open-tracking pixel links.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DispatchConfig holds the dispatch pipeline parameters.
type DispatchConfig struct {
	// RatePerSecond is the global send ceiling shared by the immediate
	// and scheduled paths.
	RatePerSecond int `mapstructure:"rate_per_second"`
	// QueueCapacity bounds the dispatch channel.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// SchedulerInterval is the scheduler wake interval.
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	// BatchSize caps how many due requests one wake promotes.
	BatchSize int32 `mapstructure:"batch_size"`
	// RequeueAfter is how long a dispatch claim holds before the row
	// becomes due again (crash/loss recovery).
	RequeueAfter time.Duration `mapstructure:"requeue_after"`
}

// ProviderConfig holds delivery-provider configuration.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"` // ses (default), sendgrid, stdout
	Region    string        `mapstructure:"region"`
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	FromEmail string        `mapstructure:"from_email"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds JWT verification configuration.
type AuthConfig struct {
	SigningKey  string        `mapstructure:"signing_key"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	Issuer      string        `mapstructure:"issuer"`
	Audience    string        `mapstructure:"audience"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"` // stdout (default), file
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix MAILCAST_ override file values.
// For example, MAILCAST_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAILCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("dispatch.rate_per_second", 24)
	v.SetDefault("dispatch.queue_capacity", 10000)
	v.SetDefault("dispatch.scheduler_interval", time.Minute)
	v.SetDefault("dispatch.batch_size", 1000)
	v.SetDefault("dispatch.requeue_after", 10*time.Minute)
	v.SetDefault("provider.type", "ses")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("auth.token_expiry", time.Hour)
	v.SetDefault("auth.issuer", "mailcast")
	v.SetDefault("auth.audience", "mailcast-api")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
}
