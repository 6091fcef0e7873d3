package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Amazon   AmazonConfig   `mapstructure:"amazon"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	Host string     `mapstructure:"host"`
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	// Driver selects the persistence engine: sqlite, postgres or memory.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AmazonConfig carries the external ads API credentials and endpoints.
type AmazonConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	APIBase      string `mapstructure:"api_base"`
	AuthURL      string `mapstructure:"auth_url"`
}

// FetchConfig tunes the report fetch state machine.
type FetchConfig struct {
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	TokenExpiryMargin time.Duration `mapstructure:"token_expiry_margin"`

	// Progress milestones reported while a fetch advances. Values are
	// percentages and must be strictly increasing below 100.
	ProgressRequested  float64 `mapstructure:"progress_requested"`
	ProgressPolled     float64 `mapstructure:"progress_polled"`
	ProgressDownloaded float64 `mapstructure:"progress_downloaded"`
}

// JobsConfig controls the background sweep of old terminal jobs.
type JobsConfig struct {
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type StorageConfig struct {
	// Type selects the object storage backend: local or s3.
	Type           string `mapstructure:"type"`
	LocalDir       string `mapstructure:"local_dir"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	PublicURL      string `mapstructure:"public_url"`
	ArchiveReports bool   `mapstructure:"archive_reports"`
}

// RedisConfig enables the usage analytics counters when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventsConfig enables the job event publisher when AMQPURL is set.
type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/adspulse.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("amazon.api_base", "https://advertising-api.amazon.com")
	v.SetDefault("amazon.auth_url", "https://api.amazon.com/auth/o2/token")
	v.SetDefault("fetch.rate_limit_per_sec", 5.0)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_base", time.Second)
	v.SetDefault("fetch.poll_interval", 5*time.Second)
	v.SetDefault("fetch.poll_timeout", 600*time.Second)
	v.SetDefault("fetch.token_expiry_margin", 60*time.Second)
	v.SetDefault("fetch.progress_requested", 10.0)
	v.SetDefault("fetch.progress_polled", 60.0)
	v.SetDefault("fetch.progress_downloaded", 80.0)
	v.SetDefault("jobs.sweep_schedule", "@every 10m")
	v.SetDefault("jobs.max_age", 24*time.Hour)
	v.SetDefault("upload.max_bytes", int64(10*1024*1024))
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "adspulse")
	v.SetDefault("storage.archive_reports", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 720*time.Hour)
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "jobs")
	v.SetDefault("events.routing_key", "jobs.status")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("amazon.client_id", "AMAZON_ADS_CLIENT_ID")
	v.BindEnv("amazon.client_secret", "AMAZON_ADS_CLIENT_SECRET")
	v.BindEnv("amazon.refresh_token", "AMAZON_ADS_REFRESH_TOKEN")
	v.BindEnv("amazon.api_base", "AMAZON_ADS_API_BASE")
	v.BindEnv("amazon.auth_url", "AMAZON_ADS_AUTH_URL")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("events.amqp_url", "AMQP_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Masked returns a copy of the config with credential material replaced by
// a redacted form, safe for logging.
func (c *Config) Masked() Config {
	out := *c
	out.Amazon.ClientSecret = maskSecret(c.Amazon.ClientSecret)
	out.Amazon.RefreshToken = maskSecret(c.Amazon.RefreshToken)
	out.Storage.SecretKey = maskSecret(c.Storage.SecretKey)
	out.Redis.Password = maskSecret(c.Redis.Password)
	out.Events.AMQPURL = maskSecret(c.Events.AMQPURL)
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
