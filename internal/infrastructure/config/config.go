package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is constructed once at
// process start and passed down immutably; core logic never performs
// ambient lookups.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Twilio   TwilioConfig
	RemoveBg RemoveBgConfig
	Storage  StorageConfig
	Razorpay RazorpayConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings. Redis backs the payment
// callback idempotency store; when unset the in-memory store is used.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
}

// TwilioConfig holds messaging platform credentials. The auth token also
// authenticates inbound media fetches.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // sender identity, e.g. "whatsapp:+14155238886"
	Timeout      time.Duration
}

// Configured reports whether the send/fetch capability is usable
func (c *TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

// RemoveBgConfig holds background-removal service settings
type RemoveBgConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Configured reports whether the transform capability is usable
func (c *RemoveBgConfig) Configured() bool {
	return c.APIKey != ""
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	UseSSL        bool
	PublicBaseURL string // base URL artifacts are served from; defaults to the endpoint
}

// RazorpayConfig holds payment gateway settings. KeySecret is also the
// pre-shared secret for checkout signature verification.
type RazorpayConfig struct {
	KeyID        string
	KeySecret    string
	Endpoint     string
	CheckoutURL  string // hosted checkout page the CONFIRM command links to
	PremiumPrice string // decimal amount, e.g. "499.00"
	Currency     string
	Timeout      time.Duration
}

// Configured reports whether the payment capability is usable
func (c *RazorpayConfig) Configured() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

// Load loads configuration from the TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CUTOUT_ prefix (e.g. CUTOUT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CUTOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),
		},
		Twilio: TwilioConfig{
			AccountSID:   v.GetString("twilio.account_sid"),
			AuthToken:    v.GetString("twilio.auth_token"),
			WhatsAppFrom: v.GetString("twilio.whatsapp_from"),
			Timeout:      v.GetDuration("twilio.timeout"),
		},
		RemoveBg: RemoveBgConfig{
			APIKey:   v.GetString("removebg.api_key"),
			Endpoint: v.GetString("removebg.endpoint"),
			Timeout:  v.GetDuration("removebg.timeout"),
		},
		Storage: StorageConfig{
			Endpoint:      v.GetString("storage.endpoint"),
			Region:        v.GetString("storage.region"),
			Bucket:        v.GetString("storage.bucket"),
			AccessKey:     v.GetString("storage.access_key"),
			SecretKey:     v.GetString("storage.secret_key"),
			UsePathStyle:  v.GetBool("storage.use_path_style"),
			UseSSL:        v.GetBool("storage.use_ssl"),
			PublicBaseURL: v.GetString("storage.public_base_url"),
		},
		Razorpay: RazorpayConfig{
			KeyID:        v.GetString("razorpay.key_id"),
			KeySecret:    v.GetString("razorpay.key_secret"),
			Endpoint:     v.GetString("razorpay.endpoint"),
			CheckoutURL:  v.GetString("razorpay.checkout_url"),
			PremiumPrice: v.GetString("razorpay.premium_price"),
			Currency:     v.GetString("razorpay.currency"),
			Timeout:      v.GetDuration("razorpay.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency. Optional capabilities
// (remove.bg, Razorpay) are allowed to be absent; the dispatcher turns
// them into user-visible replies instead of startup failures.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	if c.Razorpay.Configured() && c.Razorpay.CheckoutURL == "" {
		return fmt.Errorf("razorpay.checkout_url is required when razorpay keys are set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cutout-backend")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cutout")
	v.SetDefault("database.dbname", "cutout")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_body_size", int64(1<<20))

	v.SetDefault("twilio.timeout", 30*time.Second)

	v.SetDefault("removebg.endpoint", "https://api.remove.bg/v1.0/removebg")
	v.SetDefault("removebg.timeout", 45*time.Second)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", true)
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("razorpay.endpoint", "https://api.razorpay.com/v1")
	v.SetDefault("razorpay.premium_price", "499.00")
	v.SetDefault("razorpay.currency", "INR")
	v.SetDefault("razorpay.timeout", 30*time.Second)
}
