package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/shop-orders/internal/gateway/razorpay"
	"github.com/xenking/shop-orders/internal/notify"
	"github.com/xenking/shop-orders/internal/storage/redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Database     DatabaseConfig
	Payment      PaymentConfig
	Order        OrderConfig
	Notify       NotifyConfig
	Redis        redis.Config
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// DatabaseConfig tunes the connection pool.
type DatabaseConfig struct {
	MaxConns int32 `default:"5" usage:"Maximum open database connections"`
}

// PaymentConfig configures the payment gateway.
type PaymentConfig struct {
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Payment gateway API base URL"`
	KeyID     string        `usage:"Payment gateway key id"`
	KeySecret string        `usage:"Payment gateway key secret, also keys callback signatures"`
	Currency  string        `default:"INR" usage:"Currency of gateway orders"`
	Timeout   time.Duration `default:"10s" usage:"Payment gateway request timeout"`
}

// Gateway returns the gateway client configuration.
func (c PaymentConfig) Gateway() razorpay.Config {
	return razorpay.Config{
		BaseURL:   c.BaseURL,
		KeyID:     c.KeyID,
		KeySecret: c.KeySecret,
		Timeout:   c.Timeout,
	}
}

// OrderConfig holds order lifecycle settings.
type OrderConfig struct {
	DeliveryLeadTime time.Duration `default:"72h" usage:"Expected delivery lead time of new orders"`
	NotifyTimeout    time.Duration `default:"30s" usage:"Timeout of a single status notification"`
}

// NotifyConfig selects the notification transport: AMQP when a broker URL is
// set, otherwise SMTP when a host is set, otherwise the log.
type NotifyConfig struct {
	SMTP notify.SMTPConfig
	AMQP notify.AMQPConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter. The
// window is shared through Redis when Redis.Addr is set.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
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

// LoadConfig loads an optional .env file, then configuration from environment
// variables, flags and YAML config files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	ac.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}

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

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Payment.KeySecret == "":
		return errors.New("payment key secret is required: set SHOP_PAYMENT_KEY_SECRET")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
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
