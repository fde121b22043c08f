package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (WHEEL_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	MongoURL      string        `usage:"MongoDB connection URI (WHEEL_MONGO_URL or MONGO_URL)" flag:"mongo-url"`
	MongoDatabase string        `default:"wheelhouse" usage:"MongoDB database name" flag:"mongo-database"`
	RedisAddr     string        `default:"" usage:"Redis address for the catalog cache; empty disables caching" flag:"redis-addr"`
	CacheTTL      time.Duration `default:"5m" usage:"Catalog cache entry TTL" flag:"cache-ttl"`
	Currency      string        `default:"BDT" usage:"Currency code sent to the payment gateway"`
	Payment       PaymentConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// PaymentConfig holds the payment gateway client settings.
type PaymentConfig struct {
	BaseURL  string        `usage:"Payment gateway base URL (WHEEL_PAYMENT_BASE_URL)" flag:"payment-base-url"`
	Username string        `usage:"Payment gateway merchant username" flag:"payment-username"`
	Password string        `usage:"Payment gateway merchant password" flag:"payment-password"`
	Timeout  time.Duration `default:"10s" usage:"Per-request gateway timeout" flag:"payment-timeout"`
	Retries  int           `default:"3"   usage:"Gateway attempts before giving up" flag:"payment-retries"`
}

// RateLimitConfig controls the per-client rate limiter.
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "WHEEL",
		Files:     []string{"config.yaml", "/etc/wheelhouse/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.MongoURL == "" {
		return nil, errors.New("mongo URL is required: set WHEEL_MONGO_URL or MONGO_URL")
	}
	if cfg.Payment.BaseURL == "" {
		return nil, errors.New("payment gateway URL is required: set WHEEL_PAYMENT_BASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like MONGO_URL and PORT to the
// application's WHEEL_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.MongoURL == "" {
		if v := os.Getenv("MONGO_URL"); v != "" {
			c.MongoURL = v
		}
	}
	if c.RedisAddr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
