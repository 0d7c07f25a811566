// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Intent creation requests allowed per owner per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // catalog cache ttl
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type PlanConfig struct {
	Code     string        `yaml:"code"`
	Name     string        `yaml:"name"`
	Price    int64         `yaml:"price"` // minor units
	Currency string        `yaml:"currency"`
	Period   time.Duration `yaml:"period"`
	Benefits []string      `yaml:"benefits"`
}

type PaymentsConfig struct {
	DefaultCurrency string        `yaml:"default_currency"`
	RetryLimit      int           `yaml:"retry_limit"`
	GatewayTimeout  time.Duration `yaml:"gateway_timeout"`
	Plans           []PlanConfig  `yaml:"plans"`
	// Store-wide bundle discount, e.g. "15" for 15%. Buyers cannot choose their own.
	BundleDiscountPercent string `yaml:"bundle_discount_percent"`

	BundleDiscount decimal.Decimal `yaml:"-"` // parsed BundleDiscountPercent
}

type ReconcilerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	RefundLookback time.Duration `yaml:"refund_lookback"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Auth       AuthConfig       `yaml:"auth"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = 20
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "entitlements"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "bagcomics-payments"
	}

	if cfg.Payments.DefaultCurrency == "" {
		cfg.Payments.DefaultCurrency = "USD"
	}
	cfg.Payments.DefaultCurrency = strings.ToUpper(cfg.Payments.DefaultCurrency)
	if cfg.Payments.RetryLimit <= 0 {
		cfg.Payments.RetryLimit = 3
	}
	if cfg.Payments.GatewayTimeout <= 0 {
		cfg.Payments.GatewayTimeout = 10 * time.Second
	}
	if len(cfg.Payments.Plans) == 0 {
		cfg.Payments.Plans = DefaultPlans(cfg.Payments.DefaultCurrency)
	}
	if strings.TrimSpace(cfg.Payments.BundleDiscountPercent) == "" {
		cfg.Payments.BundleDiscountPercent = "15"
	}

	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.RefundLookback <= 0 {
		cfg.Reconciler.RefundLookback = 24 * time.Hour
	}
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 200
	}
	if cfg.Reconciler.Workers <= 0 {
		cfg.Reconciler.Workers = 4
	}
	if cfg.Reconciler.ExpiryInterval <= 0 {
		cfg.Reconciler.ExpiryInterval = time.Hour
	}
}

// DefaultPlans are used when the config file lists none.
func DefaultPlans(currency string) []PlanConfig {
	return []PlanConfig{
		{
			Code: "monthly", Name: "Monthly", Price: 999, Currency: currency, Period: 30 * 24 * time.Hour,
			Benefits: []string{"Unlimited reading of subscription comics", "Early access to new issues"},
		},
		{
			Code: "yearly", Name: "Yearly", Price: 9999, Currency: currency, Period: 365 * 24 * time.Hour,
			Benefits: []string{"Unlimited reading of subscription comics", "Early access to new issues", "Two months free"},
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	// dev mode runs against the in-memory gateway
	if !cfg.Runtime.Dev && cfg.Stripe.SecretKey == "" {
		return errors.New("stripe.secret_key is required")
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(cfg.Payments.BundleDiscountPercent))
	if err != nil || pct.IsNegative() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("payments.bundle_discount_percent: %q is not a percentage in [0, 100)", cfg.Payments.BundleDiscountPercent)
	}
	cfg.Payments.BundleDiscount = pct
	seen := map[string]bool{}
	for _, p := range cfg.Payments.Plans {
		code := strings.ToLower(p.Code)
		if code == "" || p.Price <= 0 || p.Period <= 0 {
			return fmt.Errorf("payments.plans: invalid plan %q", p.Code)
		}
		if seen[code] {
			return fmt.Errorf("payments.plans: duplicate plan %q", p.Code)
		}
		seen[code] = true
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
