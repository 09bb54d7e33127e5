package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Pricing  PricingConfig  `envPrefix:"PRICING_"`
	ShopAPI  ShopAPIConfig  `envPrefix:"SHOP_API_"`
	Log      LogConfig      `envPrefix:"LOG_"`
	AdminIDs []int64        `env:"ADMIN_IDS" envSeparator:","`
}

type TelegramConfig struct {
	Token   string `env:"TOKEN"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	Timeout int    `env:"UPDATE_TIMEOUT" envDefault:"60"`
}

type DatabaseConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"postgres"`
	Password        string        `env:"PASSWORD"`
	Name            string        `env:"NAME" envDefault:"printshop"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"2m"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
}

type PricingConfig struct {
	VatRate             decimal.Decimal `env:"VAT_RATE" envDefault:"0.20"`
	IncludeVAT          bool            `env:"INCLUDE_VAT" envDefault:"false"`
	Currency            string          `env:"CURRENCY" envDefault:"EUR"`
	CatalogTTL          time.Duration   `env:"CATALOG_TTL" envDefault:"1h"`
	ExtrapolateAboveMax bool            `env:"EXTRAPOLATE_ABOVE_MAX" envDefault:"true"`
	SizeKeywords        []string        `env:"SIZE_KEYWORDS" envSeparator:","`
}

// ShopAPIConfig points at the remote shop settings endpoint. Settings are
// read from the database when BaseURL is empty.
type ShopAPIConfig struct {
	BaseURL string        `env:"BASE_URL"`
	Token   string        `env:"TOKEN"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Pricing.VatRate.IsNegative() || c.Pricing.VatRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("PRICING_VAT_RATE must be in [0, 1), got %s", c.Pricing.VatRate)
	}
	if len(c.Pricing.Currency) != 3 {
		return fmt.Errorf("PRICING_CURRENCY must be an ISO 4217 code, got %q", c.Pricing.Currency)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT out of range: %d", c.Database.Port)
	}
	return nil
}

// RequireBot checks the settings only the bot binary needs.
func (c *Config) RequireBot() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	if len(c.AdminIDs) == 0 {
		return errors.New("at least one admin ID is required")
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
