package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for our application
type Config struct {
	Port                 string        `envconfig:"PORT" default:"3001"`
	Origin               string        `envconfig:"ORIGIN" default:"http://localhost:4200"`
	Environment          string        `envconfig:"APP_ENV" default:"development"`
	Timezone             string        `envconfig:"TIMEZONE" default:"Asia/Kolkata"`
	JWTSecret            string        `envconfig:"JWT_SECRET" default:"default_jwt_secret"`
	JWTExpirationMinutes int           `envconfig:"JWT_EXPIRATION_MINUTES" default:"60"`
	HoldTTL              time.Duration `envconfig:"HOLD_TTL" default:"30m"`
	FirmName             string        `envconfig:"FIRM_NAME" default:"Law Chambers"`

	Database DatabaseConfig `envconfig:"DB"`
	Payment  PaymentConfig  `envconfig:"PAYMENT"`
	Calendar CalendarConfig `envconfig:"CALENDAR"`
	Events   EventsConfig   `envconfig:"EVENTS"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Tracing  TracingConfig  `envconfig:"OTEL"`
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string `envconfig:"DRIVER" default:"mysql"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"3306"`
	Username string `envconfig:"USERNAME" default:"root"`
	Password string `envconfig:"PASSWORD"`
	Name     string `envconfig:"NAME" default:"lawfirm"`
	MaxConns int    `envconfig:"MAX_CONNS" default:"20"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	DSN      string `envconfig:"DSN"`
}

// PaymentConfig holds payment gateway credentials. Secret never leaves the server.
type PaymentConfig struct {
	KeyID    string `envconfig:"KEY_ID"`
	Secret   string `envconfig:"KEY_SECRET"`
	Currency string `envconfig:"CURRENCY" default:"INR"`
}

// CalendarConfig configures meeting creation for confirmed appointments.
type CalendarConfig struct {
	CredentialsFile string        `envconfig:"CREDENTIALS_FILE"`
	CalendarID      string        `envconfig:"ID" default:"primary"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// EventsConfig selects where booking lifecycle events are published.
type EventsConfig struct {
	Backend      string   `envconfig:"BACKEND" default:"log"`
	RabbitURL    string   `envconfig:"RABBIT_URL"`
	Exchange     string   `envconfig:"EXCHANGE" default:"lawfirm.booking"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"lawfirm.booking"`
}

// RedisConfig enables the rate limiter when URL is set.
type RedisConfig struct {
	URL             string        `envconfig:"URL"`
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"30"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `envconfig:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"lawfirm-server"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = cfg.Database.BuildDSN()
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Payment.Currency = strings.ToUpper(cfg.Payment.Currency)

	return &cfg, nil
}

// BuildDSN builds the Data Source Name for the configured driver.
func (d DatabaseConfig) BuildDSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Port, d.Username, d.Password, d.Name)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

// Location returns the firm's timezone. LoadConfig has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
