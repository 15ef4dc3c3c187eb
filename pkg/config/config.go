package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/mcclellann/fredLedger/pkg/receipt"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr     string
	DatabasePath string
	LogLevel     string
	Environment  string

	ReceiptQueueSize   int
	WhatsAppBaseURL    string
	DefaultCountryCode string

	WeeklyPeriods  int
	DailyPeriods   int
	MonthlyPeriods int
}

// Load reads configuration from an optional .env file, an optional
// config.yaml in the working directory and LEDGER_* environment variables,
// in increasing order of precedence. APP_ENV and LOG_LEVEL are also read
// for the environment and log level.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("ledger")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional unprefixed names are honoured after the LEDGER_ ones.
	if err := v.BindEnv("env", "LEDGER_ENV", "APP_ENV"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("log.level", "LEDGER_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, err
	}

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.path", "fredledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("env", "development")
	v.SetDefault("receipt.queue_size", 100)
	v.SetDefault("whatsapp.base_url", "https://wa.me")
	v.SetDefault("whatsapp.country_code", receipt.DefaultCountryCode)
	v.SetDefault("periods.weekly", money.DefaultPeriodPolicy[money.Weekly])
	v.SetDefault("periods.daily", money.DefaultPeriodPolicy[money.Daily])
	v.SetDefault("periods.monthly", money.DefaultPeriodPolicy[money.Monthly])

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPAddr:           v.GetString("server.addr"),
		DatabasePath:       v.GetString("database.path"),
		LogLevel:           v.GetString("log.level"),
		Environment:        v.GetString("env"),
		ReceiptQueueSize:   v.GetInt("receipt.queue_size"),
		WhatsAppBaseURL:    v.GetString("whatsapp.base_url"),
		DefaultCountryCode: v.GetString("whatsapp.country_code"),
		WeeklyPeriods:      v.GetInt("periods.weekly"),
		DailyPeriods:       v.GetInt("periods.daily"),
		MonthlyPeriods:     v.GetInt("periods.monthly"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path must be set")
	}
	if c.ReceiptQueueSize <= 0 {
		return fmt.Errorf("receipt queue size must be positive, got %d", c.ReceiptQueueSize)
	}
	for unit, n := range c.PeriodPolicy() {
		if n <= 0 {
			return fmt.Errorf("%s installment count must be positive, got %d", unit, n)
		}
	}
	return nil
}

// PeriodPolicy is the installment count per period unit used to derive a
// loan's default installment.
func (c *Config) PeriodPolicy() money.PeriodPolicy {
	return money.PeriodPolicy{
		money.Weekly:  c.WeeklyPeriods,
		money.Daily:   c.DailyPeriods,
		money.Monthly: c.MonthlyPeriods,
	}
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}
