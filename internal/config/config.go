package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBDriver string
	DBConn   string
	LogLevel string

	JWTSecret string

	// MaxInstallments caps the number of installments a plan may carry.
	MaxInstallments int

	KeyRateURL    string
	KeyRateMargin float64

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	ReminderDaysAhead int
	SweepSchedule     string
	ReminderSchedule  string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_CONN", "host=localhost port=5432 user=bnpl password=bnpl dbname=bnpl sslmode=disable")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("MAX_INSTALLMENTS", 12)
	v.SetDefault("KEY_RATE_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx")
	v.SetDefault("KEY_RATE_MARGIN", 5.0)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SENDER_EMAIL", "noreply@bnpl.local")
	v.SetDefault("REMINDER_DAYS_AHEAD", 3)
	v.SetDefault("SWEEP_SCHEDULE", "0 1 * * *")
	v.SetDefault("REMINDER_SCHEDULE", "0 9 * * *")

	cfg := &Config{
		Port:              v.GetString("PORT"),
		DBDriver:          v.GetString("DB_DRIVER"),
		DBConn:            v.GetString("DB_CONN"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		MaxInstallments:   v.GetInt("MAX_INSTALLMENTS"),
		KeyRateURL:        v.GetString("KEY_RATE_URL"),
		KeyRateMargin:     v.GetFloat64("KEY_RATE_MARGIN"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetString("SMTP_PORT"),
		SMTPUsername:      v.GetString("SMTP_USERNAME"),
		SMTPPassword:      v.GetString("SMTP_PASSWORD"),
		SenderEmail:       v.GetString("SENDER_EMAIL"),
		ReminderDaysAhead: v.GetInt("REMINDER_DAYS_AHEAD"),
		SweepSchedule:     v.GetString("SWEEP_SCHEDULE"),
		ReminderSchedule:  v.GetString("REMINDER_SCHEDULE"),
	}

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", cfg.DBDriver)
	}
	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MaxInstallments < 1 {
		return nil, fmt.Errorf("MAX_INSTALLMENTS must be at least 1")
	}

	return cfg, nil
}
