package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	HTTP          ServerConfig
	MySQL         MySQLConfig
	Log           LogConfig
	Chainpay      ChainpayConfig
	Stripe        StripeConfig
	Notifications NotificationsConfig
	Ledger        LedgerConfig
	Jobs          JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

// ChainpayConfig holds the crypto-settlement processor webhook secret.
// An empty secret is not a startup error: every chainpay delivery is
// rejected with an internal error instead, so the misconfiguration is
// loud without taking the stripe path down with it.
type ChainpayConfig struct {
	WebhookSecret string
}

type StripeConfig struct {
	WebhookSecret string
}

type NotificationsConfig struct {
	ServiceURL    string
	APIKey        string
	MaxAttempts   int32
	RetryInterval time.Duration
	HTTPTimeout   time.Duration
	JobBatchSize  int32
}

type LedgerConfig struct {
	Retention    time.Duration
	JobBatchSize int32
}

type JobsConfig struct {
	NotificationsDispatchInterval time.Duration
	LedgerGCInterval              time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "billing-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Chainpay: ChainpayConfig{
			WebhookSecret: getEnv("CHAINPAY_WEBHOOK_SECRET", ""),
		},
		Stripe: StripeConfig{
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Notifications: NotificationsConfig{
			ServiceURL:    getEnv("NOTIFICATIONS_SERVICE_URL", ""),
			APIKey:        getEnv("NOTIFICATIONS_API_KEY", ""),
			MaxAttempts:   int32(getIntEnv("NOTIFICATIONS_MAX_ATTEMPTS", 10)),
			RetryInterval: getMinutesEnv("NOTIFICATIONS_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			HTTPTimeout:   getSecondsEnv("NOTIFICATIONS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			JobBatchSize:  int32(getIntEnv("NOTIFICATIONS_JOB_BATCH_SIZE", 100)),
		},
		Ledger: LedgerConfig{
			Retention:    getHoursEnv("LEDGER_RETENTION_HOURS", 30*24*time.Hour),
			JobBatchSize: int32(getIntEnv("LEDGER_JOB_BATCH_SIZE", 1000)),
		},
		Jobs: JobsConfig{
			NotificationsDispatchInterval: getMinutesEnv("NOTIFICATIONS_DISPATCH_INTERVAL_MINUTES", time.Minute),
			LedgerGCInterval:              getHoursEnv("LEDGER_GC_INTERVAL_HOURS", 24*time.Hour),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}
