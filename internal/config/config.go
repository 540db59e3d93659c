package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module loads configuration once for the whole app.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Gateway      GatewayProfile
	Email        EmailProfile
	Notification NotificationProfile
	Fraud        FraudConfig
}

// GatewayProfile controls the simulated payment gateway. The mock profile is a
// short fixed latency for tests and load runs; the realistic profile draws from
// a wider range.
type GatewayProfile struct {
	Mock        bool
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate int // percent
}

// Mode names the active profile for startup logging.
func (p GatewayProfile) Mode() string {
	if p.Mock {
		return "mock"
	}
	return "realistic"
}

// EmailProfile controls the simulated email sender.
type EmailProfile struct {
	Mock        bool
	Optimized   bool
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate int
}

func (p EmailProfile) Mode() string {
	switch {
	case p.Mock:
		return "mock"
	case p.Optimized:
		return "optimized"
	default:
		return "realistic"
	}
}

// NotificationProfile controls the simulated push notification sender.
type NotificationProfile struct {
	Mock        bool
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SuccessRate int
}

func (p NotificationProfile) Mode() string {
	if p.Mock {
		return "mock"
	}
	return "realistic"
}

// FraudConfig gates the fraud rule engine as a unit.
type FraudConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "payflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Gateway:      gatewayProfile(),
		Email:        emailProfile(),
		Notification: notificationProfile(),
		Fraud: FraudConfig{
			Enabled: getenvBool("FRAUD_DETECTION_ENABLED", true),
		},
	}
}

func gatewayProfile() GatewayProfile {
	if getenvBool("MOCK_PAYMENT_GATEWAY", false) {
		return GatewayProfile{
			Mock:        true,
			MinLatency:  10 * time.Millisecond,
			MaxLatency:  10 * time.Millisecond,
			SuccessRate: 70,
		}
	}
	return GatewayProfile{
		MinLatency:  100 * time.Millisecond,
		MaxLatency:  500 * time.Millisecond,
		SuccessRate: 70,
	}
}

func emailProfile() EmailProfile {
	switch {
	case getenvBool("MOCK_EMAIL_SERVICE", false):
		return EmailProfile{
			Mock:        true,
			MinLatency:  10 * time.Millisecond,
			MaxLatency:  10 * time.Millisecond,
			SuccessRate: 100,
		}
	case getenvBool("OPTIMIZED_EMAIL_SERVICE", false):
		return EmailProfile{
			Optimized:   true,
			MinLatency:  100 * time.Millisecond,
			MaxLatency:  100 * time.Millisecond,
			SuccessRate: 99,
		}
	default:
		return EmailProfile{
			MinLatency:  100 * time.Millisecond,
			MaxLatency:  300 * time.Millisecond,
			SuccessRate: 99,
		}
	}
}

func notificationProfile() NotificationProfile {
	if getenvBool("MOCK_NOTIFICATION_SERVICE", false) {
		return NotificationProfile{
			Mock:        true,
			MinLatency:  5 * time.Millisecond,
			MaxLatency:  5 * time.Millisecond,
			SuccessRate: 100,
		}
	}
	return NotificationProfile{
		MinLatency:  50 * time.Millisecond,
		MaxLatency:  150 * time.Millisecond,
		SuccessRate: 99,
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
