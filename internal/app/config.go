package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var defaultAllowedOrigins = []string{
	"https://coraza.clothing",
	"https://panel.coraza.clothing",
}

type Config struct {
	DatabaseURL string
	SecretKey   string
	BindAddress string
	Environment string
	LogLevel    string
	SentryDSN   string
	Release     string

	AllowedOrigins []string
	// TrustProxyHeaders is false when the API is reachable without a proxy
	// in front of it.
	TrustProxyHeaders bool

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	RedisURL             string
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	AMQPURL   string
	AMQPQueue string

	CloudinaryURL    string
	CloudinaryFolder string
	UploadDir        string

	LoginHistoryRetention time.Duration
	ActionLogRetention    time.Duration
	CleanupBatchSize      int
	CleanupSchedule       string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// LoadConfig reads the process environment. DATABASE_URL and SECRET_KEY are
// required.
func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	secretKey, err := mustEnv("SECRET_KEY")
	if err != nil {
		return Config{}, err
	}

	origins := append([]string(nil), defaultAllowedOrigins...)
	origins = append(origins, envOrDefault("FRONTEND_URL", "http://localhost:8080"))

	return Config{
		DatabaseURL: databaseURL,
		SecretKey:   secretKey,
		BindAddress: envOrDefault("SERVER_BIND_ADDRESS", "127.0.0.1:8081"),
		Environment: envOrDefault("APP_ENV", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		Release:     strings.TrimSpace(os.Getenv("APP_RELEASE")),

		AllowedOrigins:    origins,
		TrustProxyHeaders: EnvBoolOrDefault("TRUST_PROXY_HEADERS", true),

		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		AMQPURL:   strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPQueue: envOrDefault("AMQP_ACTION_LOG_QUEUE", "action_logs"),

		CloudinaryURL:    strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CloudinaryFolder: envOrDefault("CLOUDINARY_FOLDER", "products"),
		UploadDir:        envOrDefault("UPLOAD_DIR", "uploads"),

		LoginHistoryRetention: envDaysOrDefault("LOGIN_HISTORY_RETENTION_DAYS", 180),
		ActionLogRetention:    envDaysOrDefault("ACTION_LOG_RETENTION_DAYS", 365),
		CleanupBatchSize:      envIntOrDefault("CLEANUP_BATCH_SIZE", 500),
		CleanupSchedule:       strings.TrimSpace(os.Getenv("CLEANUP_SCHEDULE")),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}, nil
}

// InternalSecret is read on every internal request so the secret can be
// rotated without a restart. INTERNAL_SECRET wins over SECRET_KEY.
func InternalSecret() string {
	if secret := strings.TrimSpace(os.Getenv("INTERNAL_SECRET")); secret != "" {
		return secret
	}
	return strings.TrimSpace(os.Getenv("SECRET_KEY"))
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
