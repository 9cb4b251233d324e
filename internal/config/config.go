package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Policy       PolicyConfig
	Gateways     GatewayConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters for the admin API.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PolicyConfig carries the attendance policy thresholds. Defaults mirror
// the operational baseline; all values are overridable per deployment.
type PolicyConfig struct {
	LateHighSeverityMinutes  int
	EarlyHighSeverityMinutes int
	AbsenceAlertThreshold    int
	AbsenceCriticalThreshold int
	GeofenceRadiusMeters     float64
	EnforceGeofence          bool
	MaxVerifyAttempts        int
	VerifyWindowMinutes      int
}

// GatewayConfig holds outbound SMS and email gateway credentials. Missing
// credentials disable the channel cleanly.
type GatewayConfig struct {
	SMSAccountSID string
	SMSAuthToken  string
	SMSFrom       string
	SMSEndpoint   string
	EmailAPIKey   string
	EmailFrom     string
	EmailEndpoint string
}

// NotificationConfig controls the dispatch fan-out.
type NotificationConfig struct {
	MaxConcurrentRecipients int
	ChannelTimeoutSeconds   int
	MaxDispatchRetries      int
	DashboardChannel        string
	RecipientChannelPrefix  string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	radius, err := strconv.ParseFloat(getEnv("POLICY_GEOFENCE_RADIUS_METERS", "100"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid POLICY_GEOFENCE_RADIUS_METERS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "attendance-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Policy: PolicyConfig{
			LateHighSeverityMinutes:  getEnvAsInt("POLICY_LATE_HIGH_MINUTES", 60),
			EarlyHighSeverityMinutes: getEnvAsInt("POLICY_EARLY_HIGH_MINUTES", 120),
			AbsenceAlertThreshold:    getEnvAsInt("POLICY_ABSENCE_THRESHOLD", 3),
			AbsenceCriticalThreshold: getEnvAsInt("POLICY_ABSENCE_CRITICAL_THRESHOLD", 5),
			GeofenceRadiusMeters:     radius,
			EnforceGeofence:          getEnvAsBool("POLICY_ENFORCE_GEOFENCE", false),
			MaxVerifyAttempts:        getEnvAsInt("POLICY_MAX_VERIFY_ATTEMPTS", 5),
			VerifyWindowMinutes:      getEnvAsInt("POLICY_VERIFY_WINDOW_MINUTES", 5),
		},
		Gateways: GatewayConfig{
			SMSAccountSID: os.Getenv("SMS_ACCOUNT_SID"),
			SMSAuthToken:  os.Getenv("SMS_AUTH_TOKEN"),
			SMSFrom:       os.Getenv("SMS_FROM"),
			SMSEndpoint:   getEnv("SMS_ENDPOINT", "https://api.twilio.com/2010-04-01"),
			EmailAPIKey:   os.Getenv("EMAIL_API_KEY"),
			EmailFrom:     getEnv("EMAIL_FROM", "alerts@ephc.gov"),
			EmailEndpoint: getEnv("EMAIL_ENDPOINT", "https://api.sendgrid.com/v3/mail/send"),
		},
		Notification: NotificationConfig{
			MaxConcurrentRecipients: getEnvAsInt("NOTIFY_MAX_CONCURRENT_RECIPIENTS", 8),
			ChannelTimeoutSeconds:   getEnvAsInt("NOTIFY_CHANNEL_TIMEOUT_SECONDS", 8),
			MaxDispatchRetries:      getEnvAsInt("NOTIFY_MAX_DISPATCH_RETRIES", 3),
			DashboardChannel:        getEnv("NOTIFY_DASHBOARD_CHANNEL", "alerts:dashboard"),
			RecipientChannelPrefix:  getEnv("NOTIFY_RECIPIENT_CHANNEL_PREFIX", "alerts:user:"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// VerifyWindow returns the sliding window for biometric attempt limiting.
func (p PolicyConfig) VerifyWindow() time.Duration {
	return time.Duration(p.VerifyWindowMinutes) * time.Minute
}

// ChannelTimeout returns the per-channel dispatch timeout.
func (n NotificationConfig) ChannelTimeout() time.Duration {
	return time.Duration(n.ChannelTimeoutSeconds) * time.Second
}

// SMSConfigured reports whether the SMS gateway has usable credentials.
func (g GatewayConfig) SMSConfigured() bool {
	return g.SMSAccountSID != "" && g.SMSAuthToken != "" && g.SMSFrom != ""
}

// EmailConfigured reports whether the email gateway has usable credentials.
func (g GatewayConfig) EmailConfigured() bool {
	return g.EmailAPIKey != "" && g.EmailFrom != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
