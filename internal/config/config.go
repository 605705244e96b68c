package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LoginURL string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret        string
	JWTRefreshSecret string
	JWTExpiresIn     time.Duration
	JWTRefreshIn     time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Queue
	HospitalTimezone       string
	QueueMinutesPerPatient int
	QueueScopeTTL          time.Duration

	RealtimeRelayEnabled bool

	// Email delivery: "sendgrid", "ses" or "stub"
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SESFromEmail        string
	SESConfigurationSet string
	NotifyTimeout       time.Duration

	// Jobs
	ReminderEnabled    bool
	ReminderCron       string
	NoShowSweepEnabled bool
	NoShowCron         string
	NoShowGrace        time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LoginURL: getEnv("LOGIN_URL", "http://localhost:3000/login"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		JWTExpiresIn:     getEnvAsDuration("JWT_EXPIRES_IN", 15*time.Minute),
		JWTRefreshIn:     getEnvAsDuration("JWT_REFRESH_EXPIRES_IN", 168*time.Hour),

		BootstrapAdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		HospitalTimezone:       getEnv("HOSPITAL_TIMEZONE", "UTC"),
		QueueMinutesPerPatient: getEnvAsInt("QUEUE_MINUTES_PER_PATIENT", 15),
		QueueScopeTTL:          getEnvAsDuration("QUEUE_SCOPE_TTL", 48*time.Hour),

		RealtimeRelayEnabled: getEnvAsBool("REALTIME_RELAY_ENABLED", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Waylio"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 15*time.Second),

		ReminderEnabled:    getEnvAsBool("REMINDER_ENABLED", true),
		ReminderCron:       getEnv("REMINDER_CRON", "0 18 * * *"),
		NoShowSweepEnabled: getEnvAsBool("NO_SHOW_SWEEP_ENABLED", false),
		NoShowCron:         getEnv("NO_SHOW_CRON", "*/15 * * * *"),
		NoShowGrace:        getEnvAsDuration("NO_SHOW_GRACE", 2*time.Hour),
	}
}

// Location resolves HospitalTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.HospitalTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: HOSPITAL_TIMEZONE %q: %w", c.HospitalTimezone, err)
	}
	return loc, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must differ from JWT_SECRET"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Env == "production" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	switch c.EmailProvider {
	case "stub", "":
	case "sendgrid":
		if c.SendGridAPIKey == "" || c.SendGridFromEmail == "" {
			errs = append(errs, errors.New("EMAIL_PROVIDER=sendgrid needs SENDGRID_API_KEY and SENDGRID_FROM_EMAIL"))
		}
	case "ses":
		if c.SESFromEmail == "" {
			errs = append(errs, errors.New("EMAIL_PROVIDER=ses needs SES_FROM_EMAIL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
