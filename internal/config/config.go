package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Clinic API
	APIBaseURL string
	APITimeout time.Duration

	// Shared state ("memory" or "redis")
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DraftTTL      time.Duration

	ProfileCookieSecret string
	ProfileCookieTTL    time.Duration
	CORSAllowedOrigins  []string
	MetricsToken        string

	// Calendar and screens
	CalendarDayStartHour int
	CalendarDayEndHour   int
	KioskTimezone        string
	WalkInDoctorID       int64
	QRSize               int

	AuthRatePerSecond float64
	AuthRateBurst     int
	TabIdleTimeout    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:5000"),
		APITimeout: getEnvAsDuration("API_TIMEOUT", 15*time.Second),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DraftTTL:      getEnvAsDuration("DRAFT_TTL", 12*time.Hour),

		ProfileCookieSecret: getEnv("PROFILE_COOKIE_SECRET", ""),
		ProfileCookieTTL:    getEnvAsDuration("PROFILE_COOKIE_TTL", 30*24*time.Hour),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		MetricsToken:        getEnv("METRICS_TOKEN", ""),

		CalendarDayStartHour: getEnvAsInt("CALENDAR_DAY_START_HOUR", 8),
		CalendarDayEndHour:   getEnvAsInt("CALENDAR_DAY_END_HOUR", 20),
		KioskTimezone:        getEnv("KIOSK_TIMEZONE", "UTC"),
		WalkInDoctorID:       int64(getEnvAsInt("WALK_IN_DOCTOR_ID", 0)),
		QRSize:               getEnvAsInt("QR_SIZE", 200),

		AuthRatePerSecond: getEnvAsFloat("AUTH_RATE_PER_SECOND", 1),
		AuthRateBurst:     getEnvAsInt("AUTH_RATE_BURST", 5),
		TabIdleTimeout:    getEnvAsDuration("TAB_IDLE_TIMEOUT", 30*time.Minute),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Location resolves KioskTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.KioskTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
