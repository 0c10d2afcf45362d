package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SettingsTTLSeconds    int
	PollIntervalSeconds   int
	ReportTimezone        string
	DefaultCurrency       string
	DefaultCurrencySymbol string
	DefaultMinorUnits     int32
	LogLevel              string
	APIBaseURL            string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	minorUnits, err := strconv.Atoi(getEnv("DEFAULT_MINOR_UNITS", "2"))
	if err != nil || minorUnits < 0 || minorUnits > 4 {
		minorUnits = 2
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		SettingsTTLSeconds:    getEnvInt("SETTINGS_TTL_SECONDS", 300),
		PollIntervalSeconds:   getEnvInt("POLL_INTERVAL_SECONDS", 30),
		ReportTimezone:        getEnv("REPORT_TIMEZONE", "UTC"),
		DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		DefaultCurrencySymbol: getEnv("DEFAULT_CURRENCY_SYMBOL", "$"),
		DefaultMinorUnits:     int32(minorUnits),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		APIBaseURL:            getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ReportLocation is the zone that decides where "today" starts for the
// cash-sale aggregate.
func (c Config) ReportLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SettingsTTL() time.Duration {
	return time.Duration(c.SettingsTTLSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt falls back on missing, malformed or non-positive values.
func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
