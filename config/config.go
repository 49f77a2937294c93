package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config is read from the environment; a .env file next to the binary is
// loaded first when present.
type Config struct {
	Mode               string
	Port               string
	DSN                string
	Env                string
	SigningSecret      []byte
	SchedulerToken     string
	RedisAddress       string
	TimezoneServiceURL string
	TimezoneAPIKey     string
	SweepWorkers       int
	ReportBucket       string
	MaxConnections     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Mode:               stringFromEnv("MODE", ModeDevelopment),
		Port:               stringFromEnv("PORT", "8090"),
		DSN:                os.Getenv("DSN"),
		Env:                stringFromEnv("ATTENDANCE_ENV", "dev"),
		SchedulerToken:     os.Getenv("SCHEDULER_TOKEN"),
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		TimezoneServiceURL: strings.TrimRight(os.Getenv("TIMEZONE_SERVICE_URL"), "/"),
		TimezoneAPIKey:     os.Getenv("TIMEZONE_API_KEY"),
		SweepWorkers:       intFromEnv("AUTOCHECKOUT_WORKERS", 8),
		ReportBucket:       os.Getenv("REPORT_BUCKET"),
		MaxConnections:     intFromEnv("DB_MAX_CONNECTIONS", 10),
	}

	if secret := os.Getenv("ATTENDANCE_SIGNING_SECRET"); secret != "" {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("ATTENDANCE_SIGNING_SECRET is not valid base64: %w", err)
		}
		cfg.SigningSecret = decoded
	}

	return cfg, nil
}

// Validate checks what the HTTP service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.DSN == "" {
		missing = append(missing, "DSN")
	}
	if len(c.SigningSecret) == 0 {
		missing = append(missing, "ATTENDANCE_SIGNING_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
