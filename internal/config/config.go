package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeZone = "America/Argentina/Buenos_Aires"

	DefaultSettlementPort = 6143
	DefaultRegistryPort   = 5143
	DefaultReportsPort    = 4143
	DefaultGatewayPort    = 8081

	// Scratch upload janitor
	DefaultJanitorSchedule = "*/15 * * * *"

	MaxUploadBytes        = 32 << 20
	DefaultHeaderScanRows = 20
	DefaultImportWorkers  = 1
	DefaultBatchListLimit = 50

	DefaultRegistryCacheTTL = 5 * time.Minute
)

// Env returns the variable or def when unset or blank.
func Env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return n
}

func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// PostgresDSN builds the connection string from the DB_* variables.
func PostgresDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		Env("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		Env("DB_HOST", "localhost"),
		Env("DB_PORT", "5432"),
		Env("DB_NAME", "collectledger"),
		Env("DB_SSLMODE", "disable"),
	)
}

type RedisSettings struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis reports the cache settings; ok is false when REDIS_ADDR is unset.
func Redis() (RedisSettings, bool) {
	addr := Env("REDIS_ADDR", "")
	if addr == "" {
		return RedisSettings{}, false
	}
	db, _ := strconv.Atoi(Env("REDIS_DB", "0"))
	return RedisSettings{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      EnvDuration("REDIS_TTL", DefaultRegistryCacheTTL),
	}, true
}

type ArchiveSettings struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string
}

func Archive() ArchiveSettings {
	return ArchiveSettings{
		Enabled: EnvBool("ARCHIVE_S3_ENABLED", false),
		Bucket:  Env("ARCHIVE_S3_BUCKET", ""),
		Region:  Env("ARCHIVE_S3_REGION", Env("AWS_REGION", "us-east-1")),
		Prefix:  Env("ARCHIVE_S3_PREFIX", "settlements"),
	}
}

// Int reads an integer from a services.yaml config map.
func Int(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// String reads a string from a services.yaml config map.
func String(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Strings reads a list of strings from a services.yaml config map.
func Strings(cfg map[string]interface{}, key string) []string {
	raw, ok := cfg[key].([]interface{})
	if !ok {
		if s, ok := cfg[key].(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
