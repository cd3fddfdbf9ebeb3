package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	Gzip            bool
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// UpstreamConfig describes the external ask endpoint.
type UpstreamConfig struct {
	AskURL     string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration

	// BreakerBase is the first cooldown after a route exhausted its retries; zero disables the breaker.
	BreakerBase time.Duration
	BreakerMax  time.Duration
}

// ConvertConfig bounds resume uploads and PDF extraction.
type ConvertConfig struct {
	MaxUploadMB  int
	MinTextChars int
	Extractors   []string // "fitz", "plain"
}

// LimitsConfig defines per-address rate limits and session retention.
type LimitsConfig struct {
	PerHour    int
	SessionTTL time.Duration
}

// RedisConfig defines redis connectivity. Empty URL disables redis-backed features.
type RedisConfig struct {
	URL string
}

// ArchiveConfig controls the optional S3 artifact archive.
type ArchiveConfig struct {
	Bucket     string
	Prefix     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Stream     string
	Group      string
	Workers    int
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Upstream UpstreamConfig
	Convert  ConvertConfig
	Limits   LimitsConfig
	Redis    RedisConfig
	Archive  ArchiveConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		Gzip:            parseBool(getEnv("HTTP_GZIP", "true")),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/assistgate.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_assistgate",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Upstream = UpstreamConfig{
		AskURL:      getEnv("ASK_URL", "http://localhost:3001/ask"),
		Timeout:     parseDuration(getEnv("ASK_TIMEOUT", "90s"), 90*time.Second),
		MaxRetries:  parseInt(getEnv("ASK_MAX_RETRIES", "2"), 2),
		RetryBase:   parseDuration(getEnv("ASK_RETRY_BASE_DELAY", "500ms"), 500*time.Millisecond),
		BreakerBase: parseDuration(getEnv("ASK_BREAKER_BASE", "30s"), 30*time.Second),
		BreakerMax:  parseDuration(getEnv("ASK_BREAKER_MAX", "5m"), 5*time.Minute),
	}
	if cfg.Upstream.MaxRetries < 0 {
		cfg.Upstream.MaxRetries = 0
	}

	cfg.Convert = ConvertConfig{
		MaxUploadMB:  parseInt(getEnv("CONVERT_MAX_UPLOAD_MB", "10"), 10),
		MinTextChars: parseInt(getEnv("CONVERT_MIN_TEXT_CHARS", "32"), 32),
		Extractors:   parseList(getEnv("CONVERT_EXTRACTORS", "fitz,plain")),
	}

	cfg.Limits = LimitsConfig{
		PerHour:    parseInt(getEnv("RATE_LIMIT_PER_HOUR", "30"), 30),
		SessionTTL: parseDuration(getEnv("SESSION_TTL", "24h"), 24*time.Hour),
	}

	cfg.Redis = RedisConfig{URL: getEnv("REDIS_URL", "")}

	cfg.Archive = ArchiveConfig{
		Bucket:     getEnv("ARCHIVE_BUCKET", ""),
		Prefix:     strings.Trim(getEnv("ARCHIVE_PREFIX", "artifacts"), "/"),
		Region:     getEnv("AWS_REGION", ""),
		Endpoint:   getEnv("ARCHIVE_S3_ENDPOINT", ""),
		AccessKey:  getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		SecretKey:  getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		Passphrase: getEnv("ARCHIVE_PASSPHRASE", ""),
		Stream:     getEnv("ARCHIVE_STREAM", "jobs:archive"),
		Group:      getEnv("ARCHIVE_GROUP", "workers:archive"),
		Workers:    parseInt(getEnv("ARCHIVE_WORKERS", "2"), 2),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
