package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds shared runtime configuration for the runner CLI and the API service.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string
	LogLevel    string
	LogFile     string

	AWSRegion            string
	AthenaEndpoint       string
	AthenaWorkGroup      string
	AthenaOutputLocation string
	AthenaDatabase       string
	PollMaxAttempts      int
	PollInitialDelay     time.Duration
	CancelOnTimeout      bool

	Workers   int
	OutputDir string
	ChainMode string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitCapacity int
	RateLimitRefill   float64

	PostgresDSN string

	SinkS3Bucket    string
	SinkS3Region    string
	SinkS3Endpoint  string
	SinkS3PathStyle bool
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	region := getEnv("AWS_REGION", "us-east-1")
	return Config{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		LogLevel:             getEnv("LOG_LEVEL", "DEBUG"),
		LogFile:              getEnv("LOG_FILE", ""),
		AWSRegion:            region,
		AthenaEndpoint:       getEnv("ATHENA_ENDPOINT", ""),
		AthenaWorkGroup:      getEnv("ATHENA_WORKGROUP", "poweruser"),
		AthenaOutputLocation: getEnv("ATHENA_OUTPUT_LOCATION", ""),
		AthenaDatabase:       getEnv("ATHENA_DATABASE", "database"),
		PollMaxAttempts:      getEnvInt("POLL_MAX_ATTEMPTS", 5),
		PollInitialDelay:     getEnvDuration("POLL_INITIAL_DELAY", time.Second),
		CancelOnTimeout:      getEnvBool("CANCEL_ON_TIMEOUT", false),
		Workers:              getEnvInt("WORKERS", 6),
		OutputDir:            getEnv("OUTPUT_DIR", "./output"),
		ChainMode:            getEnv("CHAIN_MODE", "all"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RateLimitCapacity:    getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill:      getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 5),
		PostgresDSN:          getEnv("POSTGRES_DSN", ""),
		SinkS3Bucket:         getEnv("SINK_S3_BUCKET", ""),
		SinkS3Region:         getEnv("SINK_S3_REGION", region),
		SinkS3Endpoint:       getEnv("SINK_S3_ENDPOINT", ""),
		SinkS3PathStyle:      getEnvBool("SINK_S3_PATH_STYLE", false),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
