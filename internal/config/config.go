package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	MaxBodyBytes    int64
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Upstream  UpstreamConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
}

type UpstreamConfig struct {
	// URLTemplate receives the deployment's ResourceName through a single %s verb.
	URLTemplate      string
	FirstByteTimeout time.Duration
	IdleTimeout      time.Duration
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is reported but is not an error.
func Load() (*Config, error) {
	envErr := godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "5050"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:  getInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:  getInt("DB_MAX_IDLE_CONNS", 25),
		MaxBodyBytes:    int64(getInt("MAX_BODY_BYTES", 4<<20)),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: 10 * time.Second,
		Upstream: UpstreamConfig{
			URLTemplate:      getEnv("UPSTREAM_URL_TEMPLATE", "https://%s.openai.azure.com"),
			FirstByteTimeout: getSeconds("UPSTREAM_FIRST_BYTE_TIMEOUT_SECONDS", 60),
			IdleTimeout:      getSeconds("UPSTREAM_IDLE_TIMEOUT_SECONDS", 30),
		},
		Cache:     NewCacheConfig(),
		RateLimit: NewRateLimitConfig(),
	}
	return cfg, envErr
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
