package config

import "time"

type CacheConfig struct {
	// RedisURL is optional. When empty, quota reads and event lookups go straight to the database.
	RedisURL   string
	DefaultTTL time.Duration
}

func NewCacheConfig() CacheConfig {
	return CacheConfig{
		RedisURL:   getEnv("REDIS_URL", ""),
		DefaultTTL: getSeconds("CACHE_TTL_SECONDS", 30),
	}
}

func (c CacheConfig) Enabled() bool {
	return c.RedisURL != ""
}
