package config

import "time"

type RateLimitConfig struct {
	// PerMinute is the request allowance per event per window; 0 disables the limiter.
	PerMinute int
	Window    time.Duration
}

func NewRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: getInt("RATE_LIMIT_PER_MINUTE", 0),
		Window:    time.Minute,
	}
}
