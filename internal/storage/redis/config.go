package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Retention settings
	ResultTTL        time.Duration
	AnalysisKeep     int64
	SettlementMaxLen int64

	// MaxTxRetries bounds optimistic-lock retries for stats updates
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:              "redis://localhost:6379",
		PoolSize:         10,
		MinIdleConns:     2,
		ResultTTL:        7 * 24 * time.Hour,
		AnalysisKeep:     50,
		SettlementMaxLen: 100000,
		MaxTxRetries:     5,
	}
}
