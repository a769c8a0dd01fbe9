package redis

import (
	"fmt"

	"github.com/mcoot/arenaengine/internal/model"
)

// Key prefix for all arena data
const keyPrefix = "arena"

// statsKey returns the Redis key for a player's PlayerStats
func statsKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:stats:%s", keyPrefix, id)
}

// appliedKey returns the Redis key for the SET of sessions already folded into a player's stats
func appliedKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:idx:stats_applied:%s", keyPrefix, id)
}

// resultKey returns the Redis key for a SessionResult
func resultKey(id model.SessionID) string {
	return fmt.Sprintf("%s:result:%s", keyPrefix, id)
}

// resultsIndexKey returns the Redis key for the ZSET of results ordered by completion time
func resultsIndexKey() string {
	return fmt.Sprintf("%s:idx:results", keyPrefix)
}

// settlementStreamKey returns the Redis key for the stream downstream settlement consumes
func settlementStreamKey() string {
	return fmt.Sprintf("%s:stream:settlements", keyPrefix)
}

// analysesKey returns the Redis key for the LIST of a player's analyses, newest first
func analysesKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:analysis:%s", keyPrefix, id)
}
