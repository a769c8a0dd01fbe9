package storage

import (
	"context"

	"github.com/mcoot/arenaengine/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Player stats operations
	GetPlayerStats(ctx context.Context, id model.PlayerID) (*model.PlayerStats, error)
	SavePlayerStats(ctx context.Context, stats *model.PlayerStats) error
	// ApplyResult folds one session result into the player's stats. Applying
	// the same session twice leaves the stats unchanged.
	ApplyResult(ctx context.Context, id model.PlayerID, result *model.SessionResult) (*model.PlayerStats, error)

	// Result operations. RecordResult is idempotent on the session id and
	// reports whether this call stored it.
	RecordResult(ctx context.Context, result *model.SessionResult) (bool, error)
	GetResult(ctx context.Context, id model.SessionID) (*model.SessionResult, error)
	// ListResults returns up to limit results, newest first. A limit <= 0 returns none.
	ListResults(ctx context.Context, limit int) ([]*model.SessionResult, error)

	// Analysis operations
	SaveAnalysis(ctx context.Context, analysis *model.Analysis) error
	GetAnalyses(ctx context.Context, id model.PlayerID) ([]*model.Analysis, error)

	Ping(ctx context.Context) error
	Close() error
}
