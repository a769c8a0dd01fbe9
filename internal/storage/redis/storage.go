package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player stats operations

func (s *Storage) GetPlayerStats(ctx context.Context, id model.PlayerID) (*model.PlayerStats, error) {
	return getStats(ctx, s.client, id)
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getStats(ctx context.Context, c getter, id model.PlayerID) (*model.PlayerStats, error) {
	data, err := c.Get(ctx, statsKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}

	var stats model.PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Storage) SavePlayerStats(ctx context.Context, stats *model.PlayerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, statsKey(stats.PlayerID), data, 0).Err()
}

// ApplyResult updates the stats under WATCH so that concurrent updates for
// the same player retry instead of overwriting each other
func (s *Storage) ApplyResult(ctx context.Context, id model.PlayerID, result *model.SessionResult) (*model.PlayerStats, error) {
	var updated *model.PlayerStats

	txf := func(tx *redis.Tx) error {
		seen, err := tx.SIsMember(ctx, appliedKey(id), string(result.SessionID)).Result()
		if err != nil {
			return err
		}
		stats, err := getStats(ctx, tx, id)
		if errors.Is(err, model.ErrPlayerNotFound) {
			stats = &model.PlayerStats{PlayerID: id}
		} else if err != nil {
			return err
		}
		updated = stats
		if seen {
			return nil
		}

		stats.Record(id, result)
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statsKey(id), data, 0)
			pipe.SAdd(ctx, appliedKey(id), string(result.SessionID))
			return nil
		})
		return err
	}

	for range s.retries() {
		err := s.client.Watch(ctx, txf, statsKey(id), appliedKey(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("updating stats for %s: %w", id, redis.TxFailedErr)
}

// Result operations

// RecordResult stores the result, indexes it and appends it to the
// settlement stream in one transaction. A result already stored for the same
// session is left untouched.
func (s *Storage) RecordResult(ctx context.Context, result *model.SessionResult) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	key := resultKey(result.SessionID)

	var stored bool
	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			stored = false
			return nil
		}

		winner := ""
		if result.Winner != nil {
			winner = string(*result.Winner)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.ResultTTL)
			pipe.ZAdd(ctx, resultsIndexKey(), redis.Z{
				Score:  float64(result.CompletedAt.UnixMilli()),
				Member: string(result.SessionID),
			})
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: settlementStreamKey(),
				MaxLen: s.cfg.SettlementMaxLen,
				Values: map[string]any{
					"session_id":  string(result.SessionID),
					"game_type":   string(result.GameType),
					"status":      string(result.Status),
					"reason":      string(result.Reason),
					"winner":      winner,
					"total_stake": result.TotalStake(),
					"result":      data,
				},
			})
			return nil
		})
		stored = err == nil
		return err
	}

	for range s.retries() {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		return stored, nil
	}
	return false, fmt.Errorf("recording result %s: %w", result.SessionID, redis.TxFailedErr)
}

func (s *Storage) GetResult(ctx context.Context, id model.SessionID) (*model.SessionResult, error) {
	data, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrResultNotFound
		}
		return nil, err
	}

	var result model.SessionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Storage) ListResults(ctx context.Context, limit int) ([]*model.SessionResult, error) {
	if limit <= 0 {
		return []*model.SessionResult{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, resultsIndexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.SessionResult{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = resultKey(model.SessionID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	results := make([]*model.SessionResult, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Expired since it was indexed
			continue
		}
		var result model.SessionResult
		if err := json.Unmarshal([]byte(str), &result); err != nil {
			return nil, err
		}
		results = append(results, &result)
	}
	return results, nil
}

// Analysis operations

func (s *Storage) SaveAnalysis(ctx context.Context, analysis *model.Analysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return err
	}

	key := analysesKey(analysis.PlayerID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.cfg.AnalysisKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetAnalyses(ctx context.Context, id model.PlayerID) ([]*model.Analysis, error) {
	items, err := s.client.LRange(ctx, analysesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	analyses := make([]*model.Analysis, 0, len(items))
	for _, item := range items {
		var a model.Analysis
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, err
		}
		analyses = append(analyses, &a)
	}
	return analyses, nil
}

func (s *Storage) retries() int {
	if s.cfg.MaxTxRetries < 1 {
		return 1
	}
	return s.cfg.MaxTxRetries
}
