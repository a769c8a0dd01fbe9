package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/dependencies/random"
	"github.com/mcoot/arenaengine/internal/model"
)

const (
	// SessionIDLength is the length of generated session ids
	SessionIDLength = 8
	// SessionIDAlphabet is the characters used in session ids (avoid confusing chars)
	SessionIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Store owns every live session. Its lock only guards the map and is never
// held while a session lock is taken.
type Store struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session

	clock        clock.Clock
	random       random.Random
	logger       *slog.Logger
	eventLogSize int
}

// NewStore creates an empty session store
func NewStore(clock clock.Clock, random random.Random, logger *slog.Logger) *Store {
	return &Store{
		sessions:     make(map[model.SessionID]*Session),
		clock:        clock,
		random:       random,
		logger:       logger.With(slog.String("component", "session_store")),
		eventLogSize: DefaultEventLogSize,
	}
}

// Create registers a new waiting session
func (st *Store) Create(gameType model.GameType, cfg model.SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var id model.SessionID
	for {
		id = model.SessionID(st.random.String(SessionIDLength, SessionIDAlphabet))
		if _, exists := st.sessions[id]; !exists {
			break
		}
	}

	s := newSession(id, gameType, cfg, st.clock.Now(), st.eventLogSize)
	st.sessions[id] = s

	st.logger.Info("session created",
		slog.String("session_id", string(id)),
		slog.String("game_type", string(gameType)),
		slog.Int("max_players", cfg.MaxPlayers))
	return s, nil
}

// Get returns a session by id
func (st *Store) Get(id model.SessionID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return s, nil
}

// FindJoinable returns the oldest waiting session of the game type and config
// that still has room, or nil. The answer can be stale by the time the caller
// locks the session, so Join must still be checked.
func (st *Store) FindJoinable(gameType model.GameType, cfg model.SessionConfig) *Session {
	for _, s := range st.All() {
		if s.GameType() != gameType || s.Config() != cfg {
			continue
		}
		s.Lock()
		joinable := s.IsJoinable()
		s.Unlock()
		if joinable {
			return s
		}
	}
	return nil
}

// Remove evicts a session from the store
func (st *Store) Remove(id model.SessionID) {
	st.mu.Lock()
	_, existed := st.sessions[id]
	delete(st.sessions, id)
	remaining := len(st.sessions)
	st.mu.Unlock()

	if existed {
		st.logger.Info("session removed",
			slog.String("session_id", string(id)),
			slog.Int("remaining", remaining))
	}
}

// All returns every session ordered by creation time
func (st *Store) All() []*Session {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt().Equal(all[j].CreatedAt()) {
			return all[i].ID() < all[j].ID()
		}
		return all[i].CreatedAt().Before(all[j].CreatedAt())
	})
	return all
}

// Len returns the number of sessions in the store
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// CountByStatus tallies sessions per status
func (st *Store) CountByStatus() map[model.SessionStatus]int {
	counts := make(map[model.SessionStatus]int)
	for _, s := range st.All() {
		s.Lock()
		counts[s.Status()]++
		s.Unlock()
	}
	return counts
}
