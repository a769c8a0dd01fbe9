// Package registry maps authenticated player ids to their live connection
// and per-player state.
//
// At most one live connection exists per player. When a player registers
// again the newer connection wins: the stale one is returned to the caller
// to be told and closed.
package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
)

// Conn is the registry's view of a connection. The gateway owns it.
type Conn interface {
	ID() string
	Send(env protocol.Envelope) error
	Close(reason string)
}

type entry struct {
	conn  Conn // nil while detached
	state model.PlayerState
}

// Registry tracks players and their connections
type Registry struct {
	mu      sync.RWMutex
	players map[model.PlayerID]*entry

	clock  clock.Clock
	logger *slog.Logger
}

// New creates an empty registry
func New(clock clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		players: make(map[model.PlayerID]*entry),
		clock:   clock,
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Register binds conn to the player. If another connection was live for the
// same player it is returned as evicted; the caller notifies and closes it
// outside the registry lock. A detached player's state survives re-registration.
func (r *Registry) Register(playerID model.PlayerID, conn Conn) (evicted Conn) {
	now := r.clock.Now()

	r.mu.Lock()
	e, ok := r.players[playerID]
	if !ok {
		e = &entry{state: model.PlayerState{ID: playerID, JoinedAt: now}}
		r.players[playerID] = e
	}
	if e.conn != nil && e.conn.ID() != conn.ID() {
		evicted = e.conn
	}
	e.conn = conn
	e.state.Authenticated = true
	e.state.DetachedAt = nil
	e.state.LastActionAt = now
	r.mu.Unlock()

	if evicted != nil {
		r.logger.Info("evicting stale connection",
			slog.String("player_id", string(playerID)),
			slog.String("evicted_connection_id", evicted.ID()),
			slog.String("connection_id", conn.ID()))
	}
	return evicted
}

// Lookup returns the player's live connection
func (r *Registry) Lookup(playerID model.PlayerID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[playerID]
	if !ok || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

// State returns a copy of the player's state
func (r *Registry) State(playerID model.PlayerID) (model.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[playerID]
	if !ok {
		return model.PlayerState{}, false
	}
	state := e.state
	state.Attributes = maps.Clone(e.state.Attributes)
	return state, true
}

// SetCurrentSession records (or clears, with nil) the player's session
func (r *Registry) SetCurrentSession(playerID model.PlayerID, sessionID *model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[playerID]; ok {
		e.state.SessionID = sessionID
	}
}

// ClearSession clears the player's session only if it still points at sessionID
func (r *Registry) ClearSession(playerID model.PlayerID, sessionID model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[playerID]; ok && e.state.SessionID != nil && *e.state.SessionID == sessionID {
		e.state.SessionID = nil
	}
}

// CurrentSession returns the player's session, if any
func (r *Registry) CurrentSession(playerID model.PlayerID) *model.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[playerID]
	if !ok || !e.state.InSession() {
		return nil
	}
	id := *e.state.SessionID
	return &id
}

// SetStats caches the player's persisted stats
func (r *Registry) SetStats(playerID model.PlayerID, stats model.PlayerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[playerID]; ok {
		e.state.Stats = &stats
	}
}

// SetAttribute stores a game-specific attribute on the player
func (r *Registry) SetAttribute(playerID model.PlayerID, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[playerID]; ok {
		if e.state.Attributes == nil {
			e.state.Attributes = make(map[string]any)
		}
		e.state.Attributes[key] = value
	}
}

// Touch records player activity
func (r *Registry) Touch(playerID model.PlayerID) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[playerID]; ok {
		e.state.LastActionAt = now
	}
}

// Detach drops the player's connection if connID is still the live one and
// keeps the state for a reconnect. It returns false when a newer connection
// has already replaced connID.
func (r *Registry) Detach(playerID model.PlayerID, connID string) bool {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[playerID]
	if !ok || e.conn == nil || e.conn.ID() != connID {
		return false
	}
	e.conn = nil
	e.state.DetachedAt = &now
	return true
}

// Unregister forgets the player entirely. Calling it again is a no-op.
func (r *Registry) Unregister(playerID model.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, playerID)
}

// PurgeDetached unregisters players detached before cutoff and returns them
func (r *Registry) PurgeDetached(cutoff time.Time) []model.PlayerID {
	r.mu.Lock()
	var purged []model.PlayerID
	for id, e := range r.players {
		if e.conn == nil && e.state.DetachedAt != nil && e.state.DetachedAt.Before(cutoff) {
			delete(r.players, id)
			purged = append(purged, id)
		}
	}
	r.mu.Unlock()

	slices.Sort(purged)
	if len(purged) > 0 {
		r.logger.Info("purged detached players", slog.Int("count", len(purged)))
	}
	return purged
}

// Connections returns every live connection
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.players))
	for _, e := range r.players {
		if e.conn != nil {
			conns = append(conns, e.conn)
		}
	}
	return conns
}

// Connected returns the number of players with a live connection
func (r *Registry) Connected() int {
	return len(r.Connections())
}

// Len returns the number of known players, connected or detached
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
