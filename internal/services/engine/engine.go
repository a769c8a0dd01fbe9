// Package engine ties the session engine together: it receives decoded
// client messages from the gateway, drives sessions through their lifecycle
// and hands finished sessions to the collaborators.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/dependencies/random"
	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/action"
	"github.com/mcoot/arenaengine/internal/services/analysis"
	"github.com/mcoot/arenaengine/internal/services/auth"
	"github.com/mcoot/arenaengine/internal/services/broadcast"
	"github.com/mcoot/arenaengine/internal/services/registry"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/services/session"
	"github.com/mcoot/arenaengine/internal/worker"
)

// TokenVerifier resolves the token carried by authenticate
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Settlement receives every session result exactly once per session id
type Settlement interface {
	RecordResult(ctx context.Context, result *model.SessionResult) (bool, error)
}

// Persistence stores per-player data across sessions
type Persistence interface {
	GetPlayerStats(ctx context.Context, id model.PlayerID) (*model.PlayerStats, error)
	ApplyResult(ctx context.Context, id model.PlayerID, result *model.SessionResult) (*model.PlayerStats, error)
	SaveAnalysis(ctx context.Context, analysis *model.Analysis) error
}

// ConnectionCloser closes every client connection on shutdown
type ConnectionCloser interface {
	CloseAll(ctx context.Context, reason string) error
}

// Client is the engine's view of a connection
type Client interface {
	registry.Conn
	Authenticate(playerID model.PlayerID) bool
	Authenticated() bool
	PlayerID() model.PlayerID
}

// Config holds engine tunables
type Config struct {
	// DefaultSessionConfig fills in whatever a join_game leaves out
	DefaultSessionConfig model.SessionConfig
	// StorageTimeout bounds each collaborator call
	StorageTimeout time.Duration
	// SettlementMaxElapsed bounds the retries for one result
	SettlementMaxElapsed time.Duration
	// JoinAttempts bounds how often an auto join retries after losing a race
	JoinAttempts int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DefaultSessionConfig: model.DefaultSessionConfig(),
		StorageTimeout:       5 * time.Second,
		SettlementMaxElapsed: 2 * time.Minute,
		JoinAttempts:         3,
	}
}

// Deps are the components the engine coordinates
type Deps struct {
	Auth        TokenVerifier
	Rules       *rules.Registry
	Sessions    *session.Store
	Players     *registry.Registry
	Dispatcher  *broadcast.Dispatcher
	Processor   *action.Processor
	Persistence Persistence
	Settlement  Settlement
	Analyzer    analysis.Analyzer
	Pool        *worker.Pool
	Clock       clock.Clock
	Random      random.Random
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Engine implements gateway.Handler
type Engine struct {
	config Config

	auth        TokenVerifier
	rules       *rules.Registry
	sessions    *session.Store
	players     *registry.Registry
	dispatcher  *broadcast.Dispatcher
	processor   *action.Processor
	persistence Persistence
	settlement  Settlement
	analyzer    analysis.Analyzer
	pool        *worker.Pool
	connections ConnectionCloser

	clock   clock.Clock
	random  random.Random
	metrics *metrics.Collector
	logger  *slog.Logger

	closing atomic.Bool
}

// New creates an engine
func New(cfg Config, deps Deps) *Engine {
	if cfg.JoinAttempts < 1 {
		cfg.JoinAttempts = DefaultConfig().JoinAttempts
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultConfig().StorageTimeout
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.Noop{}
	}
	return &Engine{
		config:      cfg,
		auth:        deps.Auth,
		rules:       deps.Rules,
		sessions:    deps.Sessions,
		players:     deps.Players,
		dispatcher:  deps.Dispatcher,
		processor:   deps.Processor,
		persistence: deps.Persistence,
		settlement:  deps.Settlement,
		analyzer:    analyzer,
		pool:        deps.Pool,
		clock:       deps.Clock,
		random:      deps.Random,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With(slog.String("component", "engine")),
	}
}

// AttachConnections lets Shutdown close client connections
func (e *Engine) AttachConnections(c ConnectionCloser) {
	e.connections = c
}

// Ensure Engine implements the gateway handler
var _ gateway.Handler = (*Engine)(nil)

func (e *Engine) OnConnect(c *gateway.Connection) {
	e.HandleConnect(c)
}

func (e *Engine) OnMessage(c *gateway.Connection, msg protocol.Inbound) {
	e.HandleMessage(c, msg)
}

func (e *Engine) OnDisconnect(c *gateway.Connection, reason string) {
	e.HandleDisconnect(c, reason)
}

// Counts summarises the engine's live state
type Counts struct {
	Sessions  map[model.SessionStatus]int `json:"sessions"`
	Players   int                         `json:"players"`
	Connected int                         `json:"connected"`
	Workers   worker.Status               `json:"workers"`
}

// Counts returns the current session and player totals
func (e *Engine) Counts() Counts {
	return Counts{
		Sessions:  e.sessions.CountByStatus(),
		Players:   e.players.Len(),
		Connected: e.players.Connected(),
		Workers:   e.pool.Status(),
	}
}

// Closing reports whether Shutdown has begun
func (e *Engine) Closing() bool {
	return e.closing.Load()
}

// Sessions returns a snapshot of every live session, oldest first
func (e *Engine) Sessions() []model.SessionSnapshot {
	all := e.sessions.All()
	snaps := make([]model.SessionSnapshot, 0, len(all))
	for _, s := range all {
		s.Lock()
		snaps = append(snaps, s.Snapshot())
		s.Unlock()
	}
	return snaps
}

// Session returns a snapshot of one live session
func (e *Engine) Session(id model.SessionID) (model.SessionSnapshot, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	s.Lock()
	defer s.Unlock()
	return s.Snapshot(), nil
}
