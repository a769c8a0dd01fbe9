// Package liveness runs the periodic sweep that enforces time limits:
// idle connections, session durations, stale waiting sessions and players
// who never came back.
package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/registry"
	"github.com/mcoot/arenaengine/internal/services/session"
)

// Config holds the sweep interval and the limits it enforces
type Config struct {
	Interval       time.Duration
	IdleTimeout    time.Duration
	WaitTimeout    time.Duration
	ReconnectGrace time.Duration
}

// DefaultConfig returns the default limits
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		IdleTimeout:    60 * time.Second,
		WaitTimeout:    120 * time.Second,
		ReconnectGrace: 30 * time.Second,
	}
}

// Terminator ends a session if decide agrees under the session lock
type Terminator interface {
	TerminateWhen(id model.SessionID, decide func(s *session.Session) (model.EndReason, bool)) (*model.SessionResult, error)
}

// IdleConn is a connection the sweep may close. Closing it must run the
// engine's disconnect path.
type IdleConn interface {
	ID() string
	PlayerID() model.PlayerID
	Close(reason string)
}

// IdleConnections lists connections that have been silent since cutoff
type IdleConnections interface {
	IdleSince(cutoff time.Time) []IdleConn
}

type gatewayConnections struct {
	gw *gateway.Gateway
}

// GatewayConnections exposes the gateway's idle connections to the sweep
func GatewayConnections(gw *gateway.Gateway) IdleConnections {
	return gatewayConnections{gw: gw}
}

func (g gatewayConnections) IdleSince(cutoff time.Time) []IdleConn {
	idle := g.gw.IdleSince(cutoff)
	conns := make([]IdleConn, 0, len(idle))
	for _, c := range idle {
		conns = append(conns, c)
	}
	return conns
}

// SweepStats counts what one sweep did
type SweepStats struct {
	IdleClosed int       `json:"idle_closed"`
	TimedOut   int       `json:"timed_out"`
	Abandoned  int       `json:"abandoned"`
	Expired    int       `json:"expired"`
	Purged     int       `json:"purged"`
	At         time.Time `json:"at"`
}

// Supervisor enforces liveness limits on a ticker
type Supervisor struct {
	config     Config
	sessions   *session.Store
	terminator Terminator
	players    *registry.Registry
	conns      IdleConnections
	clock      clock.Clock
	metrics    *metrics.Collector
	logger     *slog.Logger

	mu   sync.RWMutex
	last SweepStats
}

// New creates a supervisor. conns may be nil when there is no gateway.
func New(cfg Config, sessions *session.Store, terminator Terminator, players *registry.Registry, conns IdleConnections, clock clock.Clock, collector *metrics.Collector, logger *slog.Logger) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Supervisor{
		config:     cfg,
		sessions:   sessions,
		terminator: terminator,
		players:    players,
		conns:      conns,
		clock:      clock,
		metrics:    collector,
		logger:     logger.With(slog.String("component", "liveness")),
	}
}

// Run sweeps every interval until ctx is done
func (sv *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(sv.config.Interval)
	defer ticker.Stop()

	sv.Sweep()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sv.Sweep()
		}
	}
}

// Last returns the stats of the most recent sweep
func (sv *Supervisor) Last() SweepStats {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.last
}

// Sweep applies every limit once
func (sv *Supervisor) Sweep() SweepStats {
	now := sv.clock.Now()
	stats := SweepStats{At: now}

	if sv.conns != nil && sv.config.IdleTimeout > 0 {
		for _, c := range sv.conns.IdleSince(now.Add(-sv.config.IdleTimeout)) {
			sv.logger.Info("closing idle connection",
				slog.String("connection_id", c.ID()),
				slog.String("player_id", string(c.PlayerID())))
			c.Close(gateway.ReasonIdle)
			stats.IdleClosed++
		}
	}

	for _, s := range sv.sessions.All() {
		result, err := sv.terminator.TerminateWhen(s.ID(), func(s *session.Session) (model.EndReason, bool) {
			return sv.verdict(s, now)
		})
		switch {
		case err != nil:
			if !errors.Is(err, model.ErrSessionNotFound) && !errors.Is(err, model.ErrWrongStatus) {
				sv.logger.Warn("failed to end session",
					slog.String("session_id", string(s.ID())),
					slog.String("error", err.Error()))
			}
		case result == nil:
		case result.Reason == model.EndReasonTimeout:
			stats.TimedOut++
		case result.Status == model.SessionStatusAborted && result.StartedAt == nil:
			stats.Expired++
		default:
			stats.Abandoned++
		}
	}

	if sv.config.ReconnectGrace > 0 {
		stats.Purged = len(sv.players.PurgeDetached(now.Add(-sv.config.ReconnectGrace)))
	}

	sv.metrics.SetSessionCounts(sv.sessions.CountByStatus())

	if stats.IdleClosed+stats.TimedOut+stats.Abandoned+stats.Expired+stats.Purged > 0 {
		sv.logger.Info("sweep completed",
			slog.Int("idle_closed", stats.IdleClosed),
			slog.Int("timed_out", stats.TimedOut),
			slog.Int("abandoned", stats.Abandoned),
			slog.Int("expired", stats.Expired),
			slog.Int("purged", stats.Purged))
	}

	sv.mu.Lock()
	sv.last = stats
	sv.mu.Unlock()
	return stats
}

// verdict decides whether a session has outlived its limits. It runs with
// the session lock held.
func (sv *Supervisor) verdict(s *session.Session, now time.Time) (model.EndReason, bool) {
	switch s.Status() {
	case model.SessionStatusActive:
		if started := s.StartedAt(); started != nil && now.Sub(*started) >= s.Config().MaxDuration {
			return model.EndReasonTimeout, true
		}
		if s.RosterSize() < s.Config().MinPlayers {
			return model.EndReasonInsufficientPlayers, true
		}
	case model.SessionStatusWaiting:
		if sv.config.WaitTimeout > 0 && now.Sub(s.CreatedAt()) >= sv.config.WaitTimeout {
			return model.EndReasonInsufficientPlayers, true
		}
	}
	return "", false
}
