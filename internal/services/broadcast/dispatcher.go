// Package broadcast fans envelopes out to the players of a session.
//
// Ordering is inherited rather than enforced here: callers broadcast while
// holding the session's lock, and every connection drains a FIFO queue, so two
// broadcasts for one session reach each recipient in the order they were made.
package broadcast

import (
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/registry"
)

// Directory resolves a player to their live connection
type Directory interface {
	Lookup(playerID model.PlayerID) (registry.Conn, bool)
}

// Delivery summarises a fan-out
type Delivery struct {
	Delivered int
	Skipped   int // recipient had no live connection
	Failed    int // connection refused the envelope
}

// Dispatcher sends envelopes to players through their connections
type Dispatcher struct {
	directory Directory
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// New creates a dispatcher
func New(directory Directory, collector *metrics.Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		metrics:   collector,
		logger:    logger.With(slog.String("component", "broadcast")),
	}
}

// Broadcast sends env to every recipient not in exclude. Unreachable
// recipients are skipped silently.
func (d *Dispatcher) Broadcast(recipients []model.PlayerID, env protocol.Envelope, exclude ...model.PlayerID) Delivery {
	var delivery Delivery
	for _, playerID := range lo.Uniq(recipients) {
		if slices.Contains(exclude, playerID) {
			continue
		}
		switch d.deliver(playerID, env) {
		case deliverOK:
			delivery.Delivered++
		case deliverSkipped:
			delivery.Skipped++
		case deliverFailed:
			delivery.Failed++
		}
	}

	if delivery.Failed > 0 {
		d.logger.Warn("broadcast partial failure",
			slog.String("type", string(env.Type)),
			slog.Int("delivered", delivery.Delivered),
			slog.Int("failed", delivery.Failed))
	}
	return delivery
}

// SendTo sends env to a single player and reports whether it was queued
func (d *Dispatcher) SendTo(playerID model.PlayerID, env protocol.Envelope) bool {
	return d.deliver(playerID, env) == deliverOK
}

type deliverResult int

const (
	deliverOK deliverResult = iota
	deliverSkipped
	deliverFailed
)

func (d *Dispatcher) deliver(playerID model.PlayerID, env protocol.Envelope) deliverResult {
	conn, ok := d.directory.Lookup(playerID)
	if !ok {
		d.metrics.MessageSkipped()
		return deliverSkipped
	}
	if err := conn.Send(env); err != nil {
		d.logger.Debug("send failed",
			slog.String("player_id", string(playerID)),
			slog.String("connection_id", conn.ID()),
			slog.String("error", err.Error()))
		return deliverFailed
	}
	d.metrics.MessageSent(string(env.Type))
	return deliverOK
}
