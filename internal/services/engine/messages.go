package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/session"
)

// HandleConnect is called once the gateway has upgraded a connection
func (e *Engine) HandleConnect(c Client) {
	e.logger.Debug("client connected", slog.String("connection_id", c.ID()))
}

// HandleMessage routes one decoded client message. Failures are reported to
// the sending client only.
func (e *Engine) HandleMessage(c Client, msg protocol.Inbound) {
	var err error
	switch m := msg.(type) {
	case protocol.Authenticate:
		err = e.authenticate(c, m)
	case protocol.Heartbeat:
		e.heartbeat(c)
	case protocol.JoinGame, protocol.GameAction, protocol.LeaveGame:
		// A connection replaced by a newer login may still deliver messages
		// until its socket closes; it no longer speaks for the player.
		if !c.Authenticated() || !e.isLive(c) {
			err = model.ErrNotAuthenticated
			break
		}
		switch m := msg.(type) {
		case protocol.JoinGame:
			err = e.join(c, m)
		case protocol.GameAction:
			err = e.act(c, m)
		case protocol.LeaveGame:
			err = e.leave(c, m)
		}
	default:
		err = fmt.Errorf("%w: %s", model.ErrUnknownMessage, msg.MessageType())
	}

	if err != nil {
		e.reject(c, msg, err)
	}
}

// HandleDisconnect detaches the player bound to the connection. A player
// still in a session leaves it, which may end the session.
func (e *Engine) HandleDisconnect(c Client, reason string) {
	playerID := c.PlayerID()
	if playerID == "" {
		return
	}
	// A connection replaced by a newer one no longer speaks for the player
	if !e.players.Detach(playerID, c.ID()) {
		return
	}
	e.logger.Info("player detached",
		slog.String("player_id", string(playerID)),
		slog.String("connection_id", c.ID()),
		slog.String("reason", reason))

	sessionID := e.players.CurrentSession(playerID)
	if sessionID == nil {
		return
	}
	s, err := e.sessions.Get(*sessionID)
	if err != nil {
		e.players.SetCurrentSession(playerID, nil)
		return
	}
	s.Lock()
	ended := e.leaveLocked(s, playerID)
	s.Unlock()
	e.afterEnd(ended)
}

// isLive reports whether c is still the registered connection of its player
func (e *Engine) isLive(c Client) bool {
	live, ok := e.players.Lookup(c.PlayerID())
	return ok && live.ID() == c.ID()
}

func (e *Engine) reject(c Client, msg protocol.Inbound, err error) {
	level := slog.LevelDebug
	if model.KindOf(err) == model.KindInternal {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "message failed",
		slog.String("connection_id", c.ID()),
		slog.String("player_id", string(c.PlayerID())),
		slog.String("message_type", string(msg.MessageType())),
		slog.String("error", err.Error()))
	e.metrics.ClientError(model.CodeOf(err))
	_ = c.Send(protocol.ErrorFrom(err, e.clock.Now()))
}

func (e *Engine) authenticate(c Client, m protocol.Authenticate) error {
	if c.Authenticated() {
		return model.ErrAlreadyAuthenticated
	}

	identity, err := e.auth.Verify(m.Token)
	if err != nil {
		e.logger.Info("authentication failed",
			slog.String("connection_id", c.ID()),
			slog.String("error", err.Error()))
		e.metrics.ClientError(model.CodeOf(err))
		_ = c.Send(protocol.AuthenticationFailed(err.Error(), e.clock.Now()))
		return nil
	}
	if !c.Authenticate(identity.PlayerID) {
		return model.ErrAuthenticationTimeout
	}

	playerID := identity.PlayerID
	if evicted := e.players.Register(playerID, c); evicted != nil {
		e.logger.Info("replacing connection",
			slog.String("player_id", string(playerID)),
			slog.String("old_connection_id", evicted.ID()),
			slog.String("new_connection_id", c.ID()))
		_ = evicted.Send(protocol.ErrorFrom(model.ErrSessionReplaced, e.clock.Now()))
		evicted.Close(gateway.ReasonReplaced)
		e.metrics.ConnectionEvicted()
	}
	for key, value := range identity.Attributes {
		e.players.SetAttribute(playerID, key, value)
	}

	_ = c.Send(protocol.AuthenticationOK(playerID, e.clock.Now()))
	e.logger.Info("player authenticated",
		slog.String("player_id", string(playerID)),
		slog.String("connection_id", c.ID()))

	e.resync(c, playerID)
	return nil
}

// resync sends the current session to a player who reconnected into it
func (e *Engine) resync(c Client, playerID model.PlayerID) {
	sessionID := e.players.CurrentSession(playerID)
	if sessionID == nil {
		return
	}
	s, err := e.sessions.Get(*sessionID)
	if err != nil {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.Has(playerID) && !s.Status().IsTerminal() {
		_ = c.Send(protocol.GameJoined(s.Snapshot(), e.clock.Now()))
	}
}

func (e *Engine) join(c Client, m protocol.JoinGame) error {
	if e.closing.Load() {
		return fmt.Errorf("%w: server is shutting down", model.ErrWrongStatus)
	}

	playerID := c.PlayerID()
	if current := e.players.CurrentSession(playerID); current != nil {
		return fmt.Errorf("%w: %s", model.ErrAlreadyInSession, *current)
	}

	gameType := m.GameType
	if _, err := e.rules.Get(gameType); err != nil {
		return err
	}
	e.hydrateStats(playerID)

	if m.IsAuto() {
		cfg := m.Config.Resolve(e.config.DefaultSessionConfig)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !cfg.AcceptsStake(m.Stake) {
			return fmt.Errorf("stake %d: %w", m.Stake, model.ErrStakeOutOfBounds)
		}
		return e.joinAuto(playerID, gameType, cfg, m.Stake)
	}

	s, err := e.sessions.Get(model.SessionID(m.SessionID))
	if err != nil {
		return err
	}
	if s.GameType() != gameType {
		return fmt.Errorf("%w: %s plays %s", model.ErrGameTypeMismatch, s.ID(), s.GameType())
	}
	return e.joinSession(s, playerID, m.Stake)
}

// joinAuto places the player in the oldest compatible waiting session,
// creating one when none has room. Losing a race for the last seat retries.
func (e *Engine) joinAuto(playerID model.PlayerID, gameType model.GameType, cfg model.SessionConfig, stake int64) error {
	var lastErr error
	for range e.config.JoinAttempts {
		s := e.sessions.FindJoinable(gameType, cfg)
		if s == nil {
			created, err := e.sessions.Create(gameType, cfg)
			if err != nil {
				return err
			}
			e.metrics.SessionCreated(gameType)
			s = created
		}

		err := e.joinSession(s, playerID, stake)
		if errors.Is(err, model.ErrSessionFull) || errors.Is(err, model.ErrWrongStatus) {
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

func (e *Engine) joinSession(s *session.Session, playerID model.PlayerID, stake int64) error {
	now := e.clock.Now()

	s.Lock()
	full, err := s.Join(playerID, stake, now)
	if err != nil {
		s.Unlock()
		return err
	}
	sessionID := s.ID()
	e.players.SetCurrentSession(playerID, &sessionID)
	e.players.Touch(playerID)

	e.dispatcher.SendTo(playerID, protocol.GameJoined(s.Snapshot(), now))
	e.dispatcher.Broadcast(s.Players(), protocol.PlayerJoined(sessionID, playerID, s.RosterSize(), now), playerID)

	var ended *finished
	if full {
		ended = e.startLocked(s)
	}
	s.Unlock()

	e.logger.Info("player joined session",
		slog.String("player_id", string(playerID)),
		slog.String("session_id", string(sessionID)),
		slog.Int64("stake", stake))
	e.afterEnd(ended)
	return nil
}

func (e *Engine) act(c Client, m protocol.GameAction) error {
	playerID := c.PlayerID()
	s, err := e.sessions.Get(m.SessionID)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	act := model.Action{
		PlayerID:    playerID,
		SessionID:   s.ID(),
		Type:        m.ActionType,
		Payload:     m.Data,
		SubmittedAt: now,
	}

	s.Lock()
	out, err := e.processor.Process(s, act)
	if err == nil {
		e.dispatcher.Broadcast(s.Players(), protocol.GameUpdate(s.Snapshot(), act, out.Events, now))
	}
	var ended *finished
	if out.SessionEnded {
		ended = e.announceLocked(s, out.Result)
	}
	s.Unlock()

	e.players.Touch(playerID)
	e.afterEnd(ended)
	return err
}

func (e *Engine) leave(c Client, m protocol.LeaveGame) error {
	s, err := e.sessions.Get(m.SessionID)
	if err != nil {
		return err
	}
	s.Lock()
	ended := e.leaveLocked(s, c.PlayerID())
	s.Unlock()
	e.afterEnd(ended)
	return nil
}

func (e *Engine) heartbeat(c Client) {
	if c.Authenticated() {
		e.players.Touch(c.PlayerID())
	}
	_ = c.Send(protocol.HeartbeatAck(e.clock.Now()))
}

// hydrateStats loads persisted stats the first time a player joins a session
func (e *Engine) hydrateStats(playerID model.PlayerID) {
	state, ok := e.players.State(playerID)
	if !ok || state.Stats != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.StorageTimeout)
	defer cancel()
	stats, err := e.persistence.GetPlayerStats(ctx, playerID)
	switch {
	case errors.Is(err, model.ErrPlayerNotFound):
		stats = &model.PlayerStats{PlayerID: playerID}
	case err != nil:
		e.logger.Warn("failed to load player stats",
			slog.String("player_id", string(playerID)),
			slog.String("error", err.Error()))
		e.metrics.CollaboratorFailed(collaboratorPersistence)
		return
	}
	e.players.SetStats(playerID, *stats)
}
