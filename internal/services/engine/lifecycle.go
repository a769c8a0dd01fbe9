package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cenkalti/backoff/v5"

	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/analysis"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/services/session"
)

// Collaborator names used in logs and metrics
const (
	collaboratorSettlement  = "settlement"
	collaboratorPersistence = "persistence"
	collaboratorAnalysis    = "analysis"
)

// finished is a session that reached its terminal state under the lock and
// still needs its after-effects run once the lock is released
type finished struct {
	result *model.SessionResult
	events []model.Event
}

// startLocked moves a waiting session to active. A rule set that cannot
// build its initial state aborts the session.
func (e *Engine) startLocked(s *session.Session) *finished {
	now := e.clock.Now()

	rs, err := e.rules.Get(s.GameType())
	var state json.RawMessage
	if err == nil {
		state, err = safeInit(rs, s.Players(), e.random.Int63())
	}
	if err == nil {
		err = s.Start(state, now)
	}
	if err != nil {
		e.logger.Error("failed to start session",
			slog.String("session_id", string(s.ID())),
			slog.String("error", err.Error()))
		return e.finishLocked(s, model.EndReasonInternalError)
	}

	e.dispatcher.Broadcast(s.Players(), protocol.GameStarted(s.Snapshot(), now))
	e.logger.Info("session started",
		slog.String("session_id", string(s.ID())),
		slog.String("game_type", string(s.GameType())),
		slog.Int("players", s.RosterSize()))
	return nil
}

// leaveLocked removes a player and ends the session if too few remain.
// Leaving twice is a no-op.
func (e *Engine) leaveLocked(s *session.Session, playerID model.PlayerID) *finished {
	now := e.clock.Now()
	if !s.Leave(playerID, now) {
		return nil
	}

	sessionID := s.ID()
	e.players.ClearSession(playerID, sessionID)
	e.dispatcher.Broadcast(append(s.Players(), playerID), protocol.PlayerLeft(sessionID, playerID, s.RosterSize(), now))
	e.logger.Info("player left session",
		slog.String("player_id", string(playerID)),
		slog.String("session_id", string(sessionID)),
		slog.Int("remaining", s.RosterSize()))

	switch s.Status() {
	case model.SessionStatusActive:
		if s.RosterSize() < s.Config().MinPlayers {
			return e.finishLocked(s, model.EndReasonInsufficientPlayers)
		}
	case model.SessionStatusWaiting:
		if s.RosterSize() == 0 {
			return e.finishLocked(s, model.EndReasonInsufficientPlayers)
		}
	}
	return nil
}

// finishLocked is the only way the engine ends a session on its own
func (e *Engine) finishLocked(s *session.Session, reason model.EndReason) *finished {
	result, ok := s.Finish(reason, e.clock.Now())
	if !ok {
		return nil
	}
	return e.announceLocked(s, result)
}

// announceLocked broadcasts the result to the remaining roster and releases
// every player from the session
func (e *Engine) announceLocked(s *session.Session, result *model.SessionResult) *finished {
	if result == nil {
		return nil
	}
	e.dispatcher.Broadcast(s.Players(), protocol.GameEnded(*result, e.clock.Now()))
	for _, playerID := range s.Players() {
		e.players.ClearSession(playerID, s.ID())
	}
	e.metrics.SessionEnded(result)

	attrs := []any{
		slog.String("session_id", string(result.SessionID)),
		slog.String("status", string(result.Status)),
		slog.String("reason", string(result.Reason)),
	}
	if result.Winner != nil {
		attrs = append(attrs, slog.String("winner", string(*result.Winner)))
	}
	e.logger.Info("session ended", attrs...)

	return &finished{result: result, events: s.Events()}
}

// afterEnd evicts the session and hands its result to the collaborators.
// It must be called without the session lock held.
func (e *Engine) afterEnd(f *finished) {
	if f == nil {
		return
	}
	result := f.result
	e.sessions.Remove(result.SessionID)

	e.submit(collaboratorSettlement, func(ctx context.Context) error {
		return e.settle(ctx, result)
	})
	for _, score := range result.Scores {
		playerID := score.PlayerID
		e.submit(collaboratorPersistence, func(ctx context.Context) error {
			return e.recordStats(ctx, playerID, result)
		})
		e.submit(collaboratorAnalysis, func(ctx context.Context) error {
			return e.analyze(ctx, playerID, f)
		})
	}
}

func (e *Engine) submit(name string, job func(ctx context.Context) error) {
	if err := e.pool.Submit(name, job); err != nil {
		e.logger.Warn("dropping background job",
			slog.String("job", name),
			slog.String("error", err.Error()))
		e.metrics.CollaboratorFailed(name)
	}
}

// settle reports a result to the settlement collaborator, retrying with
// exponential backoff. The collaborator deduplicates by session id.
func (e *Engine) settle(ctx context.Context, result *model.SessionResult) error {
	op := func() (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.config.StorageTimeout)
		defer cancel()
		return e.settlement.RecordResult(callCtx, result)
	}

	stored, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(e.config.SettlementMaxElapsed))
	if err != nil {
		e.metrics.CollaboratorFailed(collaboratorSettlement)
		return fmt.Errorf("settling session %s: %w", result.SessionID, err)
	}
	if !stored {
		e.logger.Debug("result already settled", slog.String("session_id", string(result.SessionID)))
	}
	return nil
}

func (e *Engine) recordStats(ctx context.Context, playerID model.PlayerID, result *model.SessionResult) error {
	callCtx, cancel := context.WithTimeout(ctx, e.config.StorageTimeout)
	defer cancel()

	stats, err := e.persistence.ApplyResult(callCtx, playerID, result)
	if err != nil {
		e.metrics.CollaboratorFailed(collaboratorPersistence)
		return fmt.Errorf("recording stats for %s: %w", playerID, err)
	}
	e.players.SetStats(playerID, *stats)
	return nil
}

// analyze asks the analysis collaborator about one player's behaviour in a
// finished session. The verdict is advisory and only stored.
func (e *Engine) analyze(ctx context.Context, playerID model.PlayerID, f *finished) error {
	score, _ := f.result.ScoreFor(playerID)
	req := analysis.Request{
		PlayerID:  playerID,
		SessionID: f.result.SessionID,
		GameType:  f.result.GameType,
		Reason:    f.result.Reason,
		Score:     score.Score,
		Stake:     score.Stake,
	}
	for _, ev := range f.events {
		if ev.PlayerID == playerID {
			req.Events = append(req.Events, ev)
		}
	}

	verdict, err := e.analyzer.Analyze(ctx, req)
	if err != nil {
		e.metrics.CollaboratorFailed(collaboratorAnalysis)
		return fmt.Errorf("analysing %s in %s: %w", playerID, f.result.SessionID, err)
	}
	if verdict == nil {
		return nil
	}
	if verdict.RiskScore >= highRiskScore {
		e.logger.Warn("high risk score",
			slog.String("player_id", string(playerID)),
			slog.String("session_id", string(f.result.SessionID)),
			slog.Float64("risk_score", verdict.RiskScore),
			slog.String("recommendation", verdict.Recommendation))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	if err := e.persistence.SaveAnalysis(callCtx, verdict); err != nil {
		e.metrics.CollaboratorFailed(collaboratorPersistence)
		return fmt.Errorf("saving analysis for %s: %w", playerID, err)
	}
	return nil
}

// highRiskScore is where an analysis verdict gets logged as a warning
const highRiskScore = 0.8

// Terminate ends a session for an external reason such as an operator
// request, the time limit or shutdown
func (e *Engine) Terminate(id model.SessionID, reason model.EndReason) (*model.SessionResult, error) {
	return e.TerminateWhen(id, func(*session.Session) (model.EndReason, bool) {
		return reason, true
	})
}

// TerminateWhen ends a session if decide, evaluated under the session lock,
// asks for it. It returns a nil result when decide declined.
func (e *Engine) TerminateWhen(id model.SessionID, decide func(s *session.Session) (model.EndReason, bool)) (*model.SessionResult, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	s.Lock()
	if s.Status().IsTerminal() {
		s.Unlock()
		return nil, fmt.Errorf("%w: session %s has already ended", model.ErrWrongStatus, id)
	}
	reason, ok := decide(s)
	var ended *finished
	if ok {
		ended = e.finishLocked(s, reason)
	}
	s.Unlock()

	e.afterEnd(ended)
	if ended == nil {
		return nil, nil
	}
	return ended.result, nil
}

// StartSession starts a waiting session before its roster is full
func (e *Engine) StartSession(id model.SessionID) (model.SessionSnapshot, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}

	s.Lock()
	if s.Status() != model.SessionStatusWaiting {
		s.Unlock()
		return model.SessionSnapshot{}, fmt.Errorf("%w: session %s is %s", model.ErrWrongStatus, id, s.Status())
	}
	if s.RosterSize() < s.Config().MinPlayers {
		s.Unlock()
		return model.SessionSnapshot{}, fmt.Errorf("%w: session %s needs %d players", model.ErrWrongStatus, id, s.Config().MinPlayers)
	}
	ended := e.startLocked(s)
	snap := s.Snapshot()
	s.Unlock()

	e.afterEnd(ended)
	if ended != nil {
		return snap, fmt.Errorf("%w: session %s failed to start", model.ErrInternal, id)
	}
	return snap, nil
}

// Shutdown aborts every live session, closes the client connections after
// their pending messages are written and waits for background jobs
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("shutting down engine", slog.Int("sessions", e.sessions.Len()))

	for _, s := range e.sessions.All() {
		if _, err := e.Terminate(s.ID(), model.EndReasonShutdown); err != nil && !errors.Is(err, model.ErrWrongStatus) && !errors.Is(err, model.ErrSessionNotFound) {
			e.logger.Warn("failed to abort session",
				slog.String("session_id", string(s.ID())),
				slog.String("error", err.Error()))
		}
	}

	var errs []error
	if e.connections != nil {
		if err := e.connections.CloseAll(ctx, gateway.ReasonShutdown); err != nil {
			errs = append(errs, fmt.Errorf("closing connections: %w", err))
		}
	}
	if err := e.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping workers: %w", err))
	}
	return errors.Join(errs...)
}

// safeInit converts a panic in a rule set's Init into an error
func safeInit(rs rules.Rules, roster []model.PlayerID, seed int64) (state json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s rules: %v\n%s", rs.Type(), r, debug.Stack())
		}
	}()
	return rs.Init(roster, seed)
}
