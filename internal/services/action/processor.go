// Package action validates and applies player actions to sessions.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/services/session"
)

// Outcome is what a processed action did to its session
type Outcome struct {
	State        json.RawMessage
	Events       []model.Event
	SessionEnded bool
	Result       *model.SessionResult
}

// Processor runs the validation pipeline and the game-type plug-in
type Processor struct {
	rules   *rules.Registry
	clock   clock.Clock
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewProcessor creates an action processor
func NewProcessor(registry *rules.Registry, clock clock.Clock, collector *metrics.Collector, logger *slog.Logger) *Processor {
	return &Processor{
		rules:   registry,
		clock:   clock,
		metrics: collector,
		logger:  logger.With(slog.String("component", "action_processor")),
	}
}

// Process validates the action and applies it. The caller must hold the
// session lock.
//
// Validation runs in a fixed order: the session must be active, the player
// must be on the roster, and the action type must be declared by the game
// type. A rule rejection leaves the state untouched. Any other failure inside
// the rule set, including a panic, aborts the session with internal_error; the
// returned Outcome then carries the result alongside the error.
func (p *Processor) Process(s *session.Session, action model.Action) (Outcome, error) {
	start := p.clock.Now()

	if s.Status() != model.SessionStatusActive {
		return Outcome{}, fmt.Errorf("session %s is %s: %w", s.ID(), s.Status(), model.ErrSessionNotActive)
	}
	if !s.Has(action.PlayerID) {
		return Outcome{}, fmt.Errorf("player %s in session %s: %w", action.PlayerID, s.ID(), model.ErrPlayerNotInSession)
	}
	rs, err := p.rules.Get(s.GameType())
	if err != nil {
		return p.fail(s, action, err)
	}
	if !rules.IsValidAction(rs, action.Type) {
		p.metrics.ActionProcessed(s.GameType(), metrics.OutcomeInvalid, p.clock.Since(start))
		return Outcome{}, fmt.Errorf("%q for %s: %w", action.Type, s.GameType(), model.ErrInvalidAction)
	}

	next, events, err := safeApply(rs, s.State(), action)
	if err != nil {
		if errors.Is(err, rules.ErrRejected) {
			p.metrics.ActionProcessed(s.GameType(), metrics.OutcomeRejected, p.clock.Since(start))
			return Outcome{}, fmt.Errorf("%w: %s", model.ErrActionRejected, err.Error())
		}
		return p.fail(s, action, err)
	}

	now := p.clock.Now()
	events = append([]model.Event{{
		Type:     model.EventActionApplied,
		PlayerID: action.PlayerID,
		Payload:  action.Type,
	}}, events...)
	if err := s.Commit(next, events, now); err != nil {
		return p.fail(s, action, err)
	}

	out := Outcome{State: next, Events: events}
	if slices.ContainsFunc(events, func(e model.Event) bool { return e.Type == model.EventGameOver }) {
		out.Result, out.SessionEnded = s.Finish(model.EndReasonNormal, now)
	}

	p.metrics.ActionProcessed(s.GameType(), metrics.OutcomeApplied, p.clock.Since(start))
	return out, nil
}

// fail aborts the session after an unexpected rule failure
func (p *Processor) fail(s *session.Session, action model.Action, cause error) (Outcome, error) {
	p.logger.Error("action failed, aborting session",
		slog.String("session_id", string(s.ID())),
		slog.String("player_id", string(action.PlayerID)),
		slog.String("action_type", string(action.Type)),
		slog.String("error", cause.Error()))
	p.metrics.ActionProcessed(s.GameType(), metrics.OutcomeInternal, 0)

	result, ended := s.Finish(model.EndReasonInternalError, p.clock.Now())
	return Outcome{SessionEnded: ended, Result: result}, fmt.Errorf("%w: %v", model.ErrInternal, cause)
}

// safeApply converts a panic in the rule set into an error
func safeApply(rs rules.Rules, state json.RawMessage, action model.Action) (next json.RawMessage, events []model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s rules: %v\n%s", rs.Type(), r, debug.Stack())
		}
	}()
	return rs.Apply(state, action)
}
