// Package session owns game sessions and their lifecycle state machine.
//
// Each Session is guarded by its own mutex, which is the session's exclusive
// section: every mutator below must be called with the lock held, and callers
// are expected to broadcast the consequences of a mutation before releasing it
// so that all participants observe changes in the same order.
package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mcoot/arenaengine/internal/model"
)

// Session is one game instance with its roster and opaque state blob
type Session struct {
	mu sync.Mutex

	id        model.SessionID
	gameType  model.GameType
	config    model.SessionConfig
	createdAt time.Time

	status    model.SessionStatus
	roster    []model.Participant
	departed  []model.Participant // left while active; kept for the result
	state     json.RawMessage
	startedAt *time.Time
	endedAt   *time.Time
	events    *EventLog
	result    *model.SessionResult
}

func newSession(id model.SessionID, gameType model.GameType, cfg model.SessionConfig, now time.Time, eventLogSize int) *Session {
	return &Session{
		id:        id,
		gameType:  gameType,
		config:    cfg,
		createdAt: now,
		status:    model.SessionStatusWaiting,
		roster:    make([]model.Participant, 0, cfg.MaxPlayers),
		events:    NewEventLog(eventLogSize),
	}
}

// Lock enters the session's exclusive section
func (s *Session) Lock() { s.mu.Lock() }

// Unlock leaves the session's exclusive section
func (s *Session) Unlock() { s.mu.Unlock() }

// ID, GameType, Config and CreatedAt are immutable and safe without the lock

func (s *Session) ID() model.SessionID         { return s.id }
func (s *Session) GameType() model.GameType    { return s.gameType }
func (s *Session) Config() model.SessionConfig { return s.config }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }

// Status returns the lifecycle status
func (s *Session) Status() model.SessionStatus {
	return s.status
}

// StartedAt returns when the session went active, or nil
func (s *Session) StartedAt() *time.Time {
	return s.startedAt
}

// State returns the current game-state blob
func (s *Session) State() json.RawMessage {
	return s.state
}

// Result returns the session result once the session is terminal
func (s *Session) Result() *model.SessionResult {
	return s.result
}

// Has reports whether the player is on the roster
func (s *Session) Has(playerID model.PlayerID) bool {
	return slices.ContainsFunc(s.roster, func(p model.Participant) bool { return p.PlayerID == playerID })
}

// Players returns the roster's player ids in join order
func (s *Session) Players() []model.PlayerID {
	return lo.Map(s.roster, func(p model.Participant, _ int) model.PlayerID { return p.PlayerID })
}

// RosterSize returns the number of players on the roster
func (s *Session) RosterSize() int {
	return len(s.roster)
}

// IsFull returns true when the roster has reached the configured maximum
func (s *Session) IsFull() bool {
	return len(s.roster) >= s.config.MaxPlayers
}

// IsJoinable returns true if another player could join right now
func (s *Session) IsJoinable() bool {
	return s.status == model.SessionStatusWaiting && !s.IsFull()
}

// Join adds a player to the roster.
// It returns whether the roster is now full and the session should start.
func (s *Session) Join(playerID model.PlayerID, stake int64, now time.Time) (bool, error) {
	switch {
	case s.status != model.SessionStatusWaiting:
		return false, fmt.Errorf("joining %s: %w", s.id, model.ErrWrongStatus)
	case s.Has(playerID):
		return false, fmt.Errorf("joining %s: %w", s.id, model.ErrAlreadyInSession)
	case s.IsFull():
		return false, fmt.Errorf("joining %s: %w", s.id, model.ErrSessionFull)
	case !s.config.AcceptsStake(stake):
		return false, fmt.Errorf("joining %s: stake %d: %w", s.id, stake, model.ErrStakeOutOfBounds)
	}

	s.roster = append(s.roster, model.Participant{PlayerID: playerID, Stake: stake, JoinedAt: now})
	s.record(now, model.Event{Type: model.EventPlayerJoined, PlayerID: playerID})
	return s.IsFull(), nil
}

// Leave removes a player from the roster. It returns false if the player was
// not on it, which makes a repeated leave a harmless no-op.
func (s *Session) Leave(playerID model.PlayerID, now time.Time) bool {
	idx := slices.IndexFunc(s.roster, func(p model.Participant) bool { return p.PlayerID == playerID })
	if idx < 0 {
		return false
	}
	if s.status == model.SessionStatusActive {
		s.departed = append(s.departed, s.roster[idx])
	}
	s.roster = slices.Delete(s.roster, idx, idx+1)
	s.record(now, model.Event{Type: model.EventPlayerLeft, PlayerID: playerID})
	return true
}

// Start moves a waiting session to active with the rule set's initial state
func (s *Session) Start(state json.RawMessage, now time.Time) error {
	if !s.status.CanTransitionTo(model.SessionStatusActive) {
		return fmt.Errorf("starting %s from %s: %w", s.id, s.status, model.ErrWrongStatus)
	}
	s.status = model.SessionStatusActive
	s.state = state
	s.startedAt = &now
	s.record(now, model.Event{Type: model.EventSessionStarted})
	return nil
}

// Commit installs a new state blob and applies the score deltas carried by events
func (s *Session) Commit(state json.RawMessage, events []model.Event, now time.Time) error {
	if s.status != model.SessionStatusActive {
		return fmt.Errorf("committing to %s: %w", s.id, model.ErrSessionNotActive)
	}
	s.state = state
	for _, e := range events {
		if delta, ok := e.Payload.(model.ScoreChangedPayload); ok {
			s.addScore(delta.PlayerID, delta.Delta)
		}
	}
	s.record(now, events...)
	return nil
}

func (s *Session) addScore(playerID model.PlayerID, delta int64) {
	for i := range s.roster {
		if s.roster[i].PlayerID == playerID {
			s.roster[i].Score += delta
			return
		}
	}
}

// Finish performs the single terminal transition and produces the session result.
// Later calls return the existing result and false.
func (s *Session) Finish(reason model.EndReason, now time.Time) (*model.SessionResult, bool) {
	if s.status.IsTerminal() {
		return s.result, false
	}

	status := reason.TerminalStatus()
	if !s.status.CanTransitionTo(status) {
		// A waiting session can only ever be aborted
		status = model.SessionStatusAborted
	}

	scores := make([]model.PlayerScore, 0, len(s.roster)+len(s.departed))
	for _, p := range s.roster {
		scores = append(scores, model.PlayerScore{PlayerID: p.PlayerID, Score: p.Score, Stake: p.Stake})
	}
	for _, p := range s.departed {
		scores = append(scores, model.PlayerScore{PlayerID: p.PlayerID, Score: p.Score, Stake: p.Stake, Forfeited: true})
	}

	var winner *model.PlayerID
	if status == model.SessionStatusCompleted {
		winner = model.DecideWinner(scores)
	}

	s.status = status
	s.endedAt = &now
	s.result = &model.SessionResult{
		SessionID:   s.id,
		GameType:    s.gameType,
		Status:      status,
		Reason:      reason,
		Winner:      winner,
		Scores:      scores,
		StartedAt:   s.startedAt,
		CompletedAt: now,
	}
	s.record(now, model.Event{Type: model.EventSessionEnded, Payload: model.SessionEndedPayload{Reason: reason}})
	return s.result, true
}

// Events returns the retained event log, oldest first
func (s *Session) Events() []model.Event {
	return s.events.Events()
}

// Snapshot copies the session for use outside the lock
func (s *Session) Snapshot() model.SessionSnapshot {
	return model.SessionSnapshot{
		ID:        s.id,
		GameType:  s.gameType,
		Status:    s.status,
		Config:    s.config,
		Roster:    slices.Clone(s.roster),
		State:     slices.Clone(s.state),
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Events:    s.events.Events(),
	}
}

func (s *Session) record(now time.Time, events ...model.Event) {
	for i := range events {
		events[i].SessionID = s.id
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}
	}
	s.events.Append(events...)
}
