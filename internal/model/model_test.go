package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatusTransitionsAreMonotonic(t *testing.T) {
	assert.True(t, SessionStatusWaiting.CanTransitionTo(SessionStatusActive))
	assert.True(t, SessionStatusWaiting.CanTransitionTo(SessionStatusAborted))
	assert.False(t, SessionStatusWaiting.CanTransitionTo(SessionStatusCompleted))

	assert.True(t, SessionStatusActive.CanTransitionTo(SessionStatusCompleted))
	assert.True(t, SessionStatusActive.CanTransitionTo(SessionStatusAborted))
	assert.False(t, SessionStatusActive.CanTransitionTo(SessionStatusWaiting))

	for _, terminal := range []SessionStatus{SessionStatusCompleted, SessionStatusAborted} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []SessionStatus{SessionStatusWaiting, SessionStatusActive, SessionStatusCompleted, SessionStatusAborted} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestEndReasonTerminalStatus(t *testing.T) {
	assert.Equal(t, SessionStatusCompleted, EndReasonNormal.TerminalStatus())
	assert.Equal(t, SessionStatusCompleted, EndReasonTimeout.TerminalStatus())
	assert.Equal(t, SessionStatusAborted, EndReasonInsufficientPlayers.TerminalStatus())
	assert.Equal(t, SessionStatusAborted, EndReasonShutdown.TerminalStatus())
	assert.Equal(t, SessionStatusAborted, EndReasonInternalError.TerminalStatus())
}

func TestDecideWinner(t *testing.T) {
	winner := DecideWinner([]PlayerScore{{PlayerID: "p1", Score: 3}, {PlayerID: "p2", Score: 7}})
	require.NotNil(t, winner)
	assert.Equal(t, PlayerID("p2"), *winner)

	assert.Nil(t, DecideWinner([]PlayerScore{{PlayerID: "p1", Score: 5}, {PlayerID: "p2", Score: 5}}))
	assert.Nil(t, DecideWinner(nil))

	// A tie below the top score does not matter
	winner = DecideWinner([]PlayerScore{{PlayerID: "p1", Score: 1}, {PlayerID: "p2", Score: 1}, {PlayerID: "p3", Score: 4}})
	require.NotNil(t, winner)
	assert.Equal(t, PlayerID("p3"), *winner)

	winner = DecideWinner([]PlayerScore{{PlayerID: "p1", Score: 9, Forfeited: true}, {PlayerID: "p2", Score: 2}})
	require.NotNil(t, winner)
	assert.Equal(t, PlayerID("p2"), *winner)
}

func TestSessionConfigValidate(t *testing.T) {
	require.NoError(t, DefaultSessionConfig().Validate())

	cfg := DefaultSessionConfig()
	cfg.MinPlayers = 3
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultSessionConfig()
	cfg.MaxDuration = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultSessionConfig()
	cfg.MinStake, cfg.MaxStake = 50, 10
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestCodeOfWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("joining s1: %w", ErrSessionFull)
	assert.Equal(t, "session-full", CodeOf(wrapped))
	assert.Equal(t, KindSession, KindOf(wrapped))

	assert.Equal(t, "internal-error", CodeOf(fmt.Errorf("boom")))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}

func TestPlayerStatsRecord(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	winner := PlayerID("p1")
	result := &SessionResult{
		Reason:      EndReasonNormal,
		Winner:      &winner,
		Scores:      []PlayerScore{{PlayerID: "p1", Score: 10, Stake: 5}, {PlayerID: "p2", Score: 2, Stake: 5}},
		CompletedAt: now,
	}

	var p1, p2 PlayerStats
	p1.Record("p1", result)
	p2.Record("p2", result)

	assert.Equal(t, 1, p1.Wins)
	assert.Equal(t, int64(10), p1.TotalScore)
	assert.Equal(t, 1, p2.Losses)
	assert.Equal(t, now, p2.LastPlayedAt)

	aborted := &SessionResult{Reason: EndReasonShutdown, Scores: []PlayerScore{{PlayerID: "p1"}}}
	p1.Record("p1", aborted)
	assert.Equal(t, 2, p1.GamesPlayed)
	assert.Equal(t, 1, p1.Aborted)
	assert.Equal(t, 1, p1.Wins)

	// Players absent from the result are untouched
	var p3 PlayerStats
	p3.Record("p3", result)
	assert.Zero(t, p3.GamesPlayed)
}
