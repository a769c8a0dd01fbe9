package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// PlayerStats are the long-lived per-player totals kept by the persistence collaborator
type PlayerStats struct {
	PlayerID     PlayerID  `json:"playerId"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Aborted      int       `json:"aborted"`
	TotalScore   int64     `json:"totalScore"`
	TotalStaked  int64     `json:"totalStaked"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}

// Record folds a finished session into the stats for the given player.
// Aborted sessions count as played but never as a win or loss.
func (s *PlayerStats) Record(playerID PlayerID, result *SessionResult) {
	score, ok := result.ScoreFor(playerID)
	if !ok {
		return
	}
	s.PlayerID = playerID
	s.GamesPlayed++
	s.TotalScore += score.Score
	s.TotalStaked += score.Stake
	s.LastPlayedAt = result.CompletedAt

	switch {
	case result.Reason.IsAbort():
		s.Aborted++
	case result.Winner != nil && *result.Winner == playerID:
		s.Wins++
	default:
		s.Losses++
	}
}

// PlayerState is the engine's view of a connected (or recently detached) player
type PlayerState struct {
	ID            PlayerID
	SessionID     *SessionID // nil when not in a session
	Authenticated bool

	// Attributes holds game-specific gameplay data (score, position, health...)
	Attributes map[string]any

	// Stats is hydrated from persistence when the player first joins a session
	Stats        *PlayerStats
	JoinedAt     time.Time
	LastActionAt time.Time
	DetachedAt   *time.Time // set when the connection went away
}

// InSession returns true if the player currently belongs to a session
func (p *PlayerState) InSession() bool {
	return p.SessionID != nil
}
