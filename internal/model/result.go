package model

import (
	"slices"
	"time"
)

// EndReason records why a session reached a terminal state
type EndReason string

const (
	EndReasonNormal              EndReason = "normal"
	EndReasonTimeout             EndReason = "timeout"
	EndReasonInsufficientPlayers EndReason = "insufficient_players"
	EndReasonShutdown            EndReason = "shutdown"
	EndReasonInternalError       EndReason = "internal_error"
)

// IsAbort returns true if the reason leads to the aborted status
func (r EndReason) IsAbort() bool {
	switch r {
	case EndReasonInsufficientPlayers, EndReasonShutdown, EndReasonInternalError:
		return true
	default:
		return false
	}
}

// TerminalStatus maps the reason onto the status it produces
func (r EndReason) TerminalStatus() SessionStatus {
	if r.IsAbort() {
		return SessionStatusAborted
	}
	return SessionStatusCompleted
}

// PlayerScore is one player's final standing
type PlayerScore struct {
	PlayerID  PlayerID `json:"playerId"`
	Score     int64    `json:"score"`
	Stake     int64    `json:"stake"`
	Forfeited bool     `json:"forfeited,omitempty"` // left while the session was active
}

// SessionResult is the single terminal record produced for every session
type SessionResult struct {
	SessionID   SessionID     `json:"sessionId"`
	GameType    GameType      `json:"gameType"`
	Status      SessionStatus `json:"status"`
	Reason      EndReason     `json:"reason"`
	Winner      *PlayerID     `json:"winner"`
	Scores      []PlayerScore `json:"scores"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt time.Time     `json:"completedAt"`
}

// ScoreFor returns the final standing of a player, if present
func (r *SessionResult) ScoreFor(playerID PlayerID) (PlayerScore, bool) {
	idx := slices.IndexFunc(r.Scores, func(s PlayerScore) bool { return s.PlayerID == playerID })
	if idx < 0 {
		return PlayerScore{}, false
	}
	return r.Scores[idx], true
}

// TotalStake sums every stake in the result
func (r *SessionResult) TotalStake() int64 {
	var total int64
	for _, s := range r.Scores {
		total += s.Stake
	}
	return total
}

// DecideWinner returns the single highest scorer, or nil when the top score is shared
// or there are no scores. Forfeited players never win.
func DecideWinner(scores []PlayerScore) *PlayerID {
	var (
		best *PlayerScore
		ties int
	)
	for i := range scores {
		if scores[i].Forfeited {
			continue
		}
		switch {
		case best == nil || scores[i].Score > best.Score:
			best = &scores[i]
			ties = 0
		case scores[i].Score == best.Score:
			ties++
		}
	}
	if best == nil || ties > 0 {
		return nil
	}
	winner := best.PlayerID
	return &winner
}
