package response

import (
	"encoding/json"
	"time"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/services/auth"
	"github.com/mcoot/arenaengine/internal/services/liveness"
	"github.com/mcoot/arenaengine/internal/worker"
)

// Token is the response for token endpoints
type Token struct {
	Token     string    `json:"token"`
	PlayerID  string    `json:"player_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenFromAuth converts an auth.Token
func TokenFromAuth(t auth.Token) Token {
	return Token{
		Token:     t.Value,
		PlayerID:  string(t.PlayerID),
		ExpiresAt: t.ExpiresAt,
	}
}

// SessionConfig represents a session's configuration
type SessionConfig struct {
	MaxPlayers         int   `json:"max_players"`
	MinPlayers         int   `json:"min_players"`
	MaxDurationSeconds int   `json:"max_duration_seconds"`
	MinStake           int64 `json:"min_stake"`
	MaxStake           int64 `json:"max_stake"`
}

// SessionConfigFromModel converts model.SessionConfig
func SessionConfigFromModel(c model.SessionConfig) SessionConfig {
	return SessionConfig{
		MaxPlayers:         c.MaxPlayers,
		MinPlayers:         c.MinPlayers,
		MaxDurationSeconds: int(c.MaxDuration / time.Second),
		MinStake:           c.MinStake,
		MaxStake:           c.MaxStake,
	}
}

// Participant represents a roster entry
type Participant struct {
	PlayerID string    `json:"player_id"`
	Stake    int64     `json:"stake"`
	Score    int64     `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// ParticipantFromModel converts model.Participant
func ParticipantFromModel(p model.Participant) Participant {
	return Participant{
		PlayerID: string(p.PlayerID),
		Stake:    p.Stake,
		Score:    p.Score,
		JoinedAt: p.JoinedAt,
	}
}

// Session represents a live session in API responses
type Session struct {
	ID        string          `json:"id"`
	GameType  string          `json:"game_type"`
	Status    string          `json:"status"`
	Config    SessionConfig   `json:"config"`
	Roster    []Participant   `json:"roster"`
	State     json.RawMessage `json:"state,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
}

// SessionFromSnapshot converts model.SessionSnapshot
func SessionFromSnapshot(s model.SessionSnapshot) Session {
	roster := make([]Participant, len(s.Roster))
	for i, p := range s.Roster {
		roster[i] = ParticipantFromModel(p)
	}
	return Session{
		ID:        string(s.ID),
		GameType:  string(s.GameType),
		Status:    string(s.Status),
		Config:    SessionConfigFromModel(s.Config),
		Roster:    roster,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		StartedAt: s.StartedAt,
	}
}

// SessionList is the response for listing live sessions
type SessionList struct {
	Sessions []Session `json:"sessions"`
}

// Score represents one player's final standing
type Score struct {
	PlayerID  string `json:"player_id"`
	Score     int64  `json:"score"`
	Stake     int64  `json:"stake"`
	Forfeited bool   `json:"forfeited,omitempty"`
}

// Result represents a finished session
type Result struct {
	SessionID   string     `json:"session_id"`
	GameType    string     `json:"game_type"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason"`
	Winner      *string    `json:"winner"`
	Scores      []Score    `json:"scores"`
	TotalStake  int64      `json:"total_stake"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// ResultFromModel converts model.SessionResult
func ResultFromModel(r *model.SessionResult) Result {
	scores := make([]Score, len(r.Scores))
	for i, s := range r.Scores {
		scores[i] = Score{
			PlayerID:  string(s.PlayerID),
			Score:     s.Score,
			Stake:     s.Stake,
			Forfeited: s.Forfeited,
		}
	}
	var winner *string
	if r.Winner != nil {
		w := string(*r.Winner)
		winner = &w
	}
	return Result{
		SessionID:   string(r.SessionID),
		GameType:    string(r.GameType),
		Status:      string(r.Status),
		Reason:      string(r.Reason),
		Winner:      winner,
		Scores:      scores,
		TotalStake:  r.TotalStake(),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// ResultList is the response for listing recent results
type ResultList struct {
	Results []Result `json:"results"`
}

// SessionLookup is either a live session or the result of a finished one
type SessionLookup struct {
	Session *Session `json:"session,omitempty"`
	Result  *Result  `json:"result,omitempty"`
}

// PlayerStats represents a player's long-lived totals
type PlayerStats struct {
	PlayerID     string    `json:"player_id"`
	GamesPlayed  int       `json:"games_played"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Aborted      int       `json:"aborted"`
	TotalScore   int64     `json:"total_score"`
	TotalStaked  int64     `json:"total_staked"`
	LastPlayedAt time.Time `json:"last_played_at"`
}

// PlayerStatsFromModel converts model.PlayerStats
func PlayerStatsFromModel(s *model.PlayerStats) PlayerStats {
	return PlayerStats{
		PlayerID:     string(s.PlayerID),
		GamesPlayed:  s.GamesPlayed,
		Wins:         s.Wins,
		Losses:       s.Losses,
		Aborted:      s.Aborted,
		TotalScore:   s.TotalScore,
		TotalStaked:  s.TotalStaked,
		LastPlayedAt: s.LastPlayedAt,
	}
}

// Analysis represents an advisory verdict
type Analysis struct {
	SessionID      string    `json:"session_id"`
	RiskScore      float64   `json:"risk_score"`
	Recommendation string    `json:"recommendation"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// AnalysisList is the response for a player's analyses, newest first
type AnalysisList struct {
	PlayerID string     `json:"player_id"`
	Analyses []Analysis `json:"analyses"`
}

// AnalysisListFromModel converts a player's analyses
func AnalysisListFromModel(playerID model.PlayerID, analyses []*model.Analysis) AnalysisList {
	list := AnalysisList{PlayerID: string(playerID), Analyses: make([]Analysis, len(analyses))}
	for i, a := range analyses {
		list.Analyses[i] = Analysis{
			SessionID:      string(a.SessionID),
			RiskScore:      a.RiskScore,
			Recommendation: a.Recommendation,
			AnalyzedAt:     a.AnalyzedAt,
		}
	}
	return list
}

// Health is the response for the health endpoint
type Health struct {
	Status      string                      `json:"status"`
	Storage     string                      `json:"storage"`
	Sessions    map[model.SessionStatus]int `json:"sessions"`
	Players     int                         `json:"players"`
	Connected   int                         `json:"connected"`
	Connections int                         `json:"connections"`
	Workers     worker.Status               `json:"workers"`
	LastSweep   *liveness.SweepStats        `json:"last_sweep,omitempty"`
	GameTypes   []model.GameType            `json:"game_types"`
}
