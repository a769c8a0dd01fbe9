package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcoot/arenaengine/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Token:
		o.printToken(v)
	case response.Session:
		o.printSession(v)
	case response.SessionList:
		o.printSessionList(v)
	case response.SessionLookup:
		if v.Session != nil {
			o.printSession(*v.Session)
		}
		if v.Result != nil {
			o.printResult(*v.Result)
		}
	case response.Result:
		o.printResult(v)
	case response.ResultList:
		o.printResultList(v)
	case response.PlayerStats:
		o.printPlayerStats(v)
	case response.AnalysisList:
		o.printAnalysisList(v)
	case response.Health:
		o.printHealth(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printToken(t response.Token) {
	fmt.Printf("Player: %s\n", t.PlayerID)
	fmt.Printf("Expires: %s\n", t.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Token: %s\n", t.Token)
}

func (o *Output) printSession(s response.Session) {
	fmt.Printf("Session: %s\n", s.ID)
	fmt.Printf("Game: %s\n", s.GameType)
	fmt.Printf("Status: %s\n", s.Status)
	fmt.Printf("Players: %d-%d, stakes %d-%d, max %ds\n",
		s.Config.MinPlayers, s.Config.MaxPlayers, s.Config.MinStake, s.Config.MaxStake, s.Config.MaxDurationSeconds)
	if s.StartedAt != nil {
		fmt.Printf("Started: %s\n", s.StartedAt.Format(time.RFC3339))
	}
	fmt.Printf("Roster (%d):\n", len(s.Roster))
	for _, p := range s.Roster {
		fmt.Printf("  - %s: score %d, stake %d\n", p.PlayerID, p.Score, p.Stake)
	}
}

func (o *Output) printSessionList(l response.SessionList) {
	if len(l.Sessions) == 0 {
		fmt.Println("No live sessions")
		return
	}
	for _, s := range l.Sessions {
		players := make([]string, len(s.Roster))
		for i, p := range s.Roster {
			players[i] = p.PlayerID
		}
		fmt.Printf("%s  %-8s %-8s %s\n", s.ID, s.GameType, s.Status, strings.Join(players, ", "))
	}
}

func (o *Output) printResult(r response.Result) {
	fmt.Printf("Session: %s (%s)\n", r.SessionID, r.GameType)
	fmt.Printf("Outcome: %s (%s)\n", r.Status, r.Reason)
	if r.Winner != nil {
		fmt.Printf("Winner: %s\n", *r.Winner)
	} else {
		fmt.Println("Winner: none")
	}
	fmt.Printf("Total stake: %d\n", r.TotalStake)
	fmt.Println("Scores:")
	for _, s := range r.Scores {
		forfeit := ""
		if s.Forfeited {
			forfeit = " [forfeited]"
		}
		fmt.Printf("  %s: %d points%s\n", s.PlayerID, s.Score, forfeit)
	}
}

func (o *Output) printResultList(l response.ResultList) {
	if len(l.Results) == 0 {
		fmt.Println("No results")
		return
	}
	for _, r := range l.Results {
		winner := "-"
		if r.Winner != nil {
			winner = *r.Winner
		}
		fmt.Printf("%s  %-8s %-10s %-20s winner=%s\n",
			r.CompletedAt.Format(time.RFC3339), r.SessionID, r.Status, r.Reason, winner)
	}
}

func (o *Output) printPlayerStats(s response.PlayerStats) {
	fmt.Printf("Player: %s\n", s.PlayerID)
	fmt.Printf("Games: %d (won %d, lost %d, aborted %d)\n", s.GamesPlayed, s.Wins, s.Losses, s.Aborted)
	fmt.Printf("Total score: %d\n", s.TotalScore)
	fmt.Printf("Total staked: %d\n", s.TotalStaked)
	if !s.LastPlayedAt.IsZero() {
		fmt.Printf("Last played: %s\n", s.LastPlayedAt.Format(time.RFC3339))
	}
}

func (o *Output) printAnalysisList(l response.AnalysisList) {
	fmt.Printf("Analyses for %s (%d):\n", l.PlayerID, len(l.Analyses))
	for _, a := range l.Analyses {
		fmt.Printf("  %s  risk %.2f  %s\n", a.SessionID, a.RiskScore, a.Recommendation)
	}
}

func (o *Output) printHealth(h response.Health) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Storage: %s\n", h.Storage)
	fmt.Printf("Connections: %d (%d players connected)\n", h.Connections, h.Connected)
	for status, n := range h.Sessions {
		fmt.Printf("Sessions %s: %d\n", status, n)
	}
	fmt.Printf("Workers: %d/%d running, %d pending\n", h.Workers.Running, h.Workers.Capacity, h.Workers.Pending)
}
