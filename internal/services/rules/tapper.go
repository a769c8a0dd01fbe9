package rules

import (
	"encoding/json"

	"github.com/mcoot/arenaengine/internal/model"
)

const (
	GameTypeTapper model.GameType = "tapper"

	ActionTap model.ActionType = "tap"

	defaultTapTarget = 20
)

// Tapper is a race: every tap scores a point and the first player to reach
// the target ends the game.
type Tapper struct {
	target int
}

// NewTapper creates the tapper rule set with the default target
func NewTapper() *Tapper {
	return NewTapperWithTarget(defaultTapTarget)
}

// NewTapperWithTarget creates the tapper rule set with a custom target
func NewTapperWithTarget(target int) *Tapper {
	return &Tapper{target: target}
}

// TapperState is the tapper's state blob
type TapperState struct {
	Target int                    `json:"target"`
	Taps   map[model.PlayerID]int `json:"taps"`
}

func (t *Tapper) Type() model.GameType {
	return GameTypeTapper
}

func (t *Tapper) ValidActions() []model.ActionType {
	return []model.ActionType{ActionTap}
}

func (t *Tapper) Init(roster []model.PlayerID, _ int64) (json.RawMessage, error) {
	state := TapperState{Target: t.target, Taps: make(map[model.PlayerID]int, len(roster))}
	for _, id := range roster {
		state.Taps[id] = 0
	}
	return json.Marshal(state)
}

func (t *Tapper) Apply(raw json.RawMessage, action model.Action) (json.RawMessage, []model.Event, error) {
	if action.Type != ActionTap {
		return nil, nil, reject("unsupported action %q", action.Type)
	}

	var state TapperState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, nil, err
	}
	taps, ok := state.Taps[action.PlayerID]
	if !ok {
		return nil, nil, reject("player is not racing")
	}

	state.Taps[action.PlayerID] = taps + 1
	events := []model.Event{{
		Type:     model.EventScoreChanged,
		PlayerID: action.PlayerID,
		Payload:  model.ScoreChangedPayload{PlayerID: action.PlayerID, Delta: 1},
	}}
	if taps+1 >= state.Target {
		events = append(events, model.Event{
			Type:     model.EventGameOver,
			PlayerID: action.PlayerID,
			Payload:  model.GameOverPayload{Reason: "target reached"},
		})
	}

	next, err := json.Marshal(state)
	if err != nil {
		return nil, nil, err
	}
	return next, events, nil
}
