package rules

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/mcoot/arenaengine/internal/model"
)

const (
	GameTypeDuel model.GameType = "duel"

	ActionMove   model.ActionType = "move"
	ActionAttack model.ActionType = "attack"
)

// DuelConfig tunes the duel arena
type DuelConfig struct {
	ArenaSize   int
	StartHealth int
	AttackRange int
	MinDamage   int
	MaxDamage   int
}

// DefaultDuelConfig returns the standard arena
func DefaultDuelConfig() DuelConfig {
	return DuelConfig{
		ArenaSize:   10,
		StartHealth: 100,
		AttackRange: 2,
		MinDamage:   10,
		MaxDamage:   20,
	}
}

// Duel is a grid skirmish: players move around the arena and attack anyone in
// range. Damage is drawn from a generator seeded by the session seed and the
// action count, so a replay of the same actions yields the same game.
type Duel struct {
	cfg DuelConfig
}

// NewDuel creates the duel rule set with default tuning
func NewDuel() *Duel {
	return NewDuelWithConfig(DefaultDuelConfig())
}

// NewDuelWithConfig creates the duel rule set with custom tuning
func NewDuelWithConfig(cfg DuelConfig) *Duel {
	return &Duel{cfg: cfg}
}

// DuelState is the duel's state blob
type DuelState struct {
	Seed      int64                          `json:"seed"`
	Turn      int                            `json:"turn"`
	ArenaSize int                            `json:"arenaSize"`
	Fighters  map[model.PlayerID]DuelFighter `json:"fighters"`
}

// DuelFighter is one player's position and health
type DuelFighter struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Health int `json:"health"`
}

type movePayload struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type attackPayload struct {
	Target model.PlayerID `json:"target"`
}

func (d *Duel) Type() model.GameType {
	return GameTypeDuel
}

func (d *Duel) ValidActions() []model.ActionType {
	return []model.ActionType{ActionMove, ActionAttack}
}

func (d *Duel) Init(roster []model.PlayerID, seed int64) (json.RawMessage, error) {
	state := DuelState{
		Seed:      seed,
		ArenaSize: d.cfg.ArenaSize,
		Fighters:  make(map[model.PlayerID]DuelFighter, len(roster)),
	}
	for i, id := range roster {
		x, y := d.spawnPoint(i)
		state.Fighters[id] = DuelFighter{X: x, Y: y, Health: d.cfg.StartHealth}
	}
	return json.Marshal(state)
}

// spawnPoint spreads fighters over the corners, then along the middle row
func (d *Duel) spawnPoint(i int) (int, int) {
	last := d.cfg.ArenaSize - 1
	corners := [][2]int{{0, 0}, {last, last}, {0, last}, {last, 0}}
	if i < len(corners) {
		return corners[i][0], corners[i][1]
	}
	return (i - len(corners)) % d.cfg.ArenaSize, d.cfg.ArenaSize / 2
}

func (d *Duel) Apply(raw json.RawMessage, action model.Action) (json.RawMessage, []model.Event, error) {
	var state DuelState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, nil, err
	}

	actor, ok := state.Fighters[action.PlayerID]
	if !ok {
		return nil, nil, reject("player has no fighter")
	}
	if actor.Health <= 0 {
		return nil, nil, reject("player is knocked out")
	}

	var events []model.Event
	switch action.Type {
	case ActionMove:
		var p movePayload
		if err := json.Unmarshal(action.Payload, &p); err != nil || p.X == nil || p.Y == nil {
			return nil, nil, reject("move requires x and y")
		}
		if !state.inBounds(*p.X, *p.Y) {
			return nil, nil, reject("position (%d,%d) is outside the arena", *p.X, *p.Y)
		}
		actor.X, actor.Y = *p.X, *p.Y
		state.Fighters[action.PlayerID] = actor
		events = append(events, model.Event{
			Type:     model.EventPlayerMoved,
			PlayerID: action.PlayerID,
			Payload:  model.PlayerMovedPayload{X: actor.X, Y: actor.Y},
		})

	case ActionAttack:
		var p attackPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil || p.Target == "" {
			return nil, nil, reject("attack requires a target")
		}
		if p.Target == action.PlayerID {
			return nil, nil, reject("cannot attack yourself")
		}
		target, ok := state.Fighters[p.Target]
		if !ok || target.Health <= 0 {
			return nil, nil, reject("target is not in the fight")
		}
		if distance(actor, target) > d.cfg.AttackRange {
			return nil, nil, reject("target is out of range")
		}

		damage := d.rollDamage(state.Seed, state.Turn)
		target.Health = max(target.Health-damage, 0)
		state.Fighters[p.Target] = target
		events = append(events,
			model.Event{
				Type:     model.EventPlayerHit,
				PlayerID: action.PlayerID,
				Payload:  model.PlayerHitPayload{Target: p.Target, Damage: damage, Remaining: target.Health},
			},
			model.Event{
				Type:     model.EventScoreChanged,
				PlayerID: action.PlayerID,
				Payload:  model.ScoreChangedPayload{PlayerID: action.PlayerID, Delta: int64(damage)},
			},
		)
		if state.standing() <= 1 {
			events = append(events, model.Event{
				Type:     model.EventGameOver,
				PlayerID: action.PlayerID,
				Payload:  model.GameOverPayload{Reason: "last fighter standing"},
			})
		}

	default:
		return nil, nil, reject("unsupported action %q", action.Type)
	}

	state.Turn++
	next, err := json.Marshal(state)
	if err != nil {
		return nil, nil, err
	}
	return next, events, nil
}

func (d *Duel) rollDamage(seed int64, turn int) int {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(turn)))
	return d.cfg.MinDamage + rng.IntN(d.cfg.MaxDamage-d.cfg.MinDamage+1)
}

func (s *DuelState) inBounds(x, y int) bool {
	return x >= 0 && x < s.ArenaSize && y >= 0 && y < s.ArenaSize
}

func (s *DuelState) standing() int {
	n := 0
	for _, f := range s.Fighters {
		if f.Health > 0 {
			n++
		}
	}
	return n
}

// distance is the Chebyshev distance between two fighters
func distance(a, b DuelFighter) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
