package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/arenaengine/internal/model"
)

func action(player model.PlayerID, t model.ActionType, payload string) model.Action {
	return model.Action{PlayerID: player, SessionID: "S1", Type: t, Payload: json.RawMessage(payload)}
}

func TestRegistryLookup(t *testing.T) {
	reg := Default()

	rs, err := reg.Get(GameTypeDuel)
	require.NoError(t, err)
	assert.Equal(t, GameTypeDuel, rs.Type())
	assert.Equal(t, []model.GameType{GameTypeDuel, GameTypeTapper}, reg.Types())

	_, err = reg.Get("chess")
	assert.ErrorIs(t, err, model.ErrUnknownGameType)
}

func TestIsValidAction(t *testing.T) {
	assert.True(t, IsValidAction(NewDuel(), ActionMove))
	assert.True(t, IsValidAction(NewDuel(), ActionAttack))
	assert.False(t, IsValidAction(NewDuel(), ActionTap))
	assert.False(t, IsValidAction(NewTapper(), "dance"))
}

func TestDuelMove(t *testing.T) {
	duel := NewDuel()
	initial, err := duel.Init([]model.PlayerID{"p1", "p2"}, 42)
	require.NoError(t, err)

	next, events, err := duel.Apply(initial, action("p1", ActionMove, `{"x":1,"y":1}`))
	require.NoError(t, err)

	var state DuelState
	require.NoError(t, json.Unmarshal(next, &state))
	assert.Equal(t, DuelFighter{X: 1, Y: 1, Health: 100}, state.Fighters["p1"])
	assert.Equal(t, 1, state.Turn)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPlayerMoved, events[0].Type)

	// The input blob is not mutated
	var before DuelState
	require.NoError(t, json.Unmarshal(initial, &before))
	assert.Equal(t, DuelFighter{X: 0, Y: 0, Health: 100}, before.Fighters["p1"])
}

func TestDuelRejectsInvalidMoves(t *testing.T) {
	duel := NewDuel()
	initial, err := duel.Init([]model.PlayerID{"p1", "p2"}, 42)
	require.NoError(t, err)

	for _, payload := range []string{`{"x":10,"y":0}`, `{"x":-1,"y":0}`, `{"x":1}`, `"nope"`} {
		_, _, err := duel.Apply(initial, action("p1", ActionMove, payload))
		assert.ErrorIs(t, err, ErrRejected, payload)
	}

	_, _, err = duel.Apply(initial, action("ghost", ActionMove, `{"x":1,"y":1}`))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestDuelAttackIsDeterministic(t *testing.T) {
	duel := NewDuel()
	run := func() (DuelState, []model.Event) {
		state, err := duel.Init([]model.PlayerID{"p1", "p2"}, 7)
		require.NoError(t, err)
		state, _, err = duel.Apply(state, action("p1", ActionMove, `{"x":8,"y":8}`))
		require.NoError(t, err)
		state, events, err := duel.Apply(state, action("p1", ActionAttack, `{"target":"p2"}`))
		require.NoError(t, err)

		var decoded DuelState
		require.NoError(t, json.Unmarshal(state, &decoded))
		return decoded, events
	}

	first, firstEvents := run()
	second, secondEvents := run()
	assert.Equal(t, first, second)
	assert.Equal(t, firstEvents, secondEvents)

	hit := firstEvents[0].Payload.(model.PlayerHitPayload)
	assert.GreaterOrEqual(t, hit.Damage, 10)
	assert.LessOrEqual(t, hit.Damage, 20)
	assert.Equal(t, 100-hit.Damage, first.Fighters["p2"].Health)

	score := firstEvents[1].Payload.(model.ScoreChangedPayload)
	assert.Equal(t, int64(hit.Damage), score.Delta)
}

func TestDuelAttackOutOfRange(t *testing.T) {
	duel := NewDuel()
	state, err := duel.Init([]model.PlayerID{"p1", "p2"}, 7)
	require.NoError(t, err)

	_, _, err = duel.Apply(state, action("p1", ActionAttack, `{"target":"p2"}`))
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = duel.Apply(state, action("p1", ActionAttack, `{"target":"p1"}`))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestDuelKnockoutEndsGame(t *testing.T) {
	duel := NewDuelWithConfig(DuelConfig{ArenaSize: 3, StartHealth: 5, AttackRange: 3, MinDamage: 10, MaxDamage: 10})
	state, err := duel.Init([]model.PlayerID{"p1", "p2"}, 1)
	require.NoError(t, err)

	state, events, err := duel.Apply(state, action("p1", ActionAttack, `{"target":"p2"}`))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventGameOver, events[2].Type)

	// Knocked out fighters cannot act
	_, _, err = duel.Apply(state, action("p2", ActionMove, `{"x":1,"y":1}`))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTapperRace(t *testing.T) {
	tapper := NewTapperWithTarget(2)
	state, err := tapper.Init([]model.PlayerID{"p1", "p2"}, 0)
	require.NoError(t, err)

	state, events, err := tapper.Apply(state, action("p1", ActionTap, ``))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventScoreChanged, events[0].Type)

	_, events, err = tapper.Apply(state, action("p1", ActionTap, ``))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventGameOver, events[1].Type)

	_, _, err = tapper.Apply(state, action("p3", ActionTap, ``))
	assert.ErrorIs(t, err, ErrRejected)
}
