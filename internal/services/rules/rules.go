// Package rules holds the pluggable per-game-type logic. A rule set never
// touches sessions, connections or storage: Apply is a pure function from the
// current state blob and an action to the next blob and the events it caused.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/mcoot/arenaengine/internal/model"
)

// ErrRejected marks an action the rules refused; the state is left unchanged.
// Match it with errors.Is.
var ErrRejected = errors.New("rejected by game rules")

// RejectedError carries the rule set's reason for refusing an action
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Rules is implemented by every game type
type Rules interface {
	// Type is the game type this rule set plays
	Type() model.GameType

	// ValidActions lists the action types Apply understands
	ValidActions() []model.ActionType

	// Init builds the initial state for the roster. Any randomness must derive from seed.
	Init(roster []model.PlayerID, seed int64) (json.RawMessage, error)

	// Apply computes the next state. It must not mutate its inputs.
	Apply(state json.RawMessage, action model.Action) (json.RawMessage, []model.Event, error)
}

// Registry maps game types to their rule sets
type Registry struct {
	rules map[model.GameType]Rules
}

// NewRegistry creates a registry holding the given rule sets
func NewRegistry(rules ...Rules) *Registry {
	r := &Registry{rules: make(map[model.GameType]Rules, len(rules))}
	for _, rs := range rules {
		r.rules[rs.Type()] = rs
	}
	return r
}

// Default returns a registry with every built-in game type
func Default() *Registry {
	return NewRegistry(NewDuel(), NewTapper())
}

// Get returns the rule set for a game type
func (r *Registry) Get(gameType model.GameType) (Rules, error) {
	rs, ok := r.rules[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownGameType, gameType)
	}
	return rs, nil
}

// Types returns the registered game types in sorted order
func (r *Registry) Types() []model.GameType {
	types := make([]model.GameType, 0, len(r.rules))
	for t := range r.rules {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// IsValidAction reports whether the rule set declares the action type
func IsValidAction(rs Rules, actionType model.ActionType) bool {
	return slices.Contains(rs.ValidActions(), actionType)
}

func reject(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}
