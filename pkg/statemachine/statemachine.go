package statemachine

import "context"

// State is a node of the transition table.
type State interface {
	Name() string
}

// Event triggers a transition.
type Event interface {
	Name() string
}

// Action runs while a transition is applied. A non-nil error aborts Fire.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides at runtime whether a transition applies.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition is one row of the table.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // all must pass
	Actions []Action // run in order
}

// StringState is a State backed by a string.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event backed by a string.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
