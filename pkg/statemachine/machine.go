package statemachine

import "context"

// Machine is an immutable transition table. It holds no current state:
// callers pass the state they derived and receive the next one, so a single
// Machine is safe for concurrent use by any number of goroutines.
type Machine struct {
	table map[string]map[string][]Transition
}

// New builds a Machine from the given transitions.
func New(transitions ...Transition) (*Machine, error) {
	m := &Machine{table: make(map[string]map[string][]Transition)}
	for _, t := range transitions {
		if t.From == nil || t.To == nil || t.Event == nil {
			return nil, ErrInvalidTransition
		}
		byEvent, ok := m.table[t.From.Name()]
		if !ok {
			byEvent = make(map[string][]Transition)
			m.table[t.From.Name()] = byEvent
		}
		byEvent[t.Event.Name()] = append(byEvent[t.Event.Name()], t)
	}
	return m, nil
}

// MustNew is New that panics on an invalid table.
func MustNew(transitions ...Transition) *Machine {
	m, err := New(transitions...)
	if err != nil {
		panic(err)
	}
	return m
}

// Fire selects the first transition from `from` on `event` whose guards pass,
// runs its actions and returns the target state. On error the returned state
// is `from`.
func (m *Machine) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	if event == nil {
		return from, ErrInvalidEvent
	}
	t, err := m.find(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, err
		}
	}
	return t.To, nil
}

func (m *Machine) find(ctx context.Context, from State, event Event, data any) (Transition, error) {
	candidates := m.table[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return Transition{}, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}
	for _, t := range candidates {
		if allow(ctx, t.Guards, from, event, data) {
			return t, nil
		}
	}
	return Transition{}, NewErrTransitionRejected(from.Name(), event.Name())
}

func allow(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
