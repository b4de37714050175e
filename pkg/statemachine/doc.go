// Package statemachine implements a stateless, table-driven finite state
// machine. The caller derives the current state from its own data, fires an
// event and persists the result; the Machine itself never stores state.
package statemachine
