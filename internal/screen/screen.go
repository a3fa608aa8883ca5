// Package screen is the finite-state model of the capture flow. It decides
// which commands are reachable; it does not perform them.
package screen

import (
	"errors"
	"fmt"
)

// Errors returned when an event or command does not fit the current screen.
var (
	ErrInvalidTransition = errors.New("invalid screen transition")
	ErrUnreachable       = errors.New("operation not available on this screen")
)

// State is the screen currently shown.
type State string

const (
	Home   State = "home"
	Camera State = "camera"
	Form   State = "form"
)

// Event is a user action that may move the flow to another screen.
type Event string

const (
	EventStart   Event = "start"
	EventCapture Event = "capture"
	EventCancel  Event = "cancel"
	EventRetake  Event = "retake"
)

// Form has no direct way back to Home; retake is its only exit.
var transitions = map[State]map[Event]State{
	Home:   {EventStart: Camera},
	Camera: {EventCapture: Form, EventCancel: Home},
	Form:   {EventRetake: Camera},
}

// Machine tracks the current screen. It is not safe for concurrent use.
type Machine struct {
	state State
}

// New returns a Machine on the Home screen.
func New() *Machine {
	return &Machine{state: Home}
}

// State returns the current screen.
func (m *Machine) State() State {
	return m.state
}

// Can reports whether e is allowed from the current state.
func (m *Machine) Can(e Event) bool {
	_, ok := transitions[m.state][e]
	return ok
}

// Fire applies e and returns the new state.
func (m *Machine) Fire(e Event) (State, error) {
	next, ok := transitions[m.state][e]
	if !ok {
		return m.state, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, e, m.state)
	}
	m.state = next
	return next, nil
}

// Require fails unless the machine is in s.
func (m *Machine) Require(s State) error {
	if m.state != s {
		return fmt.Errorf("%w: requires %s, on %s", ErrUnreachable, s, m.state)
	}
	return nil
}
