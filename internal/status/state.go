package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gettogether/peersync/internal/bus"
)

// State represents an engine session runtime state.
type State string

const (
	Booting      State = "BOOTING"
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Loading      State = "LOADING"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// KindStatusChanged is published on every accepted transition.
const KindStatusChanged = "session.status_changed"

// validTransitions defines allowed state transitions. Loading re-enters
// from Ready on account switch.
var validTransitions = map[State][]State{
	Booting:      {Disconnected, Connecting, Error},
	Disconnected: {Connecting, Error},
	Connecting:   {Loading, Disconnected, Error},
	Loading:      {Ready, Degraded, Disconnected, Error},
	Ready:        {Loading, Degraded, Disconnected, Error},
	Degraded:     {Loading, Ready, Disconnected, Error},
	Error:        {Booting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
