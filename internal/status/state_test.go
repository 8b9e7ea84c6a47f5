package status

import (
	"testing"

	"github.com/gettogether/peersync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Disconnected},
		{Booting, Connecting},
		{Booting, Error},
		{Disconnected, Connecting},
		{Connecting, Loading},
		{Loading, Ready},
		{Ready, Loading},
		{Ready, Disconnected},
		{Degraded, Ready},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			// Walk to the "from" state.
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Connecting {
		t.Errorf("change = %v -> %v, want BOOTING -> CONNECTING", change.From, change.To)
	}
}

// TestDisconnectedCannotJumpToReady verifies a reattached daemon must go
// through CONNECTING and LOADING before the session reads READY; jumping
// straight to READY would expose stale caches as fresh.
func TestDisconnectedCannotJumpToReady(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Disconnected)

	if err := m.Transition(Ready); err == nil {
		t.Fatal("Transition(DISCONNECTED -> READY) should fail; must go through CONNECTING and LOADING")
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED (should not have changed)", m.Current())
	}

	steps := []State{Connecting, Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// TestColdStartLifecycle simulates a first run with the daemon reachable:
// BOOTING → CONNECTING → LOADING → READY
func TestColdStartLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{Connecting, Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestAccountSwitchCycle verifies the reload loop on account switch:
// READY → LOADING → READY
func TestAccountSwitchCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)

	steps := []State{Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestDaemonLossFromReady verifies that losing the daemon from READY
// lands in DISCONNECTED.
func TestDaemonLossFromReady(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)

	if err := m.Transition(Disconnected); err != nil {
		t.Fatalf("READY -> DISCONNECTED: %v", err)
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		Disconnected: {Disconnected},
		Connecting:   {Disconnected, Connecting},
		Loading:      {Connecting, Loading},
		Ready:        {Connecting, Loading, Ready},
		Degraded:     {Connecting, Loading, Degraded},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
