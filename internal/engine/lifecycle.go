package engine

import "sync"

// Lifecycle is the host-driven foreground signal gating the presence poll
// loop. The host calls SetForeground on app foreground/background
// transitions; the engine only observes.
type Lifecycle struct {
	mu         sync.Mutex
	foreground bool
	watchers   map[chan bool]struct{}
}

// NewLifecycle creates a lifecycle signal starting in the foreground.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		foreground: true,
		watchers:   make(map[chan bool]struct{}),
	}
}

// SetForeground records a foreground transition and wakes watchers.
func (l *Lifecycle) SetForeground(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.foreground == v {
		return
	}
	l.foreground = v
	for ch := range l.watchers {
		select {
		case ch <- v:
		default:
		}
	}
}

// Foreground reports the current foreground state.
func (l *Lifecycle) Foreground() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.foreground
}

// Watch delivers foreground transitions until the returned cancel func is
// called.
func (l *Lifecycle) Watch() (<-chan bool, func()) {
	ch := make(chan bool, 4)
	l.mu.Lock()
	l.watchers[ch] = struct{}{}
	l.mu.Unlock()
	cancel := func() {
		l.mu.Lock()
		delete(l.watchers, ch)
		l.mu.Unlock()
	}
	return ch, cancel
}
