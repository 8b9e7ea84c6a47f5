// Package views exposes account-scoped, read-only derived streams to UI
// consumers. A view is started on its first subscriber and shared by all
// later ones, so simultaneous observers never re-derive the same list.
package views

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/contacts"
)

// teardownGrace is how long a view with zero subscribers stays warm
// before its pump is stopped. A quick resubscribe within the window
// reuses the running view.
const teardownGrace = 30 * time.Second

// Registry hands out shared per-account contact list views.
type Registry struct {
	cache  *contacts.Cache
	bus    *bus.Bus
	logger *zap.Logger
	grace  time.Duration

	mu    sync.Mutex
	views map[string]*view
}

// NewRegistry creates a view registry over the contact cache.
func NewRegistry(cache *contacts.Cache, b *bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		cache:  cache,
		bus:    b,
		logger: logger,
		grace:  teardownGrace,
		views:  make(map[string]*view),
	}
}

// ContactList subscribes to an account's derived contact list. The
// current list is delivered immediately, then again after every change.
// The cancel func must be called when the observer goes away.
func (r *Registry) ContactList(accountID string) (<-chan []contacts.Contact, func()) {
	r.mu.Lock()
	v, ok := r.views[accountID]
	if !ok {
		v = r.startView(accountID)
		r.views[accountID] = v
	}
	ch := v.addSubscriber()
	r.mu.Unlock()

	// Initial snapshot outside the lock; the channel is buffered.
	select {
	case ch <- r.cache.List(accountID):
	default:
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { r.release(accountID, v, ch) })
	}
	return ch, cancel
}

// Subscribers returns how many observers an account's view has. Zero
// also means no running view.
func (r *Registry) Subscribers(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.views[accountID]; ok {
		return len(v.subs)
	}
	return 0
}

// view is one running per-account pump fanning contact list snapshots
// out to its subscribers.
type view struct {
	accountID string
	cancel    context.CancelFunc

	mu    sync.Mutex
	subs  map[chan []contacts.Contact]struct{}
	timer *time.Timer
}

// startView begins the pump for one account. Caller holds r.mu.
func (r *Registry) startView(accountID string) *view {
	ctx, cancel := context.WithCancel(context.Background())
	v := &view{
		accountID: accountID,
		cancel:    cancel,
		subs:      make(map[chan []contacts.Contact]struct{}),
	}

	events, unsub := r.bus.Subscribe(contacts.KindUpdated, 64)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-events:
				if evt.AccountID != accountID {
					continue
				}
				v.broadcast(r.cache.List(accountID))
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Debug("contact view started", zap.String("account_id", accountID))
	return v
}

func (v *view) addSubscriber() chan []contacts.Contact {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	ch := make(chan []contacts.Contact, 8)
	v.subs[ch] = struct{}{}
	return ch
}

// broadcast pushes a snapshot to every subscriber, dropping for slow
// ones rather than blocking the pump.
func (v *view) broadcast(list []contacts.Contact) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ch := range v.subs {
		select {
		case ch <- list:
		default:
		}
	}
}

// release detaches one subscriber. The last one out arms the grace
// timer; the view is torn down only if nobody resubscribes in time.
func (r *Registry) release(accountID string, v *view, ch chan []contacts.Contact) {
	v.mu.Lock()
	delete(v.subs, ch)
	empty := len(v.subs) == 0
	if empty {
		v.timer = time.AfterFunc(r.grace, func() {
			r.teardown(accountID, v)
		})
	}
	v.mu.Unlock()
}

// teardown stops the view's pump unless a subscriber arrived during the
// grace period.
func (r *Registry) teardown(accountID string, v *view) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v.mu.Lock()
	stillEmpty := len(v.subs) == 0
	v.mu.Unlock()
	if !stillEmpty {
		return
	}
	if r.views[accountID] == v {
		delete(r.views, accountID)
	}
	v.cancel()
	r.logger.Debug("contact view torn down", zap.String("account_id", accountID))
}

// Close stops every running view immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for accountID, v := range r.views {
		v.mu.Lock()
		if v.timer != nil {
			v.timer.Stop()
		}
		v.mu.Unlock()
		v.cancel()
		delete(r.views, accountID)
	}
}
