// Package presence owns per-contact online/offline state. The daemon
// replays its cached presence immediately after every subscribe call, so
// raw "online" events cannot be taken at face value: the tracker filters
// echoes that arrive inside a stale window of the last subscribe, sweeps
// silently-disconnected peers offline on a timer, and re-polls contacts in
// tiers while the app is foregrounded.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/snapshot"
)

// Event kinds published by the tracker.
const (
	// KindUpdated fires when a contact's tracked state changes.
	KindUpdated = "presence.updated"
	// KindOnline fires for every accepted online event, whether or not the
	// state changed. The profile-resync debouncer listens to it.
	KindOnline = "presence.online"
)

// State is a contact's tracked presence.
type State int

const (
	StateUnknown State = iota
	StateOffline
	StateOnline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Record is the per-contact tracking state. Timestamps are unix ms.
type Record struct {
	State              State
	LastReliableUpdate int64
	LastSubscribe      int64
	LastOfflinePoll    int64
	EverSubscribed     bool
}

// Update is the payload of KindUpdated and KindOnline events.
type Update struct {
	AccountID string
	URI       string
	Online    bool
}

// Options tunes the tracker. All values in milliseconds.
type Options struct {
	StaleWindowMS         int64
	SweepIntervalMS       int64
	TimeoutMS             int64
	OnlinePollIntervalMS  int64
	OfflinePollIntervalMS int64
}

// DefaultOptions returns production tuning.
func DefaultOptions() Options {
	return Options{
		StaleWindowMS:         2000,
		SweepIntervalMS:       10000,
		TimeoutMS:             90000,
		OnlinePollIntervalMS:  60000,
		OfflinePollIntervalMS: 300000,
	}
}

// ForegroundSignal reports whether the app is foregrounded and delivers
// changes. The poll loop runs only while foregrounded.
type ForegroundSignal interface {
	Foreground() bool
	Watch() (<-chan bool, func())
}

// Tracker implements the per-contact presence state machine.
type Tracker struct {
	holder  *bridge.Holder
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options
	records *snapshot.Map[Record]
	now     func() int64 // unix ms, swappable in tests
	cancel  context.CancelFunc
}

// NewTracker creates a tracker. Background loops start with Run.
func NewTracker(holder *bridge.Holder, b *bus.Bus, logger *zap.Logger, opts Options) *Tracker {
	if opts.StaleWindowMS == 0 {
		opts = DefaultOptions()
	}
	return &Tracker{
		holder:  holder,
		bus:     b,
		logger:  logger,
		opts:    opts,
		records: snapshot.NewMap[Record](),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

func key(accountID, uri string) string {
	return accountID + "/" + uri
}

// Get returns the tracked record for a contact.
func (t *Tracker) Get(accountID, uri string) (Record, bool) {
	return t.records.Get(key(accountID, uri))
}

// State returns the tracked state for a contact, StateUnknown if untracked.
func (t *Tracker) State(accountID, uri string) State {
	rec, _ := t.records.Get(key(accountID, uri))
	return rec.State
}

// EnsureSubscribed subscribes to a contact's presence. The subscribe
// timestamp is recorded only on the first subscribe for a contact;
// re-subscribing during a refresh must not reopen the stale-event window,
// or the filter would permanently mask real updates.
func (t *Tracker) EnsureSubscribed(ctx context.Context, accountID, uri string) {
	now := t.now()
	t.records.Update(key(accountID, uri), func(rec Record, _ bool) (Record, bool) {
		if rec.EverSubscribed {
			return rec, false
		}
		rec.EverSubscribed = true
		rec.LastSubscribe = now
		return rec, true
	})
	if err := t.holder.Bridge().SubscribeBuddy(ctx, accountID, uri, true); err != nil {
		t.logger.Warn("presence subscribe failed", zap.String("uri", uri), zap.Error(err))
	}
}

// HandleEvent applies a raw presence event from the daemon.
//
// Offline is always trusted. Online is trusted only when the event arrived
// at least StaleWindowMS after the last subscribe call for that contact;
// anything sooner is the daemon echoing its cache back at us.
func (t *Tracker) HandleEvent(ev bridge.PresenceEvent) {
	k := key(ev.AccountID, ev.URI)
	var transitioned bool
	var accepted bool

	t.records.Update(k, func(rec Record, _ bool) (Record, bool) {
		if !ev.Online {
			transitioned = rec.State != StateOffline
			rec.State = StateOffline
			rec.LastReliableUpdate = ev.Time
			return rec, true
		}
		if ev.Time-rec.LastSubscribe < t.opts.StaleWindowMS {
			return rec, false
		}
		accepted = true
		transitioned = rec.State != StateOnline
		rec.State = StateOnline
		rec.LastReliableUpdate = ev.Time
		return rec, true
	})

	if transitioned {
		t.publish(KindUpdated, ev.AccountID, ev.URI, ev.Online)
	}
	if accepted {
		t.publish(KindOnline, ev.AccountID, ev.URI, true)
	}
}

// Sweep transitions every contact that has been Online without a reliable
// update for longer than the timeout to Offline. Exactly one transition
// fires per timed-out contact; repeated sweeps are no-ops until the
// contact comes back online.
func (t *Tracker) Sweep(nowMS int64) {
	for k, rec := range t.records.Snapshot() {
		if rec.State != StateOnline || nowMS-rec.LastReliableUpdate <= t.opts.TimeoutMS {
			continue
		}
		var swept bool
		t.records.Update(k, func(cur Record, _ bool) (Record, bool) {
			if cur.State != StateOnline || nowMS-cur.LastReliableUpdate <= t.opts.TimeoutMS {
				return cur, false
			}
			swept = true
			cur.State = StateOffline
			return cur, true
		})
		if swept {
			accountID, uri := splitKey(k)
			t.logger.Info("presence timeout", zap.String("uri", uri))
			t.publish(KindUpdated, accountID, uri, false)
		}
	}
}

// ClearAccount drops all tracking state for an account. Called on account
// switch so subscription state never leaks across accounts.
func (t *Tracker) ClearAccount(accountID string) {
	prefix := accountID + "/"
	t.records.DeleteFunc(func(k string, _ Record) bool {
		return len(k) >= len(prefix) && k[:len(prefix)] == prefix
	})
}

func (t *Tracker) publish(kind, accountID, uri string, online bool) {
	t.bus.Publish(bus.Event{
		Kind:      kind,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload:   Update{AccountID: accountID, URI: uri, Online: online},
	})
}

func splitKey(k string) (accountID, uri string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
