package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
)

// Run starts the tracker's background loops: the timeout sweep, the
// foreground-gated poll loop, and the bridge event pump. All of them stop
// when ctx is cancelled or Stop is called.
func (t *Tracker) Run(ctx context.Context, fg ForegroundSignal) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.sweepLoop(ctx)
	go t.pollGate(ctx, fg)
	go t.eventPump(ctx)
}

// Stop cancels the background loops.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) eventPump(ctx context.Context) {
	ch, unsub := t.bus.Subscribe(bridge.KindPresence, 256)
	defer unsub()
	for {
		select {
		case evt := <-ch:
			if ev, ok := evt.Payload.(bridge.PresenceEvent); ok {
				t.HandleEvent(ev)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(t.opts.SweepIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep(t.now())
		case <-ctx.Done():
			return
		}
	}
}

// pollGate starts and stops the poll loop as the app moves between
// foreground and background. Each foregrounding starts a fresh loop with a
// fresh initial delay.
func (t *Tracker) pollGate(ctx context.Context, fg ForegroundSignal) {
	ch, stop := fg.Watch()
	defer stop()

	var cancel context.CancelFunc
	stopPolls := func() {
		if cancel != nil {
			cancel()
			cancel = nil
		}
	}
	startPolls := func() {
		if cancel != nil {
			return
		}
		var pollCtx context.Context
		pollCtx, cancel = context.WithCancel(ctx)
		go t.pollLoop(pollCtx)
	}

	if fg.Foreground() {
		startPolls()
	}
	for {
		select {
		case foreground, ok := <-ch:
			if !ok {
				stopPolls()
				return
			}
			if foreground {
				startPolls()
			} else {
				stopPolls()
			}
		case <-ctx.Done():
			stopPolls()
			return
		}
	}
}

// pollLoop runs one poll cycle per online interval. The first cycle waits
// one full interval: the subscribe performed during contact load already
// triggered a cached-state echo, and polling immediately would re-trigger
// it for nothing.
func (t *Tracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(t.opts.OnlinePollIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce forces a fresh presence query for every due contact. Online
// contacts are polled every cycle; offline (and unknown) contacts at most
// once per offline interval, to bound network load for peers unlikely to
// be reachable.
func (t *Tracker) PollOnce(ctx context.Context) {
	now := t.now()
	for k, rec := range t.records.Snapshot() {
		if !rec.EverSubscribed {
			continue
		}
		if rec.State != StateOnline {
			if now-rec.LastOfflinePoll < t.opts.OfflinePollIntervalMS {
				continue
			}
		}
		accountID, uri := splitKey(k)
		t.pollContact(ctx, accountID, uri, now)
		if ctx.Err() != nil {
			return
		}
	}
}

// pollContact unsubscribes then resubscribes to force a fresh query. The
// new subscribe timestamp is recorded before the bridge calls so the
// stale-event filter classifies the echo that follows correctly.
func (t *Tracker) pollContact(ctx context.Context, accountID, uri string, now int64) {
	t.records.Update(key(accountID, uri), func(rec Record, _ bool) (Record, bool) {
		rec.LastSubscribe = now
		if rec.State != StateOnline {
			rec.LastOfflinePoll = now
		}
		return rec, true
	})

	b := t.holder.Bridge()
	if err := b.SubscribeBuddy(ctx, accountID, uri, false); err != nil {
		t.logger.Warn("presence unsubscribe failed", zap.String("uri", uri), zap.Error(err))
	}
	if err := b.SubscribeBuddy(ctx, accountID, uri, true); err != nil {
		t.logger.Warn("presence resubscribe failed", zap.String("uri", uri), zap.Error(err))
	}
}

var _ ForegroundSignal = (*StaticForeground)(nil)

// StaticForeground is a ForegroundSignal that never changes. Useful for
// headless deployments that are always "foregrounded" and for tests.
type StaticForeground bool

// Foreground implements ForegroundSignal.
func (s StaticForeground) Foreground() bool { return bool(s) }

// Watch implements ForegroundSignal; the channel never delivers.
func (s StaticForeground) Watch() (<-chan bool, func()) {
	ch := make(chan bool)
	return ch, func() {}
}
