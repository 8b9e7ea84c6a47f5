package messages

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/presence"
)

// ProfileSyncer pushes our profile to a peer when it comes online, so the
// peer picks up name/avatar changes made while it was unreachable. Pushes
// are debounced globally: when many contacts come online at once (app
// foregrounding), at most one push per debounce window goes out.
type ProfileSyncer struct {
	holder     *bridge.Holder
	bus        *bus.Bus
	logger     *zap.Logger
	debounceMS int64
	now        func() int64

	mu   sync.Mutex
	last int64

	cancel context.CancelFunc
}

// NewProfileSyncer creates a profile syncer with the given debounce window.
func NewProfileSyncer(holder *bridge.Holder, b *bus.Bus, logger *zap.Logger, debounceMS int64) *ProfileSyncer {
	if debounceMS <= 0 {
		debounceMS = 5000
	}
	return &ProfileSyncer{
		holder:     holder,
		bus:        b,
		logger:     logger,
		debounceMS: debounceMS,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Start subscribes to accepted online transitions.
func (p *ProfileSyncer) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	ch, unsub := p.bus.Subscribe(presence.KindOnline, 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if u, ok := evt.Payload.(presence.Update); ok {
					p.Trigger(ctx, u.AccountID, u.URI)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the event pump.
func (p *ProfileSyncer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Trigger requests a profile push to one peer, dropped when inside the
// debounce window.
func (p *ProfileSyncer) Trigger(ctx context.Context, accountID, uri string) {
	now := p.now()
	p.mu.Lock()
	if now-p.last < p.debounceMS {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.mu.Unlock()

	if err := p.holder.Bridge().SendProfile(ctx, accountID, uri); err != nil {
		p.logger.Warn("profile push failed", zap.String("uri", uri), zap.Error(err))
	}
}
