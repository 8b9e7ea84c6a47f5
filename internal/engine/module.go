// Package engine composes the reconciliation core: one fx module wiring
// the bus, caches, synchronizers and background loops around a daemon
// bridge supplied by the host.
package engine

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/config"
	"github.com/gettogether/peersync/internal/contacts"
	"github.com/gettogether/peersync/internal/conversations"
	"github.com/gettogether/peersync/internal/lock"
	"github.com/gettogether/peersync/internal/logging"
	"github.com/gettogether/peersync/internal/messages"
	"github.com/gettogether/peersync/internal/notify"
	"github.com/gettogether/peersync/internal/outbox"
	"github.com/gettogether/peersync/internal/paths"
	"github.com/gettogether/peersync/internal/presence"
	"github.com/gettogether/peersync/internal/status"
	"github.com/gettogether/peersync/internal/store"
	"github.com/gettogether/peersync/internal/trust"
	"github.com/gettogether/peersync/internal/views"
)

// Params holds the resolved engine configuration passed to the fx module.
type Params struct {
	DataDir string
}

// Module returns the fx module for the engine, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideStore,
			provideHolder,
			provideLifecycle,
			provideTracker,
			provideContactCache,
			provideContactSync,
			provideNotifier,
			provideIngestor,
			provideProfileSyncer,
			provideConversationSync,
			provideSender,
			provideTrustManager,
			provideViews,
			NewSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := paths.EnsureDir(p.DataDir); err != nil {
		return nil, err
	}
	return logging.New(paths.LogPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideConfig(p Params, b *bus.Bus, logger *zap.Logger) (*config.Manager, error) {
	return config.NewManager(paths.ConfigPath(p.DataDir), b, logger)
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath(p.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideHolder() *bridge.Holder {
	return bridge.NewHolder()
}

func provideLifecycle() *Lifecycle {
	return NewLifecycle()
}

func provideTracker(holder *bridge.Holder, b *bus.Bus, cfg *config.Manager, logger *zap.Logger) *presence.Tracker {
	pc := cfg.Snapshot().Presence
	return presence.NewTracker(holder, b, logger, presence.Options{
		StaleWindowMS:         pc.StaleWindowMS,
		SweepIntervalMS:       pc.SweepIntervalMS,
		TimeoutMS:             pc.TimeoutMS,
		OnlinePollIntervalMS:  pc.OnlinePollIntervalMS,
		OfflinePollIntervalMS: pc.OfflinePollIntervalMS,
	})
}

func provideContactCache() *contacts.Cache {
	return contacts.NewCache()
}

func provideContactSync(holder *bridge.Holder, cache *contacts.Cache, db *store.DB, tracker *presence.Tracker, b *bus.Bus, logger *zap.Logger) *contacts.Synchronizer {
	return contacts.NewSynchronizer(holder, cache, db, tracker, b, logger)
}

func provideNotifier(logger *zap.Logger) notify.Notifier {
	return notify.NewLogNotifier(logger)
}

func provideIngestor(b *bus.Bus, cs *contacts.Synchronizer, n notify.Notifier, cfg *config.Manager, logger *zap.Logger) *messages.Ingestor {
	enabled := func() bool { return cfg.Snapshot().Notifications.Enabled }
	return messages.NewIngestor(b, logger, cs, n, enabled)
}

func provideProfileSyncer(holder *bridge.Holder, b *bus.Bus, cfg *config.Manager, logger *zap.Logger) *messages.ProfileSyncer {
	return messages.NewProfileSyncer(holder, b, logger, cfg.Snapshot().Presence.ProfileSyncDebounceMS)
}

func provideConversationSync(holder *bridge.Holder, cc *contacts.Cache, cs *contacts.Synchronizer, ing *messages.Ingestor, b *bus.Bus, logger *zap.Logger) *conversations.Synchronizer {
	return conversations.NewSynchronizer(holder, conversations.NewCache(), cc, cs, ing, b, logger)
}

func provideSender(holder *bridge.Holder, ing *messages.Ingestor, cs *contacts.Synchronizer, cfg *config.Manager, logger *zap.Logger) *outbox.Sender {
	sc := cfg.Snapshot().Send
	return outbox.NewSender(holder, ing, cs, cs, logger, outbox.Options{
		MaxRetries:     sc.MaxRetries,
		InitialDelayMS: sc.InitialDelayMS,
	})
}

func provideTrustManager(holder *bridge.Holder, cs *contacts.Synchronizer, b *bus.Bus, logger *zap.Logger) *trust.Manager {
	return trust.NewManager(holder, cs, b, logger)
}

func provideViews(cache *contacts.Cache, b *bus.Bus, logger *zap.Logger) *views.Registry {
	return views.NewRegistry(cache, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, cfg *config.Manager, holder *bridge.Holder, fg *Lifecycle, tracker *presence.Tracker, cs *contacts.Synchronizer, vs *conversations.Synchronizer, ing *messages.Ingestor, ps *messages.ProfileSyncer, tm *trust.Manager, vr *views.Registry, machine *status.Machine, session *Session, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ctx := context.Background()

			if err := cfg.Watch(ctx); err != nil {
				logger.Warn("config watch unavailable", zap.Error(err))
			}

			// Event pumps first so nothing published during the initial
			// load is missed.
			cs.Start(ctx)
			ing.Start(ctx)
			vs.Start(ctx)
			tm.Start(ctx)
			ps.Start(ctx)
			tracker.Run(ctx, fg)

			if !holder.Connected() {
				_ = machine.Transition(status.Disconnected)
				logger.Info("engine started without a daemon bridge")
				return nil
			}

			_ = machine.Transition(status.Connecting)
			go func() {
				ids, err := holder.Bridge().GetAccountIDs(ctx)
				if err != nil || len(ids) == 0 {
					logger.Warn("no accounts available", zap.Error(err))
					return
				}
				if err := session.SetActiveAccount(ctx, ids[0]); err != nil {
					logger.Error("initial account load failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			vr.Close()
			ps.Stop()
			tm.Stop()
			vs.Stop()
			ing.Stop()
			cs.Stop()
			tracker.Stop()
			cfg.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
