package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stairsync/internal/api"
	"stairsync/internal/auth"
	"stairsync/internal/config"
	"stairsync/internal/coordinator"
	"stairsync/internal/netwatch"
	"stairsync/internal/session"
	"stairsync/internal/store"
	"stairsync/internal/syncer"
)

// OpenStore opens and migrates the client database, returning
// (store, cleanup, error). Call cleanup when done.
func OpenStore(cfg *config.Config, log *zap.SugaredLogger) (*store.Store, func() error, error) {
	st, err := store.Open(cfg.ClientDBPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open client db: %w", err)
	}
	if err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("migrate client db: %w", err)
	}
	return st, st.Close, nil
}

// App bundles the explicitly constructed process-wide services. One App
// per process; tests build fresh instances instead of sharing globals.
type App struct {
	Store   *store.Store
	Net     *netwatch.Detector
	API     *api.Client
	Engine  *syncer.Engine
	Session *session.Controller
	Coord   *coordinator.Coordinator
}

// BuildApp wires the full client: store, detector (initialized from one
// startup probe), submission client, engine, session controller and
// coordinator. Returns (app, cleanup, error).
func BuildApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, func() error, error) {
	st, closeStore, err := OpenStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	net := netwatch.New(true, log)
	// establish the real initial state before anyone subscribes
	net.SetOnline(net.TestRealConnectivity(ctx, cfg.ProbeURL, cfg.ProbeTimeout))

	// background probe loop: flips the detector on reconnect so the
	// coordinator's settle-delay auto-sync fires mid-session, not only at
	// the next command invocation
	watchCtx, stopWatch := context.WithCancel(ctx)
	go net.Watch(watchCtx, cfg.ProbeURL, cfg.ProbeInterval, cfg.ProbeTimeout)

	tokens := auth.FileTokenStore{Path: cfg.TokenFile}
	client := api.New(cfg.ServerURL, tokens, log)

	engine := syncer.New(st, net, client, syncer.Options{
		MaxAttempts:  cfg.RetryAttempts,
		BaseDelay:    cfg.RetryBaseDelay,
		ProbeURL:     cfg.ProbeURL,
		ProbeTimeout: cfg.ProbeTimeout,
	}, log)

	app := &App{
		Store:   st,
		Net:     net,
		API:     client,
		Engine:  engine,
		Session: session.New(st, engine, net, log),
		Coord:   coordinator.New(net, engine, st, cfg.SettleDelay, log),
	}
	cleanup := func() error {
		stopWatch()
		app.Coord.Close()
		return closeStore()
	}
	return app, cleanup, nil
}
