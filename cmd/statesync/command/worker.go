package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-service"
	"github.com/pixil98/go-statesync/internal/driver"
	"github.com/pixil98/go-statesync/internal/games"
	"github.com/pixil98/go-statesync/internal/messaging"
	"github.com/pixil98/go-statesync/internal/session"
	"github.com/pixil98/go-statesync/internal/storage"
	"github.com/pixil98/go-statesync/internal/transport/natsbus"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	server, err := cfg.Nats.buildServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	store, err := cfg.Snapshots.buildStore()
	if err != nil {
		return nil, fmt.Errorf("creating snapshot store: %w", err)
	}

	rooms := &roomsWorker{
		server:           server,
		url:              cfg.Nats.URL,
		prefix:           cfg.Nats.Prefix,
		rooms:            cfg.Rooms,
		store:            store,
		snapshotInterval: cfg.Snapshots.interval(),
		logger:           slog.Default(),
		registry:         session.NewRegistry(slog.Default()),
	}

	workers := service.WorkerList{
		"rooms": rooms,
	}
	if server != nil {
		workers["nats"] = server
	}
	return workers, nil
}

// roomsWorker connects every configured room and runs its session until the
// service stops. Host rooms are snapshotted when a store is configured.
type roomsWorker struct {
	server           *messaging.Server
	url              string
	prefix           string
	rooms            []RoomConfig
	store            *storage.FileStore[*storage.Snapshot]
	snapshotInterval time.Duration
	logger           *slog.Logger
	registry         *session.Registry
}

func (w *roomsWorker) Start(ctx context.Context) error {
	url := w.url
	if w.server != nil {
		if err := w.server.WaitReady(ctx); err != nil {
			return fmt.Errorf("waiting for nats: %w", err)
		}
		url = w.server.ClientURL()
	}

	for _, rc := range w.rooms {
		if err := w.open(ctx, url, rc); err != nil {
			_ = w.registry.CloseAll()
			return fmt.Errorf("opening room %s: %w", rc.ID, err)
		}
	}

	if w.store == nil {
		return w.registry.Start(ctx)
	}

	// Sessions outlive ctx long enough for a final snapshot.
	runCtx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = w.registry.Start(runCtx)
	}()

	snap := storage.NewSnapshotter(w.store, w.registry, nil, w.logger)
	err := driver.NewDriver([]driver.Ticker{snap}, driver.WithInterval(w.snapshotInterval)).Start(ctx)
	if tickErr := snap.Tick(context.Background()); tickErr != nil {
		w.logger.Warn("final snapshot", "error", tickErr)
	}

	stop()
	wg.Wait()
	if err != nil {
		return err
	}
	return runErr
}

func (w *roomsWorker) open(ctx context.Context, url string, rc RoomConfig) error {
	def, ok := games.Lookup(rc.Game)
	if !ok {
		return fmt.Errorf("unknown game %q", rc.Game)
	}

	playerID := rc.playerID()
	logger := w.logger.With("room", rc.ID, "player", playerID)

	natsOpts := []natsbus.Opt{natsbus.WithLogger(logger)}
	if w.prefix != "" {
		natsOpts = append(natsOpts, natsbus.WithPrefix(w.prefix))
	}
	tr, err := natsbus.Dial(url, rc.ID, playerID, rc.isHost(), natsOpts...)
	if err != nil {
		return err
	}

	opts := rc.sessionOpts()
	if rc.isHost() && w.store != nil {
		if snap, ok := w.store.Get(rc.ID); ok {
			logger.InfoContext(ctx, "resuming from snapshot", "seq", snap.Seq, "saved_at", snap.SavedAt)
			opts = append(opts, session.WithInitialState(snap.State, snap.Seq))
		}
	}

	s, err := w.registry.Open(rc.ID, def, tr, opts...)
	if err != nil {
		_ = tr.Disconnect()
		return err
	}

	if !rc.isHost() {
		s.OnHostDisconnect(func() {
			logger.Warn("host left the room")
		})
	}
	logger.InfoContext(ctx, "room open", "game", rc.Game, "role", rc.Role)
	return nil
}
