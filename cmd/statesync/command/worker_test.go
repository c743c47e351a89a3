package command

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-statesync/internal/messaging"
	"github.com/pixil98/go-statesync/internal/session"
	"github.com/pixil98/go-statesync/internal/storage"
	"github.com/pixil98/go-testutil"
)

func startServer(t *testing.T) string {
	t.Helper()

	s, err := messaging.NewServer(messaging.WithPort(-1))
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Start(ctx); err != nil {
			t.Errorf("server stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := s.WaitReady(waitCtx); err != nil {
		t.Fatalf("server not ready: %v", err)
	}
	return s.ClientURL()
}

type running struct {
	w      *roomsWorker
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func run(t *testing.T, w *roomsWorker) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{w: w, cancel: cancel}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := w.Start(ctx); err != nil {
			t.Errorf("rooms worker: %v", err)
		}
	}()
	t.Cleanup(r.stop)
	return r
}

func (r *running) stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *running) session(t *testing.T, room string) *session.Session {
	t.Helper()
	var s *session.Session
	eventually(t, func() bool {
		var ok bool
		s, ok = r.w.registry.Get(room)
		return ok
	})
	return s
}

func newWorker(url string, store *storage.FileStore[*storage.Snapshot], rooms ...RoomConfig) *roomsWorker {
	return &roomsWorker{
		url:              url,
		rooms:            rooms,
		store:            store,
		snapshotInterval: 20 * time.Millisecond,
		logger:           slog.Default(),
		registry:         session.NewRegistry(nil),
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func countOf(s *session.Session, key string) int {
	m, _ := s.State()[key].(map[string]any)
	return len(m)
}

func TestRoomsWorker_HostAndClientOverNats(t *testing.T) {
	url := startServer(t)
	dir := t.TempDir()
	store, err := storage.NewFileStore[*storage.Snapshot](dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seed := int64(5)
	hostRoom := RoomConfig{ID: "lobby", Game: "arena", Role: RoleHost, PlayerID: "h", Seed: &seed, SyncInterval: "10ms"}
	host := run(t, newWorker(url, store, hostRoom))
	hostSession := host.session(t, "lobby")

	client := run(t, newWorker(url, nil, RoomConfig{ID: "lobby", Game: "arena", Role: RoleClient, PlayerID: "c"}))
	clientSession := client.session(t, "lobby")

	eventually(t, func() bool { return clientSession.Synced() && countOf(clientSession, "players") == 2 })

	if err := clientSession.SubmitAction("spawn_coin", nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, func() bool { return countOf(clientSession, "coins") == 1 })
	eventually(t, func() bool {
		snap, ok := store.Get("lobby")
		return ok && snap.Seq == hostSession.Seq()
	})

	client.stop()
	host.stop()

	reloaded, err := storage.NewFileStore[*storage.Snapshot](dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok := reloaded.Get("lobby")
	testutil.AssertEqual(t, "snapshot saved", ok, true)
	coins, _ := snap.State["coins"].(map[string]any)
	testutil.AssertEqual(t, "coins", len(coins), 1)

	resumed := run(t, newWorker(url, reloaded, hostRoom))
	again := resumed.session(t, "lobby")
	testutil.AssertEqual(t, "resumed seq", again.Seq(), snap.Seq)
	testutil.AssertEqual(t, "resumed coins", countOf(again, "coins"), 1)
}
