package natsbus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pixil98/go-statesync/internal/messaging"
	"github.com/pixil98/go-statesync/internal/transport"
	"github.com/pixil98/go-statesync/internal/transport/transporttest"
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

func TestTransport_Contract(t *testing.T) {
	url := startServer(t)

	n := 0
	transporttest.Run(t, func(t *testing.T) transporttest.Joiner {
		n++
		room := fmt.Sprintf("room%d", n)
		return func(t *testing.T, playerID string, isHost bool) transport.Transport {
			tr, err := Dial(url, room, playerID, isHost)
			if err != nil {
				t.Fatalf("dialing %s: %v", playerID, err)
			}
			t.Cleanup(func() { _ = tr.Disconnect() })
			return tr
		}
	})
}

func TestTransport_PrefixIsolatesDeployments(t *testing.T) {
	url := startServer(t)

	a, err := Dial(url, "lobby", "a", true, WithPrefix("blue"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Disconnect()
	b, err := Dial(url, "lobby", "b", false, WithPrefix("green"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Disconnect()

	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, "a peers", len(a.PeerIDs()), 0)
	testutil.AssertEqual(t, "b peers", len(b.PeerIDs()), 0)
}

func TestDial_InvalidTokens(t *testing.T) {
	tests := map[string]struct {
		room   string
		player string
	}{
		"empty room":      {room: "", player: "a"},
		"dotted room":     {room: "a.b", player: "a"},
		"wildcard player": {room: "lobby", player: "*"},
		"spaced player":   {room: "lobby", player: "a b"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Dial("nats://127.0.0.1:1", tt.room, tt.player, false)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("error = %v, expected %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial("nats://127.0.0.1:1", "lobby", "a", false)
	testutil.AssertErrorContains(t, err, "connecting to")
}

func TestTransport_IgnoresSecondHost(t *testing.T) {
	url := startServer(t)

	dial := func(id string, isHost bool) *Transport {
		t.Helper()
		tr, err := Dial(url, "lobby", id, isHost)
		if err != nil {
			t.Fatalf("dialing %s: %v", id, err)
		}
		t.Cleanup(func() { _ = tr.Disconnect() })
		return tr
	}

	host := dial("h", true)
	client := dial("c", false)
	waitFor(t, func() bool { return len(host.PeerIDs()) == 1 && len(client.PeerIDs()) == 1 })

	second := dial("h2", true)
	waitFor(t, func() bool { return len(second.PeerIDs()) == 1 })
	time.Sleep(100 * time.Millisecond)

	testutil.AssertEqual(t, "host peers", host.PeerIDs(), []string{"c"})
	testutil.AssertEqual(t, "client peers", client.PeerIDs(), []string{"h"})
	testutil.AssertEqual(t, "second host peers", second.PeerIDs(), []string{"c"})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
