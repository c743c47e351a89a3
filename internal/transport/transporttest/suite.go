// Package transporttest holds a behavioural suite every transport.Transport
// implementation is expected to pass.
package transporttest

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-statesync/internal/transport"
)

// Joiner connects a new peer to a fresh room shared by one suite case.
type Joiner func(t *testing.T, playerID string, isHost bool) transport.Transport

// RoomFactory returns a Joiner bound to a new, empty room.
type RoomFactory func(t *testing.T) Joiner

// Timeout bounds how long the suite waits for asynchronous delivery.
var Timeout = 5 * time.Second

// Run executes the suite against transports produced by newRoom.
func Run(t *testing.T, newRoom RoomFactory) {
	t.Run("broadcast skips sender", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)
		a := join(t, "a", false)
		b := join(t, "b", false)
		waitPeers(t, host, "a", "b")
		waitPeers(t, a, "b", "host")

		rh, ra, rb := record(host), record(a), record(b)
		if err := host.Send([]byte("hello"), ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ra.wait(t, "hello from host")
		rb.wait(t, "hello from host")
		rh.none(t)
	})

	t.Run("unicast reaches only target", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)
		a := join(t, "a", false)
		b := join(t, "b", false)
		waitPeers(t, b, "a", "host")

		ra, rb := record(a), record(b)
		if err := b.Send([]byte("psst"), "a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rh := record(host)
		if err := b.Send([]byte("act"), "host"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := a.Send([]byte("ack"), "host"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ra.wait(t, "psst from b")
		rh.wait(t, "ack from a", "act from b")
		rb.none(t)
	})

	t.Run("handlers fan out and unsubscribe", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)
		a := join(t, "a", false)
		waitPeers(t, host, "a")

		first := record(a)
		var mu sync.Mutex
		second := 0
		unsub := a.OnMessage(func([]byte, string) {
			mu.Lock()
			second++
			mu.Unlock()
		})

		_ = host.Send([]byte("one"), "")
		first.wait(t, "one from host")
		eventually(t, "second handler", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return second == 1
		})

		unsub()
		_ = host.Send([]byte("two"), "")
		first.wait(t, "one from host", "two from host")
		mu.Lock()
		got := second
		mu.Unlock()
		if got != 1 {
			t.Errorf("unsubscribed handler called %d times", got)
		}
	})

	t.Run("membership and join events", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)

		var mu sync.Mutex
		var joined []string
		host.OnPeerJoin(func(id string) {
			mu.Lock()
			joined = append(joined, id)
			mu.Unlock()
		})

		a := join(t, "a", false)
		eventually(t, "join event", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return slices.Equal(joined, []string{"a"})
		})
		waitPeers(t, host, "a")
		waitPeers(t, a, "host")

		if got := a.PlayerID(); got != "a" {
			t.Errorf("player id = %q", got)
		}
		if a.IsHost() || !host.IsHost() {
			t.Errorf("host flags wrong: host=%v a=%v", host.IsHost(), a.IsHost())
		}
	})

	t.Run("leave and host departure", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)
		a := join(t, "a", false)
		b := join(t, "b", false)
		waitPeers(t, host, "a", "b")
		waitPeers(t, a, "b", "host")

		var mu sync.Mutex
		var left []string
		hostGone := false
		a.OnPeerLeave(func(id string) {
			mu.Lock()
			left = append(left, id)
			mu.Unlock()
		})
		if hw, ok := a.(transport.HostWatcher); ok {
			hw.OnHostDisconnect(func() {
				mu.Lock()
				hostGone = true
				mu.Unlock()
			})
		}

		if err := b.Disconnect(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		waitPeers(t, host, "a")
		if err := host.Disconnect(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		eventually(t, "leave events", func() bool {
			mu.Lock()
			defer mu.Unlock()
			got := slices.Clone(left)
			slices.Sort(got)
			return slices.Equal(got, []string{"b", "host"})
		})
		if _, ok := a.(transport.HostWatcher); ok {
			eventually(t, "host departure", func() bool {
				mu.Lock()
				defer mu.Unlock()
				return hostGone
			})
		}
		waitPeers(t, a)
	})

	t.Run("disconnect is idempotent and silences send", func(t *testing.T) {
		join := newRoom(t)
		host := join(t, "host", true)
		a := join(t, "a", false)
		waitPeers(t, host, "a")

		ra := record(a)
		if err := host.Disconnect(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := host.Disconnect(); err != nil {
			t.Fatalf("second disconnect: %v", err)
		}
		if err := host.Send([]byte("late"), ""); err != nil {
			t.Fatalf("send after disconnect: %v", err)
		}
		if err := host.Send([]byte("late"), "a"); err != nil {
			t.Fatalf("unicast after disconnect: %v", err)
		}
		ra.none(t)
	})
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func record(tr transport.Transport) *recorder {
	r := &recorder{}
	tr.OnMessage(func(data []byte, sender string) {
		r.mu.Lock()
		r.msgs = append(r.msgs, fmt.Sprintf("%s from %s", data, sender))
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

// wait blocks until exactly exp has arrived, in any order.
func (r *recorder) wait(t *testing.T, exp ...string) {
	t.Helper()
	want := slices.Clone(exp)
	slices.Sort(want)
	eventually(t, fmt.Sprintf("messages %v", exp), func() bool {
		got := r.snapshot()
		slices.Sort(got)
		return slices.Equal(got, want)
	})
}

// none checks nothing arrived after a short settling period.
func (r *recorder) none(t *testing.T) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("unexpected messages: %v", got)
	}
}

func waitPeers(t *testing.T, tr transport.Transport, exp ...string) {
	t.Helper()
	eventually(t, fmt.Sprintf("%s peers %v", tr.PlayerID(), exp), func() bool {
		got := tr.PeerIDs()
		slices.Sort(got)
		return slices.Equal(got, exp)
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(Timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
