// Package natsbus implements transport.Transport over NATS subjects.
//
// Each room uses four subjects under a prefix (default "statesync"):
//
//	<prefix>.<room>.all              broadcast data
//	<prefix>.<room>.peer.<id>        data addressed to one peer
//	<prefix>.<room>.presence         join and leave announcements
//	<prefix>.<room>.presence.<id>    membership replies to a joining peer
//
// All four subscriptions feed one channel drained by a single goroutine, so
// messages are handled in the order the connection received them.
package natsbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-statesync/internal/transport"
)

const (
	// SenderHeader carries the sending peer id on data messages.
	SenderHeader = "Statesync-Sender"

	DefaultPrefix     = "statesync"
	defaultBufferSize = 4096
)

var ErrInvalidToken = errors.New("invalid subject token")

type presenceKind string

const (
	presenceJoin  presenceKind = "join"
	presenceHere  presenceKind = "here"
	presenceLeave presenceKind = "leave"
)

type presence struct {
	Kind presenceKind `json:"kind"`
	ID   string       `json:"id"`
	Host bool         `json:"host"`
}

type Transport struct {
	conn   *nats.Conn
	logger *slog.Logger

	prefix   string
	room     string
	id       string
	host     bool
	natsOpts []nats.Option
	bufSize  int

	inbox chan *nats.Msg
	subs  []*nats.Subscription
	done  chan struct{}
	wg    sync.WaitGroup

	closed atomic.Bool

	mu    sync.Mutex
	peers map[string]bool // id -> is host

	msgs     transport.Handlers[transport.MessageHandler]
	joins    transport.Handlers[transport.PeerHandler]
	leaves   transport.Handlers[transport.PeerHandler]
	hostGone transport.Handlers[func()]
}

// Dial connects to the NATS server at url and joins room as playerID.
func Dial(url, room, playerID string, isHost bool, opts ...Opt) (*Transport, error) {
	t := &Transport{
		logger:  slog.Default(),
		prefix:  DefaultPrefix,
		room:    room,
		id:      playerID,
		host:    isHost,
		bufSize: defaultBufferSize,
		done:    make(chan struct{}),
		peers:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}

	for name, tok := range map[string]string{"room": room, "player id": playerID} {
		if err := validToken(tok); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	natsOpts := append([]nats.Option{
		nats.Name(fmt.Sprintf("statesync-%s-%s", room, playerID)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("nats connection lost", "room", room, "player", playerID, "error", err)
			}
		}),
	}, t.natsOpts...)

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	t.conn = conn
	t.inbox = make(chan *nats.Msg, t.bufSize)

	for _, subj := range []string{t.allSubject(), t.peerSubject(playerID), t.presenceSubject(), t.presenceSubject() + "." + playerID} {
		sub, err := conn.ChanSubscribe(subj, t.inbox)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", subj, err)
		}
		t.subs = append(t.subs, sub)
	}
	// Make sure the subscriptions are live before announcing ourselves.
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flushing subscriptions: %w", err)
	}

	t.wg.Add(1)
	go t.pump()

	if err := t.announce(t.presenceSubject(), presenceJoin); err != nil {
		_ = t.Disconnect()
		return nil, fmt.Errorf("announcing join: %w", err)
	}

	return t, nil
}

func (t *Transport) Send(data []byte, targetID string) error {
	if t.closed.Load() {
		t.logger.Warn("send on disconnected transport", "room", t.room, "player", t.id)
		return nil
	}
	if targetID == t.id {
		return nil
	}

	subj := t.allSubject()
	if targetID != "" {
		subj = t.peerSubject(targetID)
	}

	msg := nats.NewMsg(subj)
	msg.Header.Set(SenderHeader, t.id)
	msg.Data = data
	if err := t.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", subj, err)
	}
	return nil
}

func (t *Transport) OnMessage(h transport.MessageHandler) func() {
	return t.msgs.Add(h)
}

func (t *Transport) OnPeerJoin(h transport.PeerHandler) func() {
	return t.joins.Add(h)
}

func (t *Transport) OnPeerLeave(h transport.PeerHandler) func() {
	return t.leaves.Add(h)
}

func (t *Transport) OnHostDisconnect(h func()) func() {
	return t.hostGone.Add(h)
}

func (t *Transport) PeerIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Transport) PlayerID() string {
	return t.id
}

func (t *Transport) IsHost() bool {
	return t.host
}

// Disconnect announces departure and closes the connection. It is safe to
// call more than once.
func (t *Transport) Disconnect() error {
	if t.closed.Swap(true) {
		return nil
	}

	err := t.announce(t.presenceSubject(), presenceLeave)
	if err == nil {
		err = t.conn.Flush()
	}
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	close(t.done)
	t.wg.Wait()
	t.conn.Close()

	t.mu.Lock()
	t.peers = make(map[string]bool)
	t.mu.Unlock()

	t.msgs.Clear()
	t.joins.Clear()
	t.leaves.Clear()
	t.hostGone.Clear()

	if err != nil {
		return fmt.Errorf("announcing leave: %w", err)
	}
	return nil
}

func (t *Transport) pump() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.inbox:
			if strings.HasPrefix(msg.Subject, t.presenceSubject()) {
				t.handlePresence(msg)
				continue
			}
			t.handleData(msg)
		}
	}
}

func (t *Transport) handleData(msg *nats.Msg) {
	sender := msg.Header.Get(SenderHeader)
	if sender == "" || sender == t.id {
		return
	}
	for _, h := range t.msgs.Snapshot() {
		h(msg.Data, sender)
	}
}

func (t *Transport) handlePresence(msg *nats.Msg) {
	var p presence
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.logger.Warn("dropping malformed presence", "room", t.room, "error", err)
		return
	}
	if p.ID == "" || p.ID == t.id {
		return
	}

	switch p.Kind {
	case presenceJoin:
		if err := t.announce(t.presenceSubject()+"."+p.ID, presenceHere); err != nil {
			t.logger.Warn("replying to join", "room", t.room, "peer", p.ID, "error", err)
		}
		t.addPeer(p)
	case presenceHere:
		t.addPeer(p)
	case presenceLeave:
		t.mu.Lock()
		_, known := t.peers[p.ID]
		delete(t.peers, p.ID)
		t.mu.Unlock()
		if !known {
			return
		}
		for _, h := range t.leaves.Snapshot() {
			h(p.ID)
		}
		if p.Host {
			for _, h := range t.hostGone.Snapshot() {
				h()
			}
		}
	default:
		t.logger.Warn("unknown presence kind", "room", t.room, "kind", p.Kind)
	}
}

func (t *Transport) addPeer(p presence) {
	t.mu.Lock()
	if p.Host && t.hasOtherHost(p.ID) {
		t.mu.Unlock()
		t.logger.Warn("ignoring second host", "room", t.room, "peer", p.ID)
		return
	}
	_, known := t.peers[p.ID]
	t.peers[p.ID] = p.Host
	t.mu.Unlock()
	if known {
		return
	}
	for _, h := range t.joins.Snapshot() {
		h(p.ID)
	}
}

// hasOtherHost reports whether a host other than id is already known. Caller
// holds t.mu.
func (t *Transport) hasOtherHost(id string) bool {
	if t.host {
		return true
	}
	for peer, host := range t.peers {
		if host && peer != id {
			return true
		}
	}
	return false
}

func (t *Transport) announce(subject string, kind presenceKind) error {
	data, err := json.Marshal(presence{Kind: kind, ID: t.id, Host: t.host})
	if err != nil {
		return err
	}
	return t.conn.Publish(subject, data)
}

func (t *Transport) allSubject() string {
	return fmt.Sprintf("%s.%s.all", t.prefix, t.room)
}

func (t *Transport) peerSubject(id string) string {
	return fmt.Sprintf("%s.%s.peer.%s", t.prefix, t.room, id)
}

func (t *Transport) presenceSubject() string {
	return fmt.Sprintf("%s.%s.presence", t.prefix, t.room)
}

func validToken(tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if strings.ContainsAny(tok, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
var _ transport.HostWatcher = (*Transport)(nil)
