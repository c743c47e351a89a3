// Package session runs one shared simulation over a transport. The host owns
// the authoritative state, applies actions and broadcasts deltas on a fixed
// interval. Clients keep a mirror, forward actions and apply deltas in order.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pixil98/go-statesync/internal/message"
	"github.com/pixil98/go-statesync/internal/patch"
	"github.com/pixil98/go-statesync/internal/rng"
	"github.com/pixil98/go-statesync/internal/transport"
)

type ChangeHandler func(state State)
type EventHandler func(payload any, senderID string)

type resumePoint struct {
	state State
	seq   uint64
}

type inboundKind int

const (
	inboundMessage inboundKind = iota
	inboundJoin
	inboundLeave
	inboundHostGone
)

type inbound struct {
	kind   inboundKind
	data   []byte
	peerID string
}

type Session struct {
	def      *Definition
	tr       transport.Transport
	logger   *slog.Logger
	clock    clockwork.Clock
	interval time.Duration

	seed           *int64
	initialPlayers []string
	resume         *resumePoint

	playerID string
	isHost   bool
	random   *rng.Source

	// mu guards everything below it.
	mu        sync.Mutex
	state     State
	baseline  State
	seq       uint64
	synced    bool
	resyncing bool
	hostID    string
	destroyed bool
	unsubs    []func()

	inboxMu sync.Mutex
	inbox   []inbound
	notify  chan struct{}
	done    chan struct{}

	changes  transport.Handlers[ChangeHandler]
	hostGone transport.Handlers[func()]

	eventsMu sync.Mutex
	events   map[string]*transport.Handlers[EventHandler]
}

// New starts a session for the local peer of tr. A host builds its initial
// state with def.Setup; a client starts empty and waits for a full state.
func New(def *Definition, tr transport.Transport, opts ...Opt) (*Session, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validating definition: %w", err)
	}
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}

	s := &Session{
		def:      def,
		tr:       tr,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		interval: DefaultSyncInterval,
		playerID: tr.PlayerID(),
		isHost:   tr.IsHost(),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		events:   make(map[string]*transport.Handlers[EventHandler]),
	}

	for _, opt := range opts {
		opt(s)
	}

	seed := s.clock.Now().UnixNano()
	if s.seed != nil {
		seed = *s.seed
	}
	s.random = rng.New(seed)
	s.logger = s.logger.With("player", s.playerID, "host", s.isHost)

	if s.isHost {
		switch {
		case s.resume != nil:
			s.state = cloneState(s.resume.state)
			s.seq = s.resume.seq
		default:
			s.state = def.Setup(s.startingPlayers(), s.random)
		}
		if s.state == nil {
			s.state = State{}
		}
		s.baseline = cloneState(s.state)
		s.synced = true
	} else {
		s.state = State{}
	}

	s.unsubs = append(s.unsubs,
		tr.OnMessage(func(data []byte, senderID string) {
			s.enqueue(inbound{kind: inboundMessage, data: data, peerID: senderID})
		}),
		tr.OnPeerJoin(func(peerID string) {
			s.enqueue(inbound{kind: inboundJoin, peerID: peerID})
		}),
		tr.OnPeerLeave(func(peerID string) {
			s.enqueue(inbound{kind: inboundLeave, peerID: peerID})
		}),
	)
	if hw, ok := tr.(transport.HostWatcher); ok {
		s.unsubs = append(s.unsubs, hw.OnHostDisconnect(func() {
			s.enqueue(inbound{kind: inboundHostGone})
		}))
	}

	s.mu.Lock()
	switch {
	case s.isHost && len(tr.PeerIDs()) > 0:
		// Peers that connected before the host came up never see it join.
		s.sendFullState("")
	case !s.isHost:
		// The host may have answered our join before the handlers above
		// were registered.
		s.sendResync()
	}
	s.mu.Unlock()

	return s, nil
}

func (s *Session) startingPlayers() []string {
	if s.initialPlayers != nil {
		return append([]string(nil), s.initialPlayers...)
	}
	ids := append([]string{s.playerID}, s.tr.PeerIDs()...)
	sort.Strings(ids)
	return ids
}

func (s *Session) PlayerID() string {
	return s.playerID
}

func (s *Session) IsHost() bool {
	return s.isHost
}

// Seq returns the last patch batch emitted by a host or applied by a client.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Synced reports whether the local state has a baseline. A host is always
// synced; a client is synced once it has received a full state.
func (s *Session) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// State returns a deep copy of the local state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Snapshot returns a copy of the state together with the current seq.
func (s *Session) Snapshot() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state), s.seq
}

// View calls fn with the live state while holding the session lock. fn must
// not modify state or call back into the session.
func (s *Session) View(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// SubmitAction runs an action. On the host it applies immediately and returns
// the action's error; on a client it forwards the action to the host.
// Unknown action names are logged and ignored.
func (s *Session) SubmitAction(name string, input any, targetID string) error {
	if !s.isHost {
		return s.forward(name, input, targetID)
	}

	var ran bool
	var err error
	if !s.locked(func() { ran, err = s.apply(name, input, s.playerID, targetID) }) {
		return ErrDestroyed
	}
	if ran {
		s.emitChange()
	}
	return err
}

func (s *Session) forward(name string, input any, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}

	if _, ok := s.def.Actions[name]; !ok {
		s.logger.Warn("unknown action", "action", name)
		return nil
	}
	data, err := s.encode(message.Action{Name: name, Input: input, TargetID: targetID})
	if err != nil {
		return fmt.Errorf("encoding action %q: %w", name, err)
	}
	if err := s.tr.Send(data, s.hostID); err != nil {
		return fmt.Errorf("forwarding action %q: %w", name, err)
	}
	return nil
}

// locked runs fn with s.mu held and reports whether it ran. It does not run
// fn once the session is destroyed. The lock is released if fn panics.
func (s *Session) locked(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	fn()
	return true
}

// apply runs an action against host state. Caller holds s.mu.
func (s *Session) apply(name string, input any, playerID, targetID string) (bool, error) {
	action, ok := s.def.Actions[name]
	if !ok {
		s.logger.Warn("unknown action", "action", name, "from", playerID)
		return false, nil
	}
	if targetID == "" {
		targetID = playerID
	}

	ctx := Context{
		PlayerID: playerID,
		TargetID: targetID,
		IsHost:   true,
		Random:   s.random,
	}
	if err := action.Apply(s.state, ctx, input); err != nil {
		return true, fmt.Errorf("action %q: %w", name, err)
	}
	return true, nil
}

// BroadcastEvent sends a stateless event to every peer and to local listeners.
func (s *Session) BroadcastEvent(name string, payload any) error {
	if name == "" {
		return fmt.Errorf("event name is required")
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	data, err := s.encode(message.Event{Name: name, Payload: payload})
	if err == nil {
		err = s.tr.Send(data, "")
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("broadcasting event %q: %w", name, err)
	}
	s.emitEvent(name, payload, s.playerID)
	return nil
}

// Restore replaces host state, for example from a snapshot. Peers get the
// difference on the next tick.
func (s *Session) Restore(state State) error {
	if !s.isHost {
		return ErrNotHost
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.state = cloneState(state)
	if s.state == nil {
		s.state = State{}
	}
	s.mu.Unlock()

	s.emitChange()
	return nil
}

// Tick diffs host state against what peers last received and broadcasts the
// patches. It does nothing on a client or when nothing changed.
func (s *Session) Tick(context.Context) error {
	if !s.isHost {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}
	return s.flush()
}

// flush broadcasts pending host changes. Caller holds s.mu.
func (s *Session) flush() error {
	patches := patch.Diff(s.baseline, s.state)
	if len(patches) == 0 {
		return nil
	}

	s.seq++
	s.baseline = cloneState(s.state)
	data, err := s.encode(message.Patches{Patches: patches, Seq: s.seq})
	if err != nil {
		return fmt.Errorf("encoding patches: %w", err)
	}
	if err := s.tr.Send(data, ""); err != nil {
		return fmt.Errorf("broadcasting patches: %w", err)
	}
	return nil
}

// sendFullState sends the current host state. Pending changes are flushed
// first so the snapshot matches the seq it carries. Caller holds s.mu.
func (s *Session) sendFullState(targetID string) {
	if err := s.flush(); err != nil {
		s.logger.Warn("flushing before full state", "error", err)
	}

	data, err := s.encode(message.FullState{State: s.baseline, Seq: s.seq})
	if err != nil {
		s.logger.Error("encoding full state", "error", err)
		return
	}
	if err := s.tr.Send(data, targetID); err != nil {
		s.logger.Warn("sending full state", "to", targetID, "error", err)
	}
}

func (s *Session) encode(m message.Message) ([]byte, error) {
	return message.Encode(message.Envelope{
		Message:   m,
		SenderID:  s.playerID,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

// OnChange registers a listener called after local state changes. It
// receives a copy of the state.
func (s *Session) OnChange(h ChangeHandler) func() {
	return s.changes.Add(h)
}

// OnEvent registers a listener for events named name, local or remote.
func (s *Session) OnEvent(name string, h EventHandler) func() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	hs, ok := s.events[name]
	if !ok {
		hs = &transport.Handlers[EventHandler]{}
		s.events[name] = hs
	}
	return hs.Add(h)
}

// OnHostDisconnect registers a listener called when the host leaves. Only
// transports that report host departure trigger it.
func (s *Session) OnHostDisconnect(h func()) func() {
	return s.hostGone.Add(h)
}

func (s *Session) emitChange() {
	hs := s.changes.Snapshot()
	if len(hs) == 0 {
		return
	}
	snap := s.State()
	for _, h := range hs {
		h(snap)
	}
}

func (s *Session) emitEvent(name string, payload any, senderID string) {
	s.eventsMu.Lock()
	hs, ok := s.events[name]
	s.eventsMu.Unlock()
	if !ok {
		return
	}
	for _, h := range hs.Snapshot() {
		h(payload, senderID)
	}
}

func (s *Session) enqueue(in inbound) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, in)
	s.inboxMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Process handles every queued transport event and returns how many it
// handled. Run calls it; tests can call it directly to step a session.
func (s *Session) Process() int {
	n := 0
	for {
		s.inboxMu.Lock()
		if len(s.inbox) == 0 {
			s.inbox = nil
			s.inboxMu.Unlock()
			return n
		}
		in := s.inbox[0]
		s.inbox = s.inbox[1:]
		s.inboxMu.Unlock()

		s.handle(in)
		n++
	}
}

func (s *Session) handle(in inbound) {
	switch in.kind {
	case inboundMessage:
		s.handleMessage(in.data, in.peerID)
	case inboundJoin:
		s.handleJoin(in.peerID)
	case inboundLeave:
		s.handleLeave(in.peerID)
	case inboundHostGone:
		s.logger.Info("host disconnected")
		// A replacement host is accepted on its first full state.
		s.locked(func() { s.hostID = "" })
		for _, h := range s.hostGone.Snapshot() {
			h()
		}
	}
}

func (s *Session) handleMessage(data []byte, senderID string) {
	env, err := message.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed message", "from", senderID, "error", err)
		return
	}

	switch m := env.Message.(type) {
	case message.Action:
		s.handleAction(m, senderID)
	case message.FullState:
		s.handleFullState(m, senderID)
	case message.Patches:
		s.handlePatches(m, senderID)
	case message.Event:
		if s.isDestroyed() {
			return
		}
		s.emitEvent(m.Name, m.Payload, senderID)
	case message.Resync:
		s.handleResync(m, senderID)
	}
}

func (s *Session) handleAction(m message.Action, senderID string) {
	if !s.isHost {
		return
	}

	var ran bool
	var err error
	if !s.locked(func() { ran, err = s.apply(m.Name, m.Input, senderID, m.TargetID) }) {
		return
	}
	if err != nil {
		s.logger.Warn("remote action failed", "from", senderID, "error", err)
	}
	if ran {
		s.emitChange()
	}
}

func (s *Session) handleFullState(m message.FullState, senderID string) {
	if s.isHost {
		s.logger.Warn("host ignoring full state", "from", senderID)
		return
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if !s.fromHost(senderID) {
		s.logger.Warn("ignoring full state from non-host", "from", senderID, "host", s.hostID)
		s.mu.Unlock()
		return
	}
	if m.State == nil {
		m.State = State{}
	}
	s.state = m.State
	s.seq = m.Seq
	s.synced = true
	s.resyncing = false
	s.hostID = senderID
	s.mu.Unlock()

	s.emitChange()
}

func (s *Session) handlePatches(m message.Patches, senderID string) {
	if s.isHost {
		s.logger.Warn("host ignoring patches", "from", senderID)
		return
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if !s.fromHost(senderID) {
		s.logger.Warn("ignoring patches from non-host", "from", senderID, "host", s.hostID)
		s.mu.Unlock()
		return
	}
	if !s.synced {
		// Ask again if the opening request could not be sent.
		s.requestResync()
		s.mu.Unlock()
		return
	}
	if m.Seq <= s.seq {
		s.logger.Debug("dropping stale patches", "seq", m.Seq, "last", s.seq)
		s.mu.Unlock()
		return
	}
	if m.Seq != s.seq+1 {
		s.logger.Warn("patch sequence gap", "seq", m.Seq, "last", s.seq)
		s.requestResync()
		s.mu.Unlock()
		return
	}

	// A failed batch may leave the mirror half patched; the full state
	// answering the resync replaces it.
	next, err := patch.ApplyAll(s.state, m.Patches)
	if err != nil {
		s.logger.Warn("applying patches", "seq", m.Seq, "error", err)
		s.requestResync()
		s.mu.Unlock()
		return
	}
	root, ok := next.(map[string]any)
	if !ok {
		s.logger.Warn("patches replaced state root with a non-object", "seq", m.Seq)
		s.requestResync()
		s.mu.Unlock()
		return
	}
	s.state = root
	s.seq = m.Seq
	s.hostID = senderID
	s.mu.Unlock()

	s.emitChange()
}

// fromHost reports whether a client should accept state from senderID. Until
// a full state arrives any sender is taken as the host. Caller holds s.mu.
func (s *Session) fromHost(senderID string) bool {
	return s.hostID == "" || s.hostID == senderID
}

// requestResync asks the host for a full state unless a request is already
// outstanding. Caller holds s.mu.
func (s *Session) requestResync() {
	if s.resyncing {
		return
	}
	s.sendResync()
}

// sendResync asks the host for a full state. Caller holds s.mu.
func (s *Session) sendResync() {
	data, err := s.encode(message.Resync{LastSeq: s.seq})
	if err != nil {
		s.logger.Error("encoding resync", "error", err)
		return
	}
	if err := s.tr.Send(data, s.hostID); err != nil {
		s.logger.Warn("requesting resync", "error", err)
		return
	}
	s.resyncing = true
}

func (s *Session) handleResync(m message.Resync, senderID string) {
	if !s.isHost {
		return
	}

	s.locked(func() {
		s.logger.Info("resyncing peer", "peer", senderID, "last", m.LastSeq, "seq", s.seq)
		s.sendFullState(senderID)
	})
}

func (s *Session) handleJoin(peerID string) {
	if !s.isHost {
		return
	}

	var ran bool
	if !s.locked(func() {
		ran = s.runHook(s.def.OnPlayerJoin, "join", peerID)
		s.sendFullState(peerID)
	}) {
		return
	}
	if ran {
		s.emitChange()
	}
}

func (s *Session) handleLeave(peerID string) {
	if !s.isHost {
		return
	}

	var ran bool
	if !s.locked(func() { ran = s.runHook(s.def.OnPlayerLeave, "leave", peerID) }) {
		return
	}
	if ran {
		s.emitChange()
	}
}

// runHook reports whether the hook ran. Caller holds s.mu.
func (s *Session) runHook(hook HookFunc, kind, peerID string) bool {
	if hook == nil {
		return false
	}
	ctx := Context{
		PlayerID: peerID,
		TargetID: peerID,
		IsHost:   true,
		Random:   s.random,
	}
	if err := hook(s.state, ctx); err != nil {
		s.logger.Warn("player hook failed", "hook", kind, "peer", peerID, "error", err)
	}
	return true
}

func (s *Session) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Run processes transport events and, on the host, ticks every sync
// interval until ctx is canceled or the session is destroyed. The session is
// destroyed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Destroy()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-s.notify:
			s.Process()
		case <-ticker.Chan():
			s.Process()
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("sync tick failed", "error", err)
			}
		}
	}
}

// Start runs the session as a service worker.
func (s *Session) Start(ctx context.Context) error {
	return s.Run(ctx)
}

// Destroy detaches the session from its transport and drops its listeners.
// The transport itself stays connected. Calling Destroy again is harmless.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	unsubs := s.unsubs
	s.unsubs = nil
	close(s.done)
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}

	s.inboxMu.Lock()
	s.inbox = nil
	s.inboxMu.Unlock()

	s.changes.Clear()
	s.hostGone.Clear()
	s.eventsMu.Lock()
	s.events = make(map[string]*transport.Handlers[EventHandler])
	s.eventsMu.Unlock()
}

// Destroyed is closed once the session is destroyed.
func (s *Session) Destroyed() <-chan struct{} {
	return s.done
}

func cloneState(st State) State {
	if st == nil {
		return nil
	}
	return patch.Clone(st).(map[string]any)
}
