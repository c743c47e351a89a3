// Package transport defines the peer messaging contract the session runtime
// depends on. Concrete transports live in subpackages.
package transport

// MessageHandler receives an encoded envelope and the id of the peer that sent it.
type MessageHandler func(data []byte, senderID string)

// PeerHandler receives the id of a peer that joined or left.
type PeerHandler func(peerID string)

// Transport moves encoded envelopes between the peers of one room.
//
// Send delivers to targetID, or to every known peer except this one when
// targetID is empty. A transport never delivers a message back to its sender.
// After Disconnect, Send is a no-op that returns nil.
//
// Peer join and leave handlers only see future events; use PeerIDs for the
// current membership. Every On* method returns a function that removes the
// handler.
type Transport interface {
	Send(data []byte, targetID string) error
	OnMessage(MessageHandler) (unsubscribe func())
	OnPeerJoin(PeerHandler) (unsubscribe func())
	OnPeerLeave(PeerHandler) (unsubscribe func())
	PeerIDs() []string
	PlayerID() string
	IsHost() bool
	Disconnect() error
}

// HostWatcher is implemented by transports that can tell clients the host left.
type HostWatcher interface {
	OnHostDisconnect(func()) (unsubscribe func())
}
