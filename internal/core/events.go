// Package core wires the peer registry, transfer registry, discovery
// service, and transport layer together behind a single facade (spec §4;
// the "Design Note" in §9 has one process play both client and server
// roles, so there is exactly one core.Core per running instance).
package core

import (
	"fmt"

	"github.com/williampepple1/witra/internal/peerregistry"
	"github.com/williampepple1/witra/internal/transferregistry"
)

// EventKind discriminates the public events emitted by the core (spec §6).
type EventKind int

const (
	EventPeerAdded EventKind = iota
	EventPeerUpdated
	EventPeerRemoved
	EventConnectionRequestReceived
	EventConnectionAccepted
	EventConnectionRejected
	EventTransferAdded
	EventTransferUpdated
	EventTransferRemoved
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPeerAdded:
		return "PeerAdded"
	case EventPeerUpdated:
		return "PeerUpdated"
	case EventPeerRemoved:
		return "PeerRemoved"
	case EventConnectionRequestReceived:
		return "ConnectionRequestReceived"
	case EventConnectionAccepted:
		return "ConnectionAccepted"
	case EventConnectionRejected:
		return "ConnectionRejected"
	case EventTransferAdded:
		return "TransferAdded"
	case EventTransferUpdated:
		return "TransferUpdated"
	case EventTransferRemoved:
		return "TransferRemoved"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is the single type published on the core's event bus. Only the
// field(s) relevant to Kind are populated; the rest are left zero.
type Event struct {
	Kind EventKind

	Peer     peerregistry.Peer
	PeerID   string // PeerRemoved and the handshake events
	PeerName string // display name at the moment of the handshake event

	Transfer transferregistry.Transfer

	Message string // EventError
}

func (e Event) String() string {
	switch e.Kind {
	case EventPeerAdded, EventPeerUpdated:
		return fmt.Sprintf("%s{peer_id=%s, display_name=%s}", e.Kind, e.Peer.ID, e.Peer.DisplayName)
	case EventPeerRemoved:
		return fmt.Sprintf("%s{peer_id=%s}", e.Kind, e.PeerID)
	case EventConnectionRequestReceived, EventConnectionAccepted, EventConnectionRejected:
		return fmt.Sprintf("%s{peer_id=%s, peer_name=%s}", e.Kind, e.PeerID, e.PeerName)
	case EventTransferAdded, EventTransferUpdated, EventTransferRemoved:
		return fmt.Sprintf("%s{transfer_id=%s, name=%s, bytes=%d/%d}", e.Kind, e.Transfer.ID, e.Transfer.Name, e.Transfer.BytesTransferred, e.Transfer.TotalSize)
	case EventError:
		return fmt.Sprintf("%s{%s}", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

// Sink receives events published by the core; the internal event bus
// implements it. The UI and CLI consume events through Core.Subscribe,
// which hands back a channel instead.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

// Notify implements Sink.
func (f SinkFunc) Notify(e Event) { f(e) }
