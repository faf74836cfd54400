// Package peerregistry maintains the in-memory table of known peers: state
// transitions, last-seen bookkeeping, and the timeout reaper (spec §4.5).
//
// Grounded on original_source/src/core/PeerManager.cpp for the state machine
// and on internal/serverudp/serverudp.go's activeMu sync.Mutex + map pattern
// for the concurrency shape (single mutex guarding a map, atomic counters
// left to the caller).
package peerregistry

import (
	"net"
	"time"
)

// ConnectionState is one of the five states a peer's connection may be in
// (spec §3).
type ConnectionState int

const (
	Discovered ConnectionState = iota
	RequestSent
	RequestReceived
	Connected
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Discovered:
		return "Discovered"
	case RequestSent:
		return "RequestSent"
	case RequestReceived:
		return "RequestReceived"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Peer is an immutable snapshot of a peer record, safe to pass across
// goroutines and to store in events (spec §3).
type Peer struct {
	ID           string
	DisplayName  string
	DeviceName   string
	Address      net.IP
	TransferPort int
	LastSeen     time.Time
	State        ConnectionState
}

// record is the registry's mutable, single-owner entry. Only the registry
// mutates it, under its mutex; copies handed out as Peer are frozen.
type record struct {
	id           string
	displayName  string
	deviceName   string
	address      net.IP
	transferPort int
	lastSeen     time.Time
	state        ConnectionState
	sessionCount int // live sessions referencing this peer (spec §3)
}

func (r *record) snapshot() Peer {
	return Peer{
		ID:           r.id,
		DisplayName:  r.displayName,
		DeviceName:   r.deviceName,
		Address:      r.address,
		TransferPort: r.transferPort,
		LastSeen:     r.lastSeen,
		State:        r.state,
	}
}
