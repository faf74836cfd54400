package peerregistry

import (
	"errors"
	"sync"
	"time"
)

// PeerTimeout is the silence interval after which a peer record is reaped
// (spec §3, §5): 10 s without an announce.
const PeerTimeout = 10 * time.Second

// ReapInterval is how often the cleanup timer runs (spec §4.5): half the
// timeout.
const ReapInterval = PeerTimeout / 2

// ChangeKind discriminates what happened to a peer record.
type ChangeKind int

const (
	Added ChangeKind = iota
	Updated
	Removed
)

// Change is emitted by the registry on every mutation (spec §4.5:
// "emitting PeerAdded or PeerUpdated"/"removes the record, emitting
// PeerRemoved").
type Change struct {
	Kind ChangeKind
	Peer Peer // always populated, even for Removed (last known snapshot)
}

// DiscoveryUpdate is the input the registry consumes from the discovery
// service (spec §4.2's PeerDiscovered event, renamed to avoid import cycles).
type DiscoveryUpdate struct {
	PeerID       string
	DisplayName  string
	DeviceName   string
	Address      []byte // net.IP bytes; kept untyped here to avoid importing net twice
	TransferPort int
}

// Registry holds peers by id behind a single mutex, following the teacher's
// activeMu/activeTransfers shape in internal/serverudp/serverudp.go. All
// methods are safe for concurrent use; the registry itself is the single
// owner of peer state (spec §3: "Peer registry owns peer records").
type Registry struct {
	mu       sync.Mutex
	peers    map[string]*record
	onChange func(Change)

	reapTicker *time.Ticker
	reapDone   chan struct{}
	reapOnce   sync.Once
}

// New creates an empty registry. onChange is invoked (on the calling
// goroutine of whichever method triggered it) for every Added/Updated/
// Removed transition; it must not block.
func New(onChange func(Change)) *Registry {
	if onChange == nil {
		onChange = func(Change) {}
	}
	return &Registry{
		peers:    make(map[string]*record),
		onChange: onChange,
	}
}

// StartReaper launches the background timeout sweep (spec §4.5, every
// PEER_TIMEOUT/2). Call StopReaper to release it.
func (r *Registry) StartReaper() {
	r.mu.Lock()
	if r.reapTicker != nil {
		r.mu.Unlock()
		return
	}
	r.reapTicker = time.NewTicker(ReapInterval)
	r.reapDone = make(chan struct{})
	ticker := r.reapTicker
	done := r.reapDone
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.reapTimedOut()
			case <-done:
				return
			}
		}
	}()
}

// StopReaper halts the background sweep.
func (r *Registry) StopReaper() {
	r.reapOnce.Do(func() {
		r.mu.Lock()
		if r.reapTicker != nil {
			r.reapTicker.Stop()
		}
		done := r.reapDone
		r.mu.Unlock()
		if done != nil {
			close(done)
		}
	})
}

// OnDiscovered inserts or refreshes a peer record (spec §4.5).
func (r *Registry) OnDiscovered(upd DiscoveryUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if rec, ok := r.peers[upd.PeerID]; ok {
		rec.displayName = upd.DisplayName
		rec.deviceName = upd.DeviceName
		rec.address = upd.Address
		rec.transferPort = upd.TransferPort
		rec.lastSeen = now
		r.onChange(Change{Kind: Updated, Peer: rec.snapshot()})
		return
	}

	rec := &record{
		id:           upd.PeerID,
		displayName:  upd.DisplayName,
		deviceName:   upd.DeviceName,
		address:      upd.Address,
		transferPort: upd.TransferPort,
		lastSeen:     now,
		state:        Discovered,
	}
	r.peers[upd.PeerID] = rec
	r.onChange(Change{Kind: Added, Peer: rec.snapshot()})
}

// OnGoodbye removes a peer record on an explicit goodbye (spec §3, §4.5).
func (r *Registry) OnGoodbye(peerID string) {
	r.remove(peerID)
}

func (r *Registry) remove(peerID string) {
	r.mu.Lock()
	rec, ok := r.peers[peerID]
	if ok {
		delete(r.peers, peerID)
	}
	r.mu.Unlock()
	if ok {
		r.onChange(Change{Kind: Removed, Peer: rec.snapshot()})
	}
}

func (r *Registry) reapTimedOut() {
	deadline := time.Now().Add(-PeerTimeout)
	r.mu.Lock()
	var timedOut []string
	for id, rec := range r.peers {
		if rec.lastSeen.Before(deadline) {
			timedOut = append(timedOut, id)
		}
	}
	r.mu.Unlock()
	for _, id := range timedOut {
		r.remove(id)
	}
}

// Get returns a snapshot of the peer with the given id.
func (r *Registry) Get(peerID string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[peerID]
	if !ok {
		return Peer{}, false
	}
	return rec.snapshot(), true
}

// List returns a snapshot of every known peer.
func (r *Registry) List() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, 0, len(r.peers))
	for _, rec := range r.peers {
		out = append(out, rec.snapshot())
	}
	return out
}

var (
	// ErrPeerNotFound is returned by the state-transition operations when
	// the peer id is unknown (spec §9: "the transfer registry handles null
	// defensively" — surfaced here as a normal error instead).
	ErrPeerNotFound = errors.New("peerregistry: peer not found")
	// ErrIllegalTransition is returned when a transition violates the
	// invariants in spec §3.
	ErrIllegalTransition = errors.New("peerregistry: illegal connection state transition")
)

// RequestConnect advances a peer from Discovered to RequestSent (spec §4.5,
// requested by the transfer manager, never by the raw discovery layer).
func (r *Registry) RequestConnect(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return RequestSent, s == Discovered
	})
}

// AcceptIncoming advances a peer from RequestReceived to Connected.
func (r *Registry) AcceptIncoming(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return Connected, s == RequestReceived
	})
}

// RejectIncoming returns a peer from RequestReceived to Discovered.
func (r *Registry) RejectIncoming(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return Discovered, s == RequestReceived
	})
}

// MarkRequestReceived records an inbound connection_request (spec §4.3's
// handshake table: Idle (incoming) -> RequestReceived). If the peer id is
// unknown (spec §9 open question: session arrives ahead of discovery), the
// registry creates a placeholder record rather than failing.
func (r *Registry) MarkRequestReceived(peerID, displayName string) {
	r.mu.Lock()
	rec, ok := r.peers[peerID]
	if !ok {
		rec = &record{id: peerID, displayName: displayName, lastSeen: time.Now(), state: Discovered}
		r.peers[peerID] = rec
	}
	rec.state = RequestReceived
	if displayName != "" {
		rec.displayName = displayName
	}
	snap := rec.snapshot()
	r.mu.Unlock()
	r.onChange(Change{Kind: Updated, Peer: snap})
}

// MarkConnected transitions a peer to Connected from RequestSent or
// RequestReceived (spec §3). Used when the local side receives
// connection_accept on an outgoing session, or completes the local accept().
func (r *Registry) MarkConnected(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return Connected, s == RequestSent || s == RequestReceived
	})
}

// MarkDisconnected returns a peer to Discovered from any non-terminal state
// when its backing session closes (spec §3). It applies whenever invoked;
// neither it nor its caller (core, on a session's disconnect) checks
// whether another live session still exists for the peer.
func (r *Registry) MarkDisconnected(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return Discovered, s != Disconnected
	})
}

// MarkRejectedByPeer returns a peer to Discovered after the remote side
// rejected our outgoing connection_request.
func (r *Registry) MarkRejectedByPeer(peerID string) error {
	return r.transition(peerID, func(s ConnectionState) (ConnectionState, bool) {
		return Discovered, s == RequestSent
	})
}

func (r *Registry) transition(peerID string, next func(ConnectionState) (ConnectionState, bool)) error {
	r.mu.Lock()
	rec, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return ErrPeerNotFound
	}
	to, legal := next(rec.state)
	if !legal {
		r.mu.Unlock()
		return ErrIllegalTransition
	}
	rec.state = to
	snap := rec.snapshot()
	r.mu.Unlock()
	r.onChange(Change{Kind: Updated, Peer: snap})
	return nil
}
