package peerregistry

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discoveryUpdate(id string) DiscoveryUpdate {
	return DiscoveryUpdate{
		PeerID:       id,
		DisplayName:  "Alice",
		DeviceName:   "alices-laptop",
		Address:      net.IPv4(192, 168, 1, 10),
		TransferPort: 45679,
	}
}

func TestOnDiscovered_InsertsThenUpdates(t *testing.T) {
	var changes []Change
	var mu sync.Mutex
	r := New(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	r.OnDiscovered(discoveryUpdate("p1"))
	upd := discoveryUpdate("p1")
	upd.DisplayName = "Alice B."
	r.OnDiscovered(upd)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	require.Equal(t, Added, changes[0].Kind)
	require.Equal(t, Updated, changes[1].Kind)
	require.Equal(t, "Alice B.", changes[1].Peer.DisplayName)

	peer, ok := r.Get("p1")
	require.True(t, ok)
	require.Equal(t, Discovered, peer.State)
}

func TestOnGoodbye_RemovesPeer(t *testing.T) {
	var last Change
	r := New(func(c Change) { last = c })
	r.OnDiscovered(discoveryUpdate("p1"))
	r.OnGoodbye("p1")

	require.Equal(t, Removed, last.Kind)
	_, ok := r.Get("p1")
	require.False(t, ok)
}

func TestOnGoodbye_UnknownPeerIsNoOp(t *testing.T) {
	called := false
	r := New(func(Change) { called = true })
	r.OnGoodbye("nope")
	require.False(t, called)
}

func TestConnectionStateTransitions(t *testing.T) {
	r := New(nil)
	r.OnDiscovered(discoveryUpdate("p1"))

	require.NoError(t, r.RequestConnect("p1"))
	peer, _ := r.Get("p1")
	require.Equal(t, RequestSent, peer.State)

	require.ErrorIs(t, r.RequestConnect("p1"), ErrIllegalTransition, "cannot request-connect twice")

	require.NoError(t, r.MarkConnected("p1"))
	peer, _ = r.Get("p1")
	require.Equal(t, Connected, peer.State)

	require.NoError(t, r.MarkDisconnected("p1"))
	peer, _ = r.Get("p1")
	require.Equal(t, Discovered, peer.State)
}

func TestAcceptIncoming_RequiresRequestReceived(t *testing.T) {
	r := New(nil)
	r.OnDiscovered(discoveryUpdate("p1"))
	require.ErrorIs(t, r.AcceptIncoming("p1"), ErrIllegalTransition)

	r.MarkRequestReceived("p1", "Alice")
	require.NoError(t, r.AcceptIncoming("p1"))
}

func TestMarkRequestReceived_CreatesPlaceholderForUnknownPeer(t *testing.T) {
	// spec §9 open question: an incoming connection can arrive before the
	// corresponding discovery datagram. The registry must not error.
	r := New(nil)
	r.MarkRequestReceived("unknown-peer", "Bob")
	peer, ok := r.Get("unknown-peer")
	require.True(t, ok)
	require.Equal(t, RequestReceived, peer.State)
	require.Equal(t, "Bob", peer.DisplayName)
}

func TestTransition_UnknownPeer(t *testing.T) {
	r := New(nil)
	require.ErrorIs(t, r.RequestConnect("nope"), ErrPeerNotFound)
}

func TestReaper_RemovesStalePeers(t *testing.T) {
	removed := make(chan string, 1)
	r := New(func(c Change) {
		if c.Kind == Removed {
			removed <- c.Peer.ID
		}
	})

	r.OnDiscovered(discoveryUpdate("stale"))
	// Backdate the record's last-seen past PeerTimeout without waiting
	// for real wall-clock time to pass.
	r.mu.Lock()
	r.peers["stale"].lastSeen = time.Now().Add(-PeerTimeout - time.Second)
	r.mu.Unlock()

	r.reapTimedOut()

	select {
	case id := <-removed:
		require.Equal(t, "stale", id)
	case <-time.After(time.Second):
		t.Fatal("expected stale peer to be reaped")
	}
}

func TestList_ReturnsSnapshot(t *testing.T) {
	r := New(nil)
	r.OnDiscovered(discoveryUpdate("p1"))
	r.OnDiscovered(discoveryUpdate("p2"))
	require.Len(t, r.List(), 2)
}
