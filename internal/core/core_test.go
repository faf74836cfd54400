package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/williampepple1/witra/internal/session"
)

func newBoundSession(t *testing.T) *session.Session {
	t.Helper()
	conn, _ := net.Pipe()
	s := session.New(conn, false, "me", "Me", t.TempDir())
	go s.Run()
	t.Cleanup(s.Close)
	return s
}

func TestDisconnect_RefusesWhileTransferActive(t *testing.T) {
	c := New(Config{PeerID: "me", DisplayName: "Me", DeviceName: "dev", DownloadDir: t.TempDir(), TransferPort: 0})
	s := newBoundSession(t)
	c.tm.BindPeer("peer-1", s)
	c.transfers.CreateOutgoing("t1", "peer-1", "Alice", "f", 100, 1)

	require.ErrorIs(t, c.Disconnect("peer-1"), ErrActiveTransfer)
}

func TestDisconnect_AllowedWithNoActiveTransfer(t *testing.T) {
	c := New(Config{PeerID: "me", DisplayName: "Me", DeviceName: "dev", DownloadDir: t.TempDir(), TransferPort: 0})
	s := newBoundSession(t)
	c.tm.BindPeer("peer-1", s)

	require.NoError(t, c.Disconnect("peer-1"))
}

func TestDisconnect_UnknownPeerHasNoSession(t *testing.T) {
	c := New(Config{PeerID: "me", DisplayName: "Me", DeviceName: "dev", DownloadDir: t.TempDir(), TransferPort: 0})
	require.ErrorIs(t, c.Disconnect("nope"), ErrNoSession)
}
