package session

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/williampepple1/witra/internal/wire"
)

func newPipePair(t *testing.T, downloadDir string) (*Session, *Session) {
	t.Helper()
	connA, connB := net.Pipe()
	a := New(connA, false, "peer-a", "Alice", downloadDir)
	b := New(connB, true, "peer-b", "Bob", downloadDir)
	go a.Run()
	go b.Run()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func drain(t *testing.T, ch <-chan Event, want EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed while waiting for %v", want)
			}
			if ev.Kind == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %v", want)
		}
	}
}

func TestHandshake_ConnectAcceptFlow(t *testing.T) {
	dir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	require.Equal(t, RequestReceived, b.State())

	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)
	require.Equal(t, Accepted, a.State())
}

func TestHandshake_Reject(t *testing.T) {
	dir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Reject()

	drain(t, a.Events(), EventConnectionRejected, time.Second)
	require.Equal(t, Rejected, a.State())
}

func TestFileTransfer_RoundTripFidelity(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)

	content := []byte("abc")
	srcPath := filepath.Join(srcDir, "hello.txt")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	a.SendFile(srcPath, "t1", "", 1, 1)

	started := drain(t, b.Events(), EventTransferStarted, time.Second)
	require.Equal(t, "hello.txt", started.FileName)
	require.Equal(t, int64(3), started.TotalSize)

	drain(t, b.Events(), EventFileReceived, time.Second)
	drain(t, b.Events(), EventTransferCompleted, time.Second)
	drain(t, a.Events(), EventTransferCompleted, time.Second)

	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFileTransfer_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)

	srcPath := filepath.Join(srcDir, "empty.bin")
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))

	a.SendFile(srcPath, "t1", "", 1, 1)
	drain(t, b.Events(), EventTransferStarted, time.Second)
	drain(t, b.Events(), EventFileReceived, time.Second)
	drain(t, b.Events(), EventTransferCompleted, time.Second)

	got, err := os.ReadFile(filepath.Join(dir, "empty.bin"))
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestHandshake_OutOfOrderFrameClosesSession(t *testing.T) {
	dir := t.TempDir()
	_, b := newPipePair(t, dir)

	// b never received a connection_request; a file_header on an Idle
	// session is a protocol error (spec §8, invariant 5).
	b.enqueue(func(s *Session) {
		s.handleFrame(wire.Frame{
			IsHeader: true,
			Header:   wire.TransferHeader{Type: wire.TransferFileHeader, FileName: "x"},
		})
	})

	drain(t, b.Events(), EventDisconnected, time.Second)
}

func TestCancel_DeletesPartialFileOnReceiver(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)

	big := make([]byte, 5*ChunkSizeForTest())
	srcPath := filepath.Join(srcDir, "big.bin")
	require.NoError(t, os.WriteFile(srcPath, big, 0o644))

	a.SendFile(srcPath, "t1", "", 1, 1)
	drain(t, b.Events(), EventTransferStarted, time.Second)

	a.Cancel("t1")
	drain(t, b.Events(), EventTransferFailed, 2*time.Second)

	_, err := os.Stat(filepath.Join(dir, "big.bin"))
	require.True(t, os.IsNotExist(err), "partial file must be deleted on peer-initiated cancel")
}

func TestConnectionLoss_KeepsPartialFile(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)

	srcPath := filepath.Join(srcDir, "partial.bin")
	require.NoError(t, os.WriteFile(srcPath, make([]byte, 10), 0o644))

	a.SendFile(srcPath, "t1", "", 1, 1)
	drain(t, b.Events(), EventTransferStarted, time.Second)

	a.Close() // simulate a forcibly closed stream, not a peer cancel
	drain(t, b.Events(), EventDisconnected, time.Second)

	_, err := os.Stat(filepath.Join(dir, "partial.bin"))
	require.NoError(t, err, "a partial file from connection loss is kept, not deleted")
}

func TestDestinationSuffixing_SequentialCollisions(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	a, b := newPipePair(t, dir)

	a.Connect()
	drain(t, b.Events(), EventConnectionRequestReceived, time.Second)
	b.Accept()
	drain(t, a.Events(), EventConnectionAccepted, time.Second)

	srcPath := filepath.Join(srcDir, "foo.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("1"), 0o644))

	for i := 0; i < 3; i++ {
		a.SendFile(srcPath, "t"+string(rune('0'+i)), "", 1, 1)
		drain(t, b.Events(), EventTransferStarted, time.Second)
		drain(t, b.Events(), EventFileReceived, time.Second)
		drain(t, b.Events(), EventTransferCompleted, time.Second)
	}

	for _, name := range []string{"foo.txt", "foo (1).txt", "foo (2).txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "expected %s to exist", name)
	}
}

// ChunkSizeForTest mirrors wire.ChunkSize, so the big.bin fixture spans
// five chunks.
func ChunkSizeForTest() int { return 65536 }
