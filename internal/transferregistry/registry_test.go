package transferregistry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateOutgoing(t *testing.T) {
	r := New(nil)
	tr := r.CreateOutgoing("t1", "peer-1", "Alice", "hello.txt", 100, 1)
	require.Equal(t, Outgoing, tr.Direction)
	require.Equal(t, InProgress, tr.Status)
	require.Equal(t, int64(100), tr.TotalSize)

	got, ok := r.Get("t1")
	require.True(t, ok)
	require.Equal(t, "hello.txt", got.Name)
}

func TestEnsureFile_CreatesOnFirstCallThenResetsPerFile(t *testing.T) {
	r := New(nil)
	tr := r.EnsureFile("t1", Incoming, "peer-1", "Alice", "a.bin", 100, 2, 1, "/downloads")
	require.Equal(t, int64(100), tr.TotalSize)
	require.Equal(t, int64(0), tr.BytesTransferred)

	require.NoError(t, r.UpdateProgress("t1", 100, 0))

	// Second file of a folder transfer: progress resets against the new
	// file's size (spec §9's EnsureFile grounding note).
	tr = r.EnsureFile("t1", Incoming, "peer-1", "Alice", "b.bin", 1, 2, 2, "/downloads")
	require.Equal(t, int64(1), tr.TotalSize)
	require.Equal(t, int64(0), tr.BytesTransferred)
	require.Equal(t, 2, tr.CurrentFileIndex)
}

func TestUpdateProgress_IsMonotonic(t *testing.T) {
	r := New(nil)
	r.CreateOutgoing("t1", "peer-1", "Alice", "f", 100, 1)

	require.NoError(t, r.UpdateProgress("t1", 50, 0))
	require.NoError(t, r.UpdateProgress("t1", 30, 0)) // stale/out-of-order update

	got, _ := r.Get("t1")
	require.Equal(t, int64(50), got.BytesTransferred, "progress must never regress")
}

func TestUpdateProgress_UnknownTransfer(t *testing.T) {
	r := New(nil)
	require.ErrorIs(t, r.UpdateProgress("nope", 1, 0), ErrTransferNotFound)
}

func TestCompleteAndFail(t *testing.T) {
	r := New(nil)
	r.CreateOutgoing("t1", "peer-1", "Alice", "f", 100, 1)
	require.NoError(t, r.Complete("t1"))
	got, _ := r.Get("t1")
	require.Equal(t, Completed, got.Status)

	r.CreateOutgoing("t2", "peer-1", "Alice", "f2", 100, 1)
	require.NoError(t, r.Fail("t2", "connection lost"))
	got, _ = r.Get("t2")
	require.Equal(t, Failed, got.Status)
	require.Equal(t, "connection lost", got.Error)
}

func TestHasActiveTransfersWithPeer(t *testing.T) {
	r := New(nil)
	require.False(t, r.HasActiveTransfersWithPeer("peer-1"))

	r.CreateOutgoing("t1", "peer-1", "Alice", "f", 100, 1)
	require.True(t, r.HasActiveTransfersWithPeer("peer-1"))

	require.NoError(t, r.Complete("t1"))
	require.False(t, r.HasActiveTransfersWithPeer("peer-1"))
}

func TestFailAllForSession(t *testing.T) {
	r := New(nil)
	r.CreateOutgoing("t1", "peer-1", "Alice", "f1", 100, 1)
	r.CreateOutgoing("t2", "peer-1", "Alice", "f2", 100, 1)
	r.CreateOutgoing("t3", "peer-2", "Bob", "f3", 100, 1)

	ids := r.TransferIDsForPeer("peer-1")
	require.ElementsMatch(t, []string{"t1", "t2"}, ids)

	r.FailAllForSession(ids, "connection lost")
	got1, _ := r.Get("t1")
	got2, _ := r.Get("t2")
	got3, _ := r.Get("t3")
	require.Equal(t, Failed, got1.Status)
	require.Equal(t, Failed, got2.Status)
	require.Equal(t, InProgress, got3.Status, "only the disconnected peer's transfers fail")
}

func TestSpeedSampler_ComputesBytesPerSecond(t *testing.T) {
	r := New(nil)
	r.CreateOutgoing("t1", "peer-1", "Alice", "f", 1_000_000, 1)
	r.StartSpeedSampler()
	defer r.StopSpeedSampler()

	require.NoError(t, r.UpdateProgress("t1", 500_000, 0))
	time.Sleep(SampleInterval + 200*time.Millisecond)

	got, _ := r.Get("t1")
	require.Greater(t, got.CurrentSpeed, 0.0)
}

func TestRemove(t *testing.T) {
	r := New(nil)
	r.CreateOutgoing("t1", "peer-1", "Alice", "f", 100, 1)
	r.Remove("t1")
	_, ok := r.Get("t1")
	require.False(t, ok)
}
