package transferregistry

import (
	"errors"
	"sync"
	"time"
)

// SampleInterval is how often CurrentSpeed is recomputed (spec §4.6: "every
// second, speed = (bytes_now - bytes_then) * 1000 / elapsed_ms").
const SampleInterval = 1 * time.Second

// ChangeKind discriminates what happened to a transfer record.
type ChangeKind int

const (
	Added ChangeKind = iota
	Updated
	Removed
)

// Change is emitted on every mutation (spec §6: TransferAdded/Updated/Removed).
type Change struct {
	Kind     ChangeKind
	Transfer Transfer
}

// Registry holds transfers by id behind a single mutex (same shape as
// peerregistry.Registry, grounded on the teacher's activeMu pattern).
type Registry struct {
	mu        sync.Mutex
	transfers map[string]*record
	onChange  func(Change)

	sampleTicker *time.Ticker
	sampleDone   chan struct{}
	sampleOnce   sync.Once
}

// New creates an empty registry.
func New(onChange func(Change)) *Registry {
	if onChange == nil {
		onChange = func(Change) {}
	}
	return &Registry{
		transfers: make(map[string]*record),
		onChange:  onChange,
	}
}

// StartSpeedSampler launches the once-a-second speed recomputation for every
// InProgress transfer (spec §4.6).
func (r *Registry) StartSpeedSampler() {
	r.mu.Lock()
	if r.sampleTicker != nil {
		r.mu.Unlock()
		return
	}
	r.sampleTicker = time.NewTicker(SampleInterval)
	r.sampleDone = make(chan struct{})
	ticker := r.sampleTicker
	done := r.sampleDone
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.sampleSpeeds()
			case <-done:
				return
			}
		}
	}()
}

// StopSpeedSampler halts the sampler.
func (r *Registry) StopSpeedSampler() {
	r.sampleOnce.Do(func() {
		r.mu.Lock()
		if r.sampleTicker != nil {
			r.sampleTicker.Stop()
		}
		done := r.sampleDone
		r.mu.Unlock()
		if done != nil {
			close(done)
		}
	})
}

func (r *Registry) sampleSpeeds() {
	now := time.Now()
	r.mu.Lock()
	var changed []Transfer
	for _, rec := range r.transfers {
		if rec.Status != InProgress {
			continue
		}
		elapsedMs := now.Sub(rec.lastSampleAt).Milliseconds()
		if elapsedMs <= 0 {
			continue
		}
		deltaBytes := rec.BytesTransferred - rec.lastSampleBytes
		rec.CurrentSpeed = float64(deltaBytes) * 1000 / float64(elapsedMs)
		rec.lastSampleBytes = rec.BytesTransferred
		rec.lastSampleAt = now
		changed = append(changed, rec.snapshot())
	}
	r.mu.Unlock()
	for _, t := range changed {
		r.onChange(Change{Kind: Updated, Transfer: t})
	}
}

// CreateOutgoing registers a new outgoing transfer (spec §4.6: "Creates a
// transfer on outgoing sendFiles/sendFolder").
func (r *Registry) CreateOutgoing(id, peerID, peerName, name string, totalSize int64, totalFiles int) Transfer {
	now := time.Now()
	rec := &record{
		Transfer: Transfer{
			ID:         id,
			Direction:  Outgoing,
			PeerID:     peerID,
			PeerName:   peerName,
			Name:       name,
			TotalSize:  totalSize,
			TotalFiles: totalFiles,
			Status:     InProgress,
			StartTime:  now,
		},
		lastSampleAt: now,
	}
	r.mu.Lock()
	r.transfers[id] = rec
	r.mu.Unlock()
	r.onChange(Change{Kind: Added, Transfer: rec.snapshot()})
	return rec.snapshot()
}

// EnsureFile upserts the transfer that owns id to reflect a newly started
// file: on first use it creates the record, on every later file boundary
// within the same folder transfer it resets BytesTransferred to 0 and
// swaps in the new file's size, following
// original_source/src/network/TransferSession.cpp's handleFileHeader,
// which reports progress against the current file rather than the
// folder's cumulative size (spec §9).
func (r *Registry) EnsureFile(id string, direction Direction, peerID, peerName, name string, fileSize int64, totalFiles, fileIndex int, destPath string) Transfer {
	now := time.Now()
	r.mu.Lock()
	rec, ok := r.transfers[id]
	if !ok {
		rec = &record{
			Transfer: Transfer{
				ID:               id,
				Direction:        direction,
				PeerID:           peerID,
				PeerName:         peerName,
				Name:             name,
				Status:           InProgress,
				StartTime:        now,
				DestinationPath:  destPath,
			},
			lastSampleAt: now,
		}
		r.transfers[id] = rec
	}
	rec.TotalSize = fileSize
	rec.BytesTransferred = 0
	rec.TotalFiles = totalFiles
	rec.CurrentFileIndex = fileIndex
	rec.lastSampleBytes = 0
	rec.lastSampleAt = now
	snap := rec.snapshot()
	r.mu.Unlock()

	kind := Updated
	if !ok {
		kind = Added
	}
	r.onChange(Change{Kind: kind, Transfer: snap})
	return snap
}

var ErrTransferNotFound = errors.New("transferregistry: transfer not found")

// UpdateProgress applies a monotonic progress update (spec §5: "Progress
// events for a given transfer id are strictly monotonic in
// bytes_transferred").
func (r *Registry) UpdateProgress(id string, bytesTransferred int64, currentFileIndex int) error {
	r.mu.Lock()
	rec, ok := r.transfers[id]
	if !ok {
		r.mu.Unlock()
		return ErrTransferNotFound
	}
	if bytesTransferred > rec.BytesTransferred {
		rec.BytesTransferred = bytesTransferred
	}
	if currentFileIndex > 0 {
		rec.CurrentFileIndex = currentFileIndex
	}
	snap := rec.snapshot()
	r.mu.Unlock()
	r.onChange(Change{Kind: Updated, Transfer: snap})
	return nil
}

// Complete marks a transfer Completed.
func (r *Registry) Complete(id string) error {
	return r.finish(id, Completed, "")
}

// Fail marks a transfer Failed with the given reason (spec §7).
func (r *Registry) Fail(id, reason string) error {
	return r.finish(id, Failed, reason)
}

// Cancel marks a transfer Cancelled (local cancel, spec §4.3).
func (r *Registry) Cancel(id string) error {
	return r.finish(id, Cancelled, "")
}

func (r *Registry) finish(id string, status Status, reason string) error {
	r.mu.Lock()
	rec, ok := r.transfers[id]
	if !ok {
		r.mu.Unlock()
		return ErrTransferNotFound
	}
	rec.Status = status
	rec.Error = reason
	rec.CurrentSpeed = 0
	snap := rec.snapshot()
	r.mu.Unlock()
	r.onChange(Change{Kind: Updated, Transfer: snap})
	return nil
}

// FailAllForSession transitions every transfer in ids to Failed with the
// given reason (spec §4.3's disconnection handling, where core passes
// "connection lost"). Core supplies the ids from TransferIDsForPeer.
func (r *Registry) FailAllForSession(ids []string, reason string) {
	for _, id := range ids {
		_ = r.Fail(id, reason)
	}
}

// Get returns a snapshot of the transfer with the given id.
func (r *Registry) Get(id string) (Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.transfers[id]
	if !ok {
		return Transfer{}, false
	}
	return rec.snapshot(), true
}

// List returns every known transfer.
func (r *Registry) List() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transfer, 0, len(r.transfers))
	for _, rec := range r.transfers {
		out = append(out, rec.snapshot())
	}
	return out
}

// Remove drops a transfer from the registry (explicit UI "clear completed"
// or process exit, spec §3).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	rec, ok := r.transfers[id]
	if ok {
		delete(r.transfers, id)
	}
	r.mu.Unlock()
	if ok {
		r.onChange(Change{Kind: Removed, Transfer: rec.snapshot()})
	}
}

// HasActiveTransfersWithPeer reports whether any Pending or InProgress
// transfer references peerID (spec §4.6).
func (r *Registry) HasActiveTransfersWithPeer(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.transfers {
		if rec.PeerID == peerID && (rec.Status == Pending || rec.Status == InProgress) {
			return true
		}
	}
	return false
}

// TransferIDsForPeer returns the ids of every active transfer belonging
// to peerID, for use by FailAllForSession when a session disconnects.
func (r *Registry) TransferIDsForPeer(peerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rec := range r.transfers {
		if rec.PeerID == peerID && (rec.Status == Pending || rec.Status == InProgress) {
			ids = append(ids, id)
		}
	}
	return ids
}
