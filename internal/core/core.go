// Package core (continued): Core is the single facade a UI or CLI drives.
// It owns the peer and transfer registries, the discovery service, and the
// transport manager, and translates session-level events into the public
// Event stream (spec §4, §6).
package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/williampepple1/witra/internal/discovery"
	"github.com/williampepple1/witra/internal/peerregistry"
	"github.com/williampepple1/witra/internal/session"
	"github.com/williampepple1/witra/internal/transferregistry"
	"github.com/williampepple1/witra/internal/transport"
	"github.com/williampepple1/witra/internal/wire"
)

// Config identifies this node and configures the services Core starts.
type Config struct {
	PeerID       string
	DisplayName  string
	DeviceName   string
	DownloadDir  string
	TransferPort int
}

// Core wires discovery, the peer registry, the transport manager, and the
// transfer registry into a single object (the "Design Note" in spec §9:
// one process plays both client and server roles, so there is no separate
// client/server split here).
type Core struct {
	cfg Config

	peers     *peerregistry.Registry
	transfers *transferregistry.Registry
	disc      *discovery.Service
	tm        *transport.Manager
	bus       *eventBus

	mu              sync.Mutex
	sessionByXferID map[string]*session.Session
	outgoingXferIDs map[string]bool
}

// New constructs a Core. Call Start to bring its background services up.
func New(cfg Config) *Core {
	c := &Core{
		cfg:             cfg,
		bus:             newEventBus(),
		sessionByXferID: make(map[string]*session.Session),
		outgoingXferIDs: make(map[string]bool),
	}

	c.peers = peerregistry.New(func(chg peerregistry.Change) {
		c.bus.Notify(peerChangeToEvent(chg))
	})
	c.transfers = transferregistry.New(func(chg transferregistry.Change) {
		c.bus.Notify(transferChangeToEvent(chg))
	})
	c.disc = discovery.New(cfg.PeerID, cfg.DisplayName, cfg.DeviceName, cfg.TransferPort)
	c.disc.OnDiscovered = func(u discovery.Update) {
		c.peers.OnDiscovered(peerregistry.DiscoveryUpdate{
			PeerID:       u.PeerID,
			DisplayName:  u.DisplayName,
			DeviceName:   u.DeviceName,
			Address:      u.Address,
			TransferPort: u.TransferPort,
		})
	}
	c.disc.OnGoodbye = c.peers.OnGoodbye

	c.tm = transport.New(
		func(conn net.Conn, isIncoming bool) *session.Session {
			return session.New(conn, isIncoming, cfg.PeerID, cfg.DisplayName, cfg.DownloadDir)
		},
		func(s *session.Session) { go c.wireSession(s) },
	)

	return c
}

func peerChangeToEvent(chg peerregistry.Change) Event {
	kind := EventPeerUpdated
	switch chg.Kind {
	case peerregistry.Added:
		kind = EventPeerAdded
	case peerregistry.Removed:
		kind = EventPeerRemoved
	}
	return Event{Kind: kind, Peer: chg.Peer, PeerID: chg.Peer.ID}
}

func transferChangeToEvent(chg transferregistry.Change) Event {
	kind := EventTransferUpdated
	switch chg.Kind {
	case transferregistry.Added:
		kind = EventTransferAdded
	case transferregistry.Removed:
		kind = EventTransferRemoved
	}
	return Event{Kind: kind, Transfer: chg.Transfer}
}

// Start brings up the peer-timeout reaper, the transfer speed sampler, the
// discovery broadcast/listen loops, and the transfer-session listener. The
// two bind operations are independent (spec §7: "fatal for the affected
// service ... the other service continues"): a discovery bind failure does
// not prevent the transfer listener from starting and vice versa. Either
// failure is both returned and published as an EventError.
func (c *Core) Start() error {
	c.peers.StartReaper()
	c.transfers.StartSpeedSampler()

	var errs []error
	if err := c.disc.Start(); err != nil {
		werr := fmt.Errorf("core: discovery start: %w", err)
		c.bus.Notify(Event{Kind: EventError, Message: werr.Error()})
		errs = append(errs, werr)
	}
	if err := c.tm.Listen(c.cfg.TransferPort); err != nil {
		werr := fmt.Errorf("core: transport listen: %w", err)
		c.bus.Notify(Event{Kind: EventError, Message: werr.Error()})
		errs = append(errs, werr)
	}
	return errors.Join(errs...)
}

// Stop tears every background service down, in the reverse order Start
// brought them up.
func (c *Core) Stop() {
	c.tm.Stop()
	c.disc.Stop()
	c.transfers.StopSpeedSampler()
	c.peers.StopReaper()
}

// Peers returns a snapshot of every known peer.
func (c *Core) Peers() []peerregistry.Peer { return c.peers.List() }

// Transfers returns a snapshot of every known transfer.
func (c *Core) Transfers() []transferregistry.Transfer { return c.transfers.List() }

// Subscribe registers for the Core's event stream. Call Unsubscribe with
// the returned id when done.
func (c *Core) Subscribe() (int, <-chan Event) { return c.bus.Subscribe() }

// Unsubscribe stops delivery to a previously subscribed listener.
func (c *Core) Unsubscribe(id int) { c.bus.Unsubscribe(id) }

// SetDisplayName changes the name this node advertises from now on.
func (c *Core) SetDisplayName(name string) {
	c.mu.Lock()
	c.cfg.DisplayName = name
	c.mu.Unlock()
	c.disc.SetDisplayName(name)
}

var (
	// ErrPeerUnknown is returned when an operation names a peer id the
	// registry has never heard of.
	ErrPeerUnknown = errors.New("core: unknown peer")
	// ErrNoSession is returned when an operation requires a live session
	// with a peer and none exists.
	ErrNoSession = errors.New("core: no active session with peer")
	// ErrNoTransfer is returned when a transfer id names nothing in
	// flight.
	ErrNoTransfer = errors.New("core: no active transfer with that id")
	// ErrActiveTransfer is returned when Disconnect is refused because the
	// peer has a transfer in flight.
	ErrActiveTransfer = errors.New("core: refusing to disconnect, peer has an active transfer")
)

// Connect dials peerID's transfer port and sends a connection_request
// (spec §4.3).
func (c *Core) Connect(peerID string) error {
	peer, ok := c.peers.Get(peerID)
	if !ok {
		return ErrPeerUnknown
	}
	if err := c.peers.RequestConnect(peerID); err != nil {
		return err
	}
	s, err := c.tm.Dial(peer.Address.String(), peer.TransferPort)
	if err != nil {
		_ = c.peers.MarkDisconnected(peerID)
		return err
	}
	s.SetPeerHint(peerID, peer.DisplayName)
	c.tm.BindPeer(peerID, s)
	s.Connect()
	return nil
}

// Accept sends connection_accept on the pending incoming session with
// peerID (spec §4.3) and marks the peer Connected (spec §4.5:
// acceptIncoming).
func (c *Core) Accept(peerID string) error {
	s, ok := c.tm.ByPeerID(peerID)
	if !ok {
		return ErrNoSession
	}
	if err := c.peers.AcceptIncoming(peerID); err != nil {
		return err
	}
	s.Accept()
	return nil
}

// Reject sends connection_reject on the pending incoming session with
// peerID and closes it (spec §4.3), returning the peer to Discovered
// (spec §4.5: rejectIncoming).
func (c *Core) Reject(peerID string) error {
	s, ok := c.tm.ByPeerID(peerID)
	if !ok {
		return ErrNoSession
	}
	if err := c.peers.RejectIncoming(peerID); err != nil {
		return err
	}
	s.Reject()
	return nil
}

// Disconnect closes the live session with peerID, if any. It refuses while
// a transfer with that peer is in flight (spec §4.6: disconnectPeer refuses
// and surfaces an error to the UI rather than aborting a transfer).
func (c *Core) Disconnect(peerID string) error {
	s, ok := c.tm.ByPeerID(peerID)
	if !ok {
		return ErrNoSession
	}
	if c.transfers.HasActiveTransfersWithPeer(peerID) {
		return ErrActiveTransfer
	}
	s.Close()
	return nil
}

// SendFile streams path to peerID over its live session, returning the new
// transfer's id.
func (c *Core) SendFile(peerID, path string) (string, error) {
	s, ok := c.tm.ByPeerID(peerID)
	if !ok {
		return "", ErrNoSession
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("core: cannot read file %s", path)
	}
	peer, _ := c.peers.Get(peerID)

	transferID := wire.NewID()
	c.transfers.CreateOutgoing(transferID, peerID, peer.DisplayName, filepath.Base(path), info.Size(), 1)
	c.trackOutgoing(transferID, s)

	s.SendFile(path, transferID, "", 1, 1)
	return transferID, nil
}

// SendFolder streams every file under path to peerID as a single transfer
// id (spec §4.3).
func (c *Core) SendFolder(peerID, path string) (string, error) {
	s, ok := c.tm.ByPeerID(peerID)
	if !ok {
		return "", ErrNoSession
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("core: not a folder: %s", path)
	}
	peer, _ := c.peers.Get(peerID)

	transferID := wire.NewID()
	c.transfers.CreateOutgoing(transferID, peerID, peer.DisplayName, filepath.Base(filepath.Clean(path)), 0, 0)
	c.trackOutgoing(transferID, s)

	s.SendFolder(path, transferID)
	return transferID, nil
}

// CancelTransfer requests that the in-progress transfer stop (spec §4.3).
// It works for outgoing transfers and for incoming ones whose session has
// reported them started; the remote side learns of the cancellation over
// the wire.
func (c *Core) CancelTransfer(transferID string) error {
	c.mu.Lock()
	s, ok := c.sessionByXferID[transferID]
	c.mu.Unlock()
	if !ok {
		return ErrNoTransfer
	}
	s.Cancel(transferID)
	return nil
}

func (c *Core) trackOutgoing(transferID string, s *session.Session) {
	c.mu.Lock()
	c.sessionByXferID[transferID] = s
	c.outgoingXferIDs[transferID] = true
	c.mu.Unlock()
}

func (c *Core) untrack(transferID string) {
	c.mu.Lock()
	delete(c.sessionByXferID, transferID)
	delete(c.outgoingXferIDs, transferID)
	c.mu.Unlock()
}

func (c *Core) isOutgoing(transferID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingXferIDs[transferID]
}

// wireSession runs for the lifetime of one session, translating its
// Events() into registry mutations and core.Event notifications. It exits
// once the session's Events channel closes (spec §4.4).
func (c *Core) wireSession(s *session.Session) {
	for ev := range s.Events() {
		switch ev.Kind {
		case session.EventConnectionRequestReceived:
			c.peers.MarkRequestReceived(ev.PeerID, ev.PeerName)
			c.tm.BindPeer(ev.PeerID, s)
			c.bus.Notify(Event{Kind: EventConnectionRequestReceived, PeerID: ev.PeerID, PeerName: ev.PeerName})

		case session.EventConnectionAccepted:
			peerID := s.PeerID()
			_ = c.peers.MarkConnected(peerID)
			c.tm.BindPeer(peerID, s)
			c.bus.Notify(Event{Kind: EventConnectionAccepted, PeerID: peerID, PeerName: s.PeerName()})

		case session.EventConnectionRejected:
			peerID := s.PeerID()
			_ = c.peers.MarkRejectedByPeer(peerID)
			c.bus.Notify(Event{Kind: EventConnectionRejected, PeerID: peerID, PeerName: s.PeerName()})

		case session.EventTransferStarted:
			direction := transferregistry.Incoming
			if c.isOutgoing(ev.TransferID) {
				direction = transferregistry.Outgoing
			} else {
				c.mu.Lock()
				c.sessionByXferID[ev.TransferID] = s
				c.mu.Unlock()
			}
			c.transfers.EnsureFile(ev.TransferID, direction, s.PeerID(), s.PeerName(), ev.FileName, ev.TotalSize, ev.TotalFiles, ev.FileIndex, c.cfg.DownloadDir)

		case session.EventTransferProgress:
			_ = c.transfers.UpdateProgress(ev.TransferID, ev.Sent, 0)

		case session.EventTransferCompleted:
			_ = c.transfers.Complete(ev.TransferID)
			c.untrack(ev.TransferID)

		case session.EventTransferFailed:
			_ = c.transfers.Fail(ev.TransferID, ev.Reason)
			c.untrack(ev.TransferID)

		case session.EventDisconnected:
			peerID := s.PeerID()
			if peerID != "" {
				ids := c.transfers.TransferIDsForPeer(peerID)
				c.transfers.FailAllForSession(ids, "connection lost")
				_ = c.peers.MarkDisconnected(peerID)
			}
			c.tm.Unregister(s)
		}
	}
}
