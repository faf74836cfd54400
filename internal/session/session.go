// Package session drives a single TCP connection through the handshake and
// file/folder transfer state machines (spec §4.3).
//
// Grounded on internal/clientudp/clientudp.go's chunked read/send loop for
// the I/O shape, and on original_source/src/network/TransferSession.cpp for
// the exact handshake and transfer semantics: message framing, the
// destination-path/suffix algorithm, and what happens to a partially
// received file on cancel versus on connection loss.
package session

import (
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/williampepple1/witra/internal/wire"
)

// State is the handshake/transfer state of a session (spec §4.3).
type State int

const (
	Idle State = iota
	WaitingForAccept // outgoing: connection_request sent, awaiting accept/reject
	RequestReceived  // incoming: connection_request received, awaiting local decision
	Accepted         // handshake complete; also the state a session returns to after each transfer, so the same session can carry more than one (spec §4.3)
	Rejected
	Transferring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case WaitingForAccept:
		return "WaitingForAccept"
	case RequestReceived:
		return "RequestReceived"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case Transferring:
		return "Transferring"
	default:
		return "Unknown"
	}
}

// ErrIllegalState is returned when an operation is attempted from a state
// that does not permit it.
var ErrIllegalState = errors.New("session: operation not legal in current state")

// Session owns one TCP connection and the single-file or single-folder
// transfer currently running over it. Every field below this comment is
// touched only by the session's own actor goroutine (run); all external
// calls go through the cmds channel, so no additional locking is needed
// (spec §5: "a session is a single logical event loop").
type Session struct {
	ID          string
	conn        net.Conn
	isIncoming  bool
	downloadDir string

	state    State
	peerID   string
	peerName string
	localID  string
	localName string

	reader *wire.FrameReader

	recv recvState
	send sendState

	cancelRequested atomic.Bool
	closed          atomic.Bool

	cmds   chan func(*Session)
	events chan Event
	done   chan struct{}
}

type recvState struct {
	transferID   string
	fileName     string
	relativePath string
	fileSize     int64
	received     int64
	totalFiles   int64
	fileIndex    int64
	file         *os.File
}

type sendState struct {
	transferID string
	file       *os.File
	totalSize  int64
	sent       int64
}

// New wraps conn in a Session. localID/localName identify this node in an
// outgoing connection_request; downloadDir is the base directory incoming
// files are written under.
func New(conn net.Conn, isIncoming bool, localID, localName, downloadDir string) *Session {
	return &Session{
		ID:          wire.NewID(),
		conn:        conn,
		isIncoming:  isIncoming,
		downloadDir: downloadDir,
		localID:     localID,
		localName:   localName,
		state:       Idle,
		reader:      wire.NewFrameReader(conn),
		cmds:        make(chan func(*Session), 32),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
	}
}

// Events returns the channel the session publishes its lifecycle events on.
// It is closed once the session's actor loop exits.
func (s *Session) Events() <-chan Event { return s.events }

// PeerID and PeerName report the identity learned during the handshake
// (empty until the connection_request frame has been exchanged).
func (s *Session) PeerID() string   { return s.peerID }
func (s *Session) PeerName() string { return s.peerName }

// SetPeerHint tells an outgoing session who it is about to dial, since the
// initiator already knows the peer's identity from discovery, unlike an
// incoming session, which only learns it from the connection_request it
// receives.
func (s *Session) SetPeerHint(peerID, peerName string) {
	s.enqueue(func(s *Session) {
		s.peerID = peerID
		s.peerName = peerName
	})
}

// State reports the session's current handshake/transfer state. Safe to
// call from any goroutine: it is only read here, and external callers only
// ever observe it via emitted events in practice, but a racy read of an int
// is harmless for a status display.
func (s *Session) State() State { return s.state }

// Run is the session's actor loop. It starts the background frame reader
// and then serially drains cmds until the session is torn down (connection
// closed, Close called, or a protocol error). Run returns once the session is fully torn down; the caller
// should run it in its own goroutine.
func (s *Session) Run() {
	go s.readLoop()
	for fn := range s.cmds {
		fn(s)
		if s.closed.Load() {
			break
		}
	}
	close(s.events)
}

func (s *Session) readLoop() {
	for {
		fr, err := s.reader.ReadFrame()
		if err != nil {
			s.enqueue(func(s *Session) { s.handleDisconnect(err) })
			return
		}
		frame := fr
		s.enqueue(func(s *Session) { s.handleFrame(frame) })
	}
}

// enqueue posts fn to the actor loop. It is safe to call from any
// goroutine, including the actor's own (for self-continuations such as the
// next chunk of an outgoing file).
func (s *Session) enqueue(fn func(*Session)) {
	if s.closed.Load() {
		return
	}
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Slow consumer: drop rather than block the actor loop. Progress
		// events are frequent and superseded by the next sample anyway.
	}
}

// Close tears the session down: closes the socket, releases any open file
// handles, and stops the actor loop. Safe to call more than once.
func (s *Session) Close() {
	s.enqueue(func(s *Session) { s.teardown(nil) })
}

func (s *Session) teardown(reason error) {
	if s.closed.Swap(true) {
		return
	}
	_ = s.conn.Close()
	if s.recv.file != nil {
		_ = s.recv.file.Close()
		s.recv.file = nil
	}
	if s.send.file != nil {
		_ = s.send.file.Close()
		s.send.file = nil
	}
	close(s.done)
	if reason != nil && reason != io.EOF {
		s.emit(Event{Kind: EventDisconnected, Reason: reason.Error()})
	} else {
		s.emit(Event{Kind: EventDisconnected})
	}
}

func (s *Session) handleDisconnect(err error) {
	s.teardown(err)
}

func (s *Session) writeHeader(h wire.TransferHeader) error {
	return wire.WriteHeaderFrame(s.conn, h)
}

func (s *Session) fail(transferID string, reason string) {
	s.emit(Event{Kind: EventTransferFailed, TransferID: transferID, Reason: reason})
}
