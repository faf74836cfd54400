package session

import (
	"errors"

	"github.com/williampepple1/witra/internal/wire"
)

// Connect sends a connection_request over an outgoing session and moves it
// to WaitingForAccept (spec §4.3).
func (s *Session) Connect() {
	s.enqueue(func(s *Session) {
		if s.state != Idle {
			return
		}
		h := wire.WithSenderID(wire.TransferHeader{
			Type:       wire.TransferConnectionRequest,
			SenderName: s.localName,
		}, s.localID)
		if err := s.writeHeader(h); err != nil {
			s.teardown(err)
			return
		}
		s.state = WaitingForAccept
	})
}

// Accept sends connection_accept on an incoming session (spec §4.3:
// RequestReceived -> Accepted).
func (s *Session) Accept() {
	s.enqueue(func(s *Session) {
		if s.state != RequestReceived {
			return
		}
		if err := s.writeHeader(wire.TransferHeader{Type: wire.TransferConnectionAccept}); err != nil {
			s.teardown(err)
			return
		}
		s.state = Accepted
	})
}

// Reject sends connection_reject on an incoming session (spec §4.3:
// RequestReceived -> Rejected).
func (s *Session) Reject() {
	s.enqueue(func(s *Session) {
		if s.state != RequestReceived {
			return
		}
		if err := s.writeHeader(wire.TransferHeader{Type: wire.TransferConnectionReject}); err != nil {
			s.teardown(err)
			return
		}
		s.state = Rejected
		s.enqueue(func(s *Session) { s.teardown(nil) })
	})
}

func (s *Session) handleConnectionRequest(h wire.TransferHeader) {
	s.peerName = h.SenderName
	s.peerID = h.SenderID()
	s.isIncoming = true
	s.state = RequestReceived
	s.emit(Event{Kind: EventConnectionRequestReceived, PeerID: s.peerID, PeerName: s.peerName})
}

func (s *Session) handleConnectionAccept() {
	s.state = Accepted
	s.emit(Event{Kind: EventConnectionAccepted, PeerID: s.peerID, PeerName: s.peerName})
}

func (s *Session) handleConnectionReject() {
	s.state = Rejected
	s.emit(Event{Kind: EventConnectionRejected, PeerID: s.peerID, PeerName: s.peerName})
	s.enqueue(func(s *Session) { s.teardown(nil) })
}

// handleFrame dispatches one decoded frame to the handshake or transfer
// handler (spec §4.3's processMessage table). A frame that arrives in a
// state that does not expect it is a protocol error and closes the
// session (spec §8, invariant 5: "any frame out of order ... closes the
// session and surfaces disconnected").
func (s *Session) handleFrame(fr wire.Frame) {
	if !fr.IsHeader {
		s.handleFileData(fr.Data)
		return
	}
	switch fr.Header.Type {
	case wire.TransferConnectionRequest:
		if s.state != Idle {
			s.protocolError("connection_request")
			return
		}
		s.handleConnectionRequest(fr.Header)
	case wire.TransferConnectionAccept:
		if s.state != WaitingForAccept {
			s.protocolError("connection_accept")
			return
		}
		s.handleConnectionAccept()
	case wire.TransferConnectionReject:
		if s.state != WaitingForAccept {
			s.protocolError("connection_reject")
			return
		}
		s.handleConnectionReject()
	case wire.TransferFileHeader:
		if s.state != Accepted && s.state != Transferring {
			s.protocolError("file_header")
			return
		}
		s.handleFileHeader(fr.Header)
	case wire.TransferFileComplete:
		if s.recv.file == nil {
			s.protocolError("file_complete")
			return
		}
		s.handleFileComplete(fr.Header)
	case wire.TransferCancel:
		s.handleTransferCancel(fr.Header)
	}
}

// protocolError tears the session down on a frame received out of order.
func (s *Session) protocolError(frameType string) {
	s.teardown(errors.New("session: unexpected " + frameType + " in state " + s.state.String()))
}
