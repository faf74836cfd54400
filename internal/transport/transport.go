// Package transport owns the TCP listener and the outbound dialer for
// transfer sessions, and keeps the lookup table from session id and from
// peer id to the live *session.Session (spec §4.4).
//
// Grounded on internal/serverudp/serverudp.go's listener lifecycle
// (atomic running flag, single background accept/packet loop, Start/Stop
// pair) generalized from a single shared UDP socket to one TCP listener
// handing off a goroutine per accepted connection.
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/williampepple1/witra/internal/session"
)

// SessionFactory builds a *session.Session around an accepted or dialed
// connection. The core facade supplies this so transport stays ignorant of
// local identity and download-directory configuration.
type SessionFactory func(conn net.Conn, isIncoming bool) *session.Session

// Manager listens for inbound sessions and dials outbound ones, tracking
// every live session by id and by peer id.
type Manager struct {
	factory SessionFactory
	onNew   func(*session.Session)

	listener net.Listener
	running  atomic.Bool

	mu        sync.Mutex
	byID      map[string]*session.Session
	byPeerID  map[string]*session.Session
}

// New creates a Manager. onNew is invoked once per session, immediately
// after it is registered and its Run loop started; events the session emits
// before the caller reads Events() wait in that channel's buffer.
func New(factory SessionFactory, onNew func(*session.Session)) *Manager {
	if onNew == nil {
		onNew = func(*session.Session) {}
	}
	return &Manager{
		factory:  factory,
		onNew:    onNew,
		byID:     make(map[string]*session.Session),
		byPeerID: make(map[string]*session.Session),
	}
}

// Listen starts accepting TCP connections on port (spec §6: TransferPort).
func (m *Manager) Listen(port int) error {
	if m.running.Load() {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	m.listener = ln
	m.running.Store(true)
	go m.acceptLoop(ln)
	return nil
}

// Stop closes the listener and every live session.
func (m *Manager) Stop() {
	if !m.running.Swap(false) {
		return
	}
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) acceptLoop(ln net.Listener) {
	for m.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if m.running.Load() {
				continue
			}
			return
		}
		s := m.factory(conn, true)
		m.register(s)
		go s.Run()
		m.onNew(s)
	}
}

// Dial opens an outgoing TCP connection to addr:port, registers the
// resulting session, and starts its actor loop. It does not send
// connection_request; the caller drives that via Session.Connect.
func (m *Manager) Dial(addr string, port int) (*session.Session, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, err
	}
	s := m.factory(conn, false)
	m.register(s)
	go s.Run()
	m.onNew(s)
	return s, nil
}

func (m *Manager) register(s *session.Session) {
	m.mu.Lock()
	m.byID[s.ID] = s
	m.mu.Unlock()
}

// BindPeer associates a session with the peer id learned during its
// handshake (spec §4.4: "sessions are looked up by peer id once the
// handshake completes").
func (m *Manager) BindPeer(peerID string, s *session.Session) {
	m.mu.Lock()
	m.byPeerID[peerID] = s
	m.mu.Unlock()
}

// Unregister drops a session from both lookup tables once it tears down.
func (m *Manager) Unregister(s *session.Session) {
	m.mu.Lock()
	delete(m.byID, s.ID)
	if existing, ok := m.byPeerID[s.PeerID()]; ok && existing == s {
		delete(m.byPeerID, s.PeerID())
	}
	m.mu.Unlock()
}

// BySessionID looks up a live session by its own id.
func (m *Manager) BySessionID(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok
}

// ByPeerID looks up the live session bound to a peer, if any.
func (m *Manager) ByPeerID(peerID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byPeerID[peerID]
	return s, ok
}
