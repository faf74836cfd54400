// Package discovery runs the UDP announce/goodbye broadcast loop that lets
// peers find each other on the LAN (spec §4.2).
//
// Grounded on internal/serverudp/serverudp.go's Start/Stop pair and
// atomic.Bool running flag, and on
// original_source/src/network/NetworkDiscovery.cpp for the broadcast
// cadence, the self-filter, and the broadcast-address enumeration (walk
// every up, non-loopback interface's IPv4 addresses; fall back to the
// limited broadcast address if none are found).
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/williampepple1/witra/internal/wire"
)

// AnnounceInterval is how often the announce datagram is re-broadcast
// (spec §4.2).
const AnnounceInterval = 3 * time.Second

// Update is what the service reports about a peer it heard from
// (spec §4.2's PeerDiscovered).
type Update struct {
	PeerID       string
	DisplayName  string
	DeviceName   string
	Address      net.IP
	TransferPort int
}

// Service owns one UDP socket bound to wire.DiscoveryPort, broadcasting
// this node's presence and listening for others' (spec §3).
type Service struct {
	PeerID       string
	DeviceName   string
	TransferPort int

	OnDiscovered func(Update)
	OnGoodbye    func(peerID string)

	identityMu  sync.Mutex
	displayName string

	conn    *net.UDPConn
	running atomic.Bool
	done    chan struct{}
}

// New creates a discovery service advertising the given identity.
func New(peerID, displayName, deviceName string, transferPort int) *Service {
	return &Service{
		PeerID:       peerID,
		displayName:  displayName,
		DeviceName:   deviceName,
		TransferPort: transferPort,
	}
}

// SetDisplayName changes the name advertised in subsequent announces
// (spec §4.7: the display name may be edited while the service is
// running).
func (s *Service) SetDisplayName(name string) {
	s.identityMu.Lock()
	s.displayName = name
	s.identityMu.Unlock()
}

func (s *Service) currentDisplayName() string {
	s.identityMu.Lock()
	defer s.identityMu.Unlock()
	return s.displayName
}

// Start binds the discovery socket, sends the first announce immediately,
// and begins the broadcast/listen loops (spec §4.2).
//
// The bind enables address and port sharing (SO_REUSEADDR and, where
// supported, SO_REUSEPORT) so more than one Witra process can run on the
// same host, matching original_source/src/network/NetworkDiscovery.cpp's
// QUdpSocket::ShareAddress|ReuseAddressHint bind flags. SO_BROADCAST is
// also set, since Linux refuses an unprivileged send to a broadcast
// address without it.
func (s *Service) Start() error {
	if s.running.Load() {
		return nil
	}
	lc := net.ListenConfig{Control: controlReuseAndBroadcast}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", wire.DiscoveryPort))
	if err != nil {
		return err
	}
	conn := pconn.(*net.UDPConn)
	s.conn = conn
	s.done = make(chan struct{})
	s.running.Store(true)

	s.announce(wire.DiscoveryAnnounce)
	go s.broadcastLoop()
	go s.listenLoop()
	return nil
}

// Stop sends a goodbye datagram and tears the socket down (spec §4.2:
// "a node announces its own departure on graceful shutdown").
func (s *Service) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.announce(wire.DiscoveryGoodbye)
	close(s.done)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Service) broadcastLoop() {
	ticker := time.NewTicker(AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.announce(wire.DiscoveryAnnounce)
		case <-s.done:
			return
		}
	}
}

func (s *Service) announce(msgType string) {
	payload, err := wire.EncodeDiscovery(wire.DiscoveryMessage{
		Type:         msgType,
		PeerID:       s.PeerID,
		DisplayName:  s.currentDisplayName(),
		DeviceName:   s.DeviceName,
		TransferPort: s.TransferPort,
	})
	if err != nil {
		return
	}
	for _, addr := range broadcastAddresses() {
		dst := &net.UDPAddr{IP: addr, Port: wire.DiscoveryPort}
		_, _ = s.conn.WriteToUDP(payload, dst)
	}
}

func (s *Service) listenLoop() {
	buf := make([]byte, 4096)
	for s.running.Load() {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		msg, err := wire.DecodeDiscovery(buf[:n])
		if err != nil {
			continue // malformed or unknown datagram, dropped silently
		}
		if msg.PeerID == s.PeerID {
			continue // ignore our own broadcasts
		}
		switch msg.Type {
		case wire.DiscoveryAnnounce:
			if s.OnDiscovered != nil {
				s.OnDiscovered(Update{
					PeerID:       msg.PeerID,
					DisplayName:  msg.DisplayName,
					DeviceName:   msg.DeviceName,
					Address:      addr.IP,
					TransferPort: msg.TransferPort,
				})
			}
		case wire.DiscoveryGoodbye:
			if s.OnGoodbye != nil {
				s.OnGoodbye(msg.PeerID)
			}
		}
	}
}

// broadcastAddresses enumerates the directed-broadcast address of every
// up, non-loopback IPv4 interface, falling back to the limited broadcast
// address (255.255.255.255) if none were found.
func broadcastAddresses() []net.IP {
	var out []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return []net.IP{{255, 255, 255, 255}}
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := directedBroadcast(ip4, ipnet.Mask)
			if bcast != nil && !containsIP(out, bcast) {
				out = append(out, bcast)
			}
		}
	}
	if len(out) == 0 {
		return []net.IP{{255, 255, 255, 255}}
	}
	return out
}

func directedBroadcast(ip net.IP, mask net.IPMask) net.IP {
	if len(ip) != len(mask) {
		return nil
	}
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

func containsIP(ips []net.IP, ip net.IP) bool {
	for _, existing := range ips {
		if existing.Equal(ip) {
			return true
		}
	}
	return false
}

// controlReuseAndBroadcast sets SO_REUSEADDR, SO_REUSEPORT, and
// SO_BROADCAST on the raw socket before bind (spec §4.2: "address/port
// sharing enabled"). SO_REUSEPORT is best-effort: platforms that lack it
// (or refuse it, e.g. inside some sandboxes) still get SO_REUSEADDR and
// SO_BROADCAST, which is enough to bind and to broadcast.
func controlReuseAndBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
