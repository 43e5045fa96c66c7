// Package glsock is the cross-platform socket abstraction every other core
// subsystem rides on (spec.md 4.1): a thin handle over datagram and stream
// sockets exposing create/bind/connect/accept/send/recv/shutdown plus
// broadcast/reuse-address options, receive timeouts, and interface
// enumeration.
//
// Socket option handling (SO_REUSEADDR/SO_REUSEPORT/SO_BROADCAST/multicast
// loopback) is platform-specific and lives behind the unexported
// controlFunc hook implemented once per target OS in sockopt_unix.go and
// sockopt_windows.go, per spec.md 9's "platform differences ... selected at
// build time" design note.
package glsock

import (
	"io"
	"net"
	"time"

	"github.com/groundlift/groundlift/internal/glerr"
)

// TCPServerBacklog is the nominal listen backlog for TCP servers (spec.md 6).
// SetupTCP does not apply it: it listens through net.ListenConfig, which
// uses the operating system's default backlog.
const TCPServerBacklog = 10

// Endpoint is an IPv4 host:port pair. A nil Host means INADDR_ANY.
type Endpoint struct {
	Host net.IP
	Port int
}

func (e Endpoint) String() string {
	ip := e.Host
	if ip == nil {
		ip = net.IPv4zero
	}
	return (&net.TCPAddr{IP: ip, Port: e.Port}).String()
}

// udpAddr renders the endpoint as a *net.UDPAddr.
func (e Endpoint) udpAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.Host, Port: e.Port}
}

func (e Endpoint) tcpAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: e.Host, Port: e.Port}
}

// Kind distinguishes the two socket families the spec requires.
type Kind int

const (
	KindUnset Kind = iota
	KindTCP
	KindUDP
)

// Socket is a handle over either a stream or a datagram socket. The zero
// value is a valid, unbound handle (spec.md 4.1 "new()").
type Socket struct {
	kind   Kind
	local  Endpoint
	server bool

	tcpListener *net.TCPListener
	tcpConn     *net.TCPConn
	udpConn     *net.UDPConn

	peer Endpoint // populated by Accept and by the most recent RecvFrom
}

// New allocates a handle with no bound address, mirroring spec.md 4.1.
func New() *Socket {
	return &Socket{}
}

// SetAddress fills in the target endpoint by hostname (empty host means
// INADDR_ANY).
func (s *Socket) SetAddress(host string, port int) error {
	if host == "" {
		s.local = Endpoint{Host: nil, Port: port}
		return nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return glerr.Wrapf(err, glerr.LayerSock, glerr.ESOCKET, "glsock: lookup %s", host)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			s.local = Endpoint{Host: v4, Port: port}
			return nil
		}
	}
	return glerr.Newf(glerr.LayerSock, glerr.ESOCKET, "glsock: no IPv4 address for %s", host)
}

// SetAddressRaw fills in the target endpoint from an already-resolved IPv4
// address (nil means INADDR_ANY).
func (s *Socket) SetAddressRaw(addr net.IP, port int) {
	s.local = Endpoint{Host: addr, Port: port}
}

// LocalEndpoint returns the endpoint this handle is configured for.
func (s *Socket) LocalEndpoint() Endpoint { return s.local }

// PeerEndpoint returns the endpoint of the connected/accepted/most-recently-received-from peer.
func (s *Socket) PeerEndpoint() Endpoint { return s.peer }

// SetupTCP creates a stream socket. If server is true it additionally
// enables SO_REUSEADDR/SO_REUSEPORT where available, binds, and listens
// (spec.md 4.1). The listen backlog is the operating system default, not
// TCPServerBacklog.
func (s *Socket) SetupTCP(server bool) error {
	s.kind = KindTCP
	s.server = server
	if !server {
		return nil
	}

	lc := net.ListenConfig{Control: controlFunc(reuseOpts{reuseAddr: true, reusePort: true})}
	ln, err := lc.Listen(context(), "tcp4", s.local.String())
	if err != nil {
		return glerr.Wrap(err, glerr.LayerSock, glerr.EBIND, "glsock: tcp listen")
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return glerr.New(glerr.LayerSock, glerr.ELISTEN, "glsock: unexpected listener type")
	}
	s.tcpListener = tl
	return nil
}

// SetupUDP creates a datagram socket. If server is true it binds to the
// configured local endpoint. SO_REUSEADDR/PORT and SO_BROADCAST are always
// enabled and multicast loopback is disabled, per spec.md 4.1. timeoutMs>0
// stands in for SO_RCVTIMEO with a Go read deadline set once here, so the
// timeout counts from setup rather than from each RecvFrom call (see
// RefreshRecvTimeout).
func (s *Socket) SetupUDP(server bool, timeoutMs int) error {
	s.kind = KindUDP
	s.server = server

	lc := net.ListenConfig{Control: controlFunc(reuseOpts{reuseAddr: true, reusePort: true, broadcast: true, noMulticastLoop: true})}
	pc, err := lc.ListenPacket(context(), "udp4", s.local.String())
	if err != nil {
		return glerr.Wrap(err, glerr.LayerSock, glerr.EBIND, "glsock: udp listen")
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return glerr.New(glerr.LayerSock, glerr.ESOCKET, "glsock: unexpected packet conn type")
	}
	s.udpConn = uc

	if timeoutMs > 0 {
		if err := s.udpConn.SetReadDeadline(time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)); err != nil {
			return glerr.Wrap(err, glerr.LayerSock, glerr.ESETSOCKOPT, "glsock: set recv timeout")
		}
	}
	return nil
}

// RefreshRecvTimeout resets the receive deadline; callers loop RecvFrom and
// must call this before each call if they want a sliding timeout rather
// than an absolute one.
func (s *Socket) RefreshRecvTimeout(timeoutMs int) error {
	if s.udpConn == nil {
		return glerr.New(glerr.LayerSock, glerr.ESOCKET, "glsock: not a udp socket")
	}
	if timeoutMs <= 0 {
		return s.udpConn.SetReadDeadline(time.Time{})
	}
	return s.udpConn.SetReadDeadline(time.Now().Add(time.Duration(timeoutMs) * time.Millisecond))
}

// Accept blocks on an inbound stream connection and returns a new handle
// whose peer address is populated (spec.md 4.1).
func (s *Socket) Accept() (*Socket, error) {
	if s.tcpListener == nil {
		return nil, glerr.New(glerr.LayerSock, glerr.ESOCKET, "glsock: Accept on non-listening socket")
	}
	conn, err := s.tcpListener.AcceptTCP()
	if err != nil {
		if isAlreadyClosedErr(err) {
			return nil, glerr.Wrap(err, glerr.LayerSock, glerr.CONN_SHUTDOWN, "glsock: listener shut down")
		}
		return nil, glerr.Wrap(err, glerr.LayerSock, glerr.ECONNECT, "glsock: accept")
	}
	remote := conn.RemoteAddr().(*net.TCPAddr)
	return &Socket{
		kind:    KindTCP,
		tcpConn: conn,
		peer:    Endpoint{Host: remote.IP, Port: remote.Port},
	}, nil
}

// Connect connects a stream handle to its preconfigured address.
func (s *Socket) Connect() error {
	if s.kind != KindTCP {
		return glerr.New(glerr.LayerSock, glerr.ESOCKET, "glsock: Connect on non-tcp socket")
	}
	conn, err := net.DialTCP("tcp4", nil, s.local.tcpAddr())
	if err != nil {
		return glerr.Wrap(err, glerr.LayerSock, glerr.ECONNECT, "glsock: connect")
	}
	s.tcpConn = conn
	s.peer = s.local
	return nil
}

// Send writes the entire buffer on a stream socket.
func (s *Socket) Send(buf []byte) error {
	if s.tcpConn == nil {
		return glerr.New(glerr.LayerSock, glerr.ESEND, "glsock: Send on non-connected socket")
	}
	n, err := s.tcpConn.Write(buf)
	if err != nil {
		return glerr.Wrap(err, glerr.LayerSock, glerr.ESEND, "glsock: send")
	}
	if n != len(buf) {
		return glerr.Newf(glerr.LayerSock, glerr.ESEND, "glsock: short send %d/%d", n, len(buf))
	}
	return nil
}

// Recv reads from a stream socket into buf. If peek is true the bytes are
// left in the kernel buffer (MSG_PEEK). If peek is false and waitAll is
// true, Recv loops until buf is completely full or an error/EOF occurs.
// A read of zero bytes (peer closed) maps to CONN_CLOSED.
func (s *Socket) Recv(buf []byte, peek, waitAll bool) (int, error) {
	if s.tcpConn == nil {
		return 0, glerr.New(glerr.LayerSock, glerr.ERECV, "glsock: Recv on non-connected socket")
	}
	if peek {
		return s.peekTCP(buf)
	}
	if !waitAll {
		n, err := s.tcpConn.Read(buf)
		return n, s.classifyStreamErr(n, err)
	}

	total := 0
	for total < len(buf) {
		n, err := s.tcpConn.Read(buf[total:])
		total += n
		if err != nil {
			return total, s.classifyStreamErr(n, err)
		}
		if n == 0 {
			return total, glerr.New(glerr.LayerSock, glerr.CONN_CLOSED, "glsock: peer closed connection")
		}
	}
	return total, nil
}

func (s *Socket) classifyStreamErr(n int, err error) error {
	if err != nil {
		if err == io.EOF {
			return glerr.New(glerr.LayerSock, glerr.CONN_CLOSED, "glsock: peer closed connection")
		}
		if isShutdownErr(err) {
			return glerr.Wrap(err, glerr.LayerSock, glerr.CONN_SHUTDOWN, "glsock: connection shut down")
		}
		return glerr.Wrap(err, glerr.LayerSock, glerr.ERECV, "glsock: recv")
	}
	if n == 0 {
		return glerr.New(glerr.LayerSock, glerr.CONN_CLOSED, "glsock: peer closed connection")
	}
	return nil
}

// SendTo writes a single datagram to the given endpoint.
func (s *Socket) SendTo(buf []byte, to Endpoint) error {
	if s.udpConn == nil {
		return glerr.New(glerr.LayerSock, glerr.ESEND, "glsock: SendTo on non-udp socket")
	}
	n, err := s.udpConn.WriteToUDP(buf, to.udpAddr())
	if err != nil {
		return glerr.Wrap(err, glerr.LayerSock, glerr.ESEND, "glsock: sendto")
	}
	if n != len(buf) {
		return glerr.Newf(glerr.LayerSock, glerr.ESEND, "glsock: short sendto %d/%d", n, len(buf))
	}
	return nil
}

// RecvFrom reads a single datagram. A timed-out read maps to TIMEOUT.
func (s *Socket) RecvFrom(buf []byte) (int, Endpoint, error) {
	if s.udpConn == nil {
		return 0, Endpoint{}, glerr.New(glerr.LayerSock, glerr.ERECV, "glsock: RecvFrom on non-udp socket")
	}
	n, addr, err := s.udpConn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, Endpoint{}, glerr.Wrap(err, glerr.LayerSock, glerr.TIMEOUT, "glsock: recvfrom timed out")
		}
		return n, Endpoint{}, glerr.Wrap(err, glerr.LayerSock, glerr.ERECV, "glsock: recvfrom")
	}
	ep := Endpoint{Host: addr.IP, Port: addr.Port}
	s.peer = ep
	return n, ep, nil
}

// Shutdown half-closes both directions then closes. Idempotent.
func (s *Socket) Shutdown() error {
	var err error
	switch s.kind {
	case KindTCP:
		if s.tcpConn != nil {
			_ = s.tcpConn.CloseRead()
			_ = s.tcpConn.CloseWrite()
			err = s.tcpConn.Close()
			s.tcpConn = nil
		}
		if s.tcpListener != nil {
			err = s.tcpListener.Close()
			s.tcpListener = nil
		}
	case KindUDP:
		if s.udpConn != nil {
			err = s.udpConn.Close()
			s.udpConn = nil
		}
	}
	if err != nil && !isAlreadyClosedErr(err) {
		return glerr.Wrap(err, glerr.LayerSock, glerr.ESHUTDOWN, "glsock: shutdown")
	}
	return nil
}

// Conn exposes the underlying stream connection for layers (obex) that
// need an io.Reader/io.Writer directly.
func (s *Socket) Conn() net.Conn {
	if s.tcpConn != nil {
		return s.tcpConn
	}
	return nil
}
