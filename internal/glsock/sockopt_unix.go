//go:build unix

package glsock

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/groundlift/groundlift/internal/glerr"
)

// controlFunc builds a net.ListenConfig.Control hook that applies the
// requested socket options before bind, matching spec.md 4.1's
// SetupTCP/SetupUDP option list. SO_REUSEPORT is best-effort: platforms
// that define it get it, others silently skip it.
func controlFunc(opts reuseOpts) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			if opts.reuseAddr {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					setErr = e
					return
				}
			}
			if opts.reusePort {
				// Best effort: ignore failures on unix variants that don't
				// honor SO_REUSEPORT for this socket type.
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}
			if opts.broadcast {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); e != nil {
					setErr = e
					return
				}
			}
			if opts.noMulticastLoop {
				_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, 0)
			}
		})
		if err != nil {
			return glerr.Wrap(err, glerr.LayerSock, glerr.ESETSOCKOPT, "glsock: raw conn control")
		}
		if setErr != nil {
			return glerr.Wrap(setErr, glerr.LayerSock, glerr.ESETSOCKOPT, "glsock: setsockopt")
		}
		return nil
	}
}

// peekTCP reads from the stream socket without consuming the bytes
// (MSG_PEEK), used by obex.RecvPacket to learn a packet's declared length
// before allocating its buffer.
func (s *Socket) peekTCP(buf []byte) (int, error) {
	rawConn, err := s.tcpConn.SyscallConn()
	if err != nil {
		return 0, glerr.Wrap(err, glerr.LayerSock, glerr.ERECV, "glsock: peek syscallconn")
	}

	var n int
	var recvErr error
	ctrlErr := rawConn.Read(func(fd uintptr) bool {
		n, _, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_PEEK)
		if recvErr == unix.EAGAIN {
			return false // ask runtime poller to wait for readability
		}
		return true
	})
	if ctrlErr != nil {
		return 0, glerr.Wrap(ctrlErr, glerr.LayerSock, glerr.ERECV, "glsock: peek control")
	}
	if recvErr != nil {
		return n, glerr.Wrap(recvErr, glerr.LayerSock, glerr.ERECV, "glsock: peek recvfrom")
	}
	if n == 0 {
		return 0, glerr.New(glerr.LayerSock, glerr.CONN_CLOSED, "glsock: peer closed connection")
	}
	return n, nil
}
