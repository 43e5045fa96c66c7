//go:build windows

package glsock

import (
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/groundlift/groundlift/internal/glerr"
)

// controlFunc builds a net.ListenConfig.Control hook for Windows. Windows
// has no SO_REUSEPORT equivalent; SO_REUSEADDR alone is applied, matching
// the spec's "when available" qualifier in spec.md 4.1.
func controlFunc(opts reuseOpts) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			if opts.reuseAddr {
				if e := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); e != nil {
					setErr = e
					return
				}
			}
			if opts.broadcast {
				if e := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1); e != nil {
					setErr = e
					return
				}
			}
			if opts.noMulticastLoop {
				_ = windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IP, windows.IP_MULTICAST_LOOP, 0)
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
// (MSG_PEEK) using the Winsock equivalent flag.
func (s *Socket) peekTCP(buf []byte) (int, error) {
	rawConn, err := s.tcpConn.SyscallConn()
	if err != nil {
		return 0, glerr.Wrap(err, glerr.LayerSock, glerr.ERECV, "glsock: peek syscallconn")
	}

	var n int
	var recvErr error
	ctrlErr := rawConn.Read(func(fd uintptr) bool {
		n, _, recvErr = windows.Recvfrom(windows.Handle(fd), buf, windows.MSG_PEEK)
		if recvErr == windows.WSAEWOULDBLOCK {
			return false
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
