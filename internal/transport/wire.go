package transport

import (
	"net"

	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/obex"
)

// asNetAddr renders a glsock.Endpoint as the net.Addr shape the host-facing
// event callbacks expect (spec.md 6: connected/disconnected carry an
// endpoint).
func asNetAddr(ep glsock.Endpoint) net.Addr {
	return &net.TCPAddr{IP: ep.Host, Port: ep.Port}
}

// peekOpcode reads the first byte of the next packet without consuming it,
// so the caller can decide ahead of the real recv_packet call whether a
// CONNECT parameter block follows (spec.md 4.4.2 "Negotiating": SUCCESS
// carries the reply parameters, UNAUTHORIZED never does).
func peekOpcode(sock *glsock.Socket) (obex.Opcode, error) {
	buf := make([]byte, 1)
	if _, err := sock.Recv(buf, true, false); err != nil {
		return 0, glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: peek opcode")
	}
	return obex.Opcode(buf[0]), nil
}
