package obex

import (
	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/trace"
)

// SendPacket encodes p and writes the whole buffer to the stream socket
// (spec.md 4.2 "Network transfer": send_packet).
func SendPacket(sock *glsock.Socket, p Packet, rec *trace.Recorder) error {
	buf := Encode(p)
	if rec != nil {
		rec.RecordOut(buf)
	}
	if err := sock.Send(buf); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "obex: send_packet")
	}
	return nil
}

// RecvPacket peeks the first 3 bytes to learn the packet's declared total
// length, allocates exactly that many bytes, then reads the rest with
// wait-all semantics before decoding (spec.md 4.2 "Network transfer":
// recv_packet). A declared length over MaxPacketSize is rejected before any
// further read, so an oversized frame never causes partial consumption of
// the stream.
func RecvPacket(sock *glsock.Socket, hasConnectParams bool, rec *trace.Recorder) (Packet, error) {
	head := make([]byte, packetFramingSize)
	if _, err := sock.Recv(head, true, false); err != nil {
		return Invalid, wrapRecvErr(err, "obex: recv_packet peek")
	}

	length := int(head[1])<<8 | int(head[2])
	if length > MaxPacketSize {
		return Invalid, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: declared length %d exceeds max packet size", length)
	}
	if length < packetFramingSize {
		return Invalid, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: declared length %d shorter than framing", length)
	}

	buf := make([]byte, length)
	if _, err := sock.Recv(buf, false, true); err != nil {
		return Invalid, wrapRecvErr(err, "obex: recv_packet body")
	}

	if rec != nil {
		rec.RecordIn(buf)
	}

	p, err := Decode(buf, hasConnectParams)
	if err != nil {
		return Invalid, err
	}
	return p, nil
}

// wrapRecvErr pushes a new ERECV frame onto a raw socket recv error, except
// when the socket layer reported one of its event codes (TIMEOUT,
// CONN_SHUTDOWN, CONN_CLOSED): those pass through unwrapped so a caller
// further up (the sender/receiver state machines) can still switch on the
// original code via glerr.CodeOf, per spec.md 4.4.2's CONN_SHUTDOWN/
// CONN_CLOSED tolerance during Draining/Disconnecting.
func wrapRecvErr(err error, message string) error {
	if code, ok := glerr.CodeOf(err); ok && glerr.IsEvent(code) {
		return err
	}
	return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, message)
}

// SendDatagram encodes p and writes it as a single UDP datagram to `to`
// (spec.md 4.2 "Network transfer": sendto).
func SendDatagram(sock *glsock.Socket, p Packet, to glsock.Endpoint) error {
	buf := Encode(p)
	if err := sock.SendTo(buf, to); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "obex: sendto")
	}
	return nil
}

// RecvDatagram reads a single UDP datagram, decodes it, and returns the
// sender's endpoint. If expectOpcode is non-nil and the decoded opcode
// doesn't match, the packet is discarded as EINVALIDSTATEOPCODE (spec.md
// 4.2's "may accept an expected-opcode filter").
func RecvDatagram(sock *glsock.Socket, hasConnectParams bool, expectOpcode *Opcode) (Packet, glsock.Endpoint, error) {
	buf := make([]byte, MaxPacketSize)
	n, from, err := sock.RecvFrom(buf)
	if err != nil {
		return Invalid, from, err
	}

	p, err := Decode(buf[:n], hasConnectParams)
	if err != nil {
		return Invalid, from, err
	}
	if expectOpcode != nil && p.Opcode != *expectOpcode {
		return Invalid, from, glerr.Newf(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "obex: expected opcode %s, got %s", *expectOpcode, p.Opcode)
	}
	return p, from, nil
}
