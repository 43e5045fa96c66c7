package obex

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/groundlift/groundlift/internal/glerr"
)

// Wire constants (spec.md 6).
const (
	ProtocolVersion = 0x10
	MaxPacketSize   = 65535
	MaxFileChunk    = 8000
)

// packetFramingSize is the opcode(1) + length(2) every packet carries.
const packetFramingSize = 3

// connectParamsSize is the CONNECT/CONNECT-response fixed parameter block:
// version(1) + flags(1) + max-packet-size(2).
const connectParamsSize = 4

// Packet is a decoded (or to-be-encoded) OBEX packet (spec.md 3).
type Packet struct {
	Opcode Opcode

	// HasConnectParams is true for CONNECT and for a SUCCESS sent in reply
	// to a CONNECT; it gates the fixed parameter block. UNAUTHORIZED replies
	// never carry it.
	HasConnectParams bool
	ProtocolVersion  byte
	ConnectFlags     byte
	MaxPacketSize    uint16

	Headers []Header

	// Body and EOB are populated from the implicit BODY/END_BODY header
	// (spec.md 3); they are not part of Headers after decoding.
	HasBody bool
	Body    []byte
	EOB     bool

	// valid is false for the sentinel Invalid packet and for any packet
	// Decode could not parse.
	valid bool
}

// Invalid is the sentinel packet Decode returns on length mismatch or an
// unrecognized header encoding (spec.md 4.2 step 4, spec.md 9).
var Invalid = Packet{valid: false}

// IsValid reports whether p is a successfully decoded (or hand-built)
// packet rather than the Invalid sentinel.
func (p Packet) IsValid() bool { return p.valid }

// newValid returns p with the valid flag set, for use by constructors.
func newValid(p Packet) Packet {
	p.valid = true
	return p
}

// bodyWireSize returns the wire size of a BODY/END_BODY chunk: the
// implicit header has no NUL terminator, so its size is id(1) + len(2) +
// payload, i.e. len(payload)+3 (spec.md 4.2 step 1 and step 5).
func bodyWireSize(n int) int { return n + 3 }

// Size computes the packet's total encoded length, recomputed fresh every
// time per spec.md 4.2 step 1 (never trusted from a stale field).
func (p Packet) Size() int {
	size := packetFramingSize
	if p.HasConnectParams {
		size += connectParamsSize
	}
	for _, h := range p.Headers {
		size += h.WireSize()
	}
	if p.HasBody {
		size += bodyWireSize(len(p.Body))
	}
	return size
}

// Encode renders the packet to its wire form (spec.md 4.2 encoder).
func Encode(p Packet) []byte {
	size := p.Size()
	buf := make([]byte, 0, size)
	buf = append(buf, byte(p.Opcode))
	buf = appendUint16(buf, uint16(size))

	if p.HasConnectParams {
		buf = append(buf, p.ProtocolVersion, p.ConnectFlags)
		buf = appendUint16(buf, p.MaxPacketSize)
	}

	for _, h := range p.Headers {
		buf = appendHeader(buf, h)
	}

	if p.HasBody {
		id := byte(IDBody)
		if p.EOB {
			id = byte(IDEndBody)
		}
		buf = append(buf, id)
		buf = appendUint16(buf, uint16(bodyWireSize(len(p.Body))))
		buf = append(buf, p.Body...)
	}

	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendHeader(buf []byte, h Header) []byte {
	buf = append(buf, h.id)
	switch h.Encoding() {
	case EncString:
		units := utf16.Encode([]rune(h.str))
		buf = appendUint16(buf, uint16(h.WireSize()))
		for _, u := range units {
			buf = appendUint16(buf, u)
		}
		buf = append(buf, 0x00, 0x00)
	case EncBytes:
		buf = appendUint16(buf, uint16(h.WireSize()))
		buf = append(buf, h.bytes...)
		buf = append(buf, 0x00)
	case EncByte:
		buf = append(buf, h.b)
	case EncInt32:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], h.i32)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// Decode parses a complete packet from buf (exactly `length` bytes, per
// spec.md 4.2 decoder). hasConnectParams tells the decoder whether to
// consume the CONNECT fixed parameter block before the header loop; the
// caller knows this from the opcode/context (CONNECT, or a response to a
// CONNECT) the same way the sender/receiver state machines do.
func Decode(buf []byte, hasConnectParams bool) (Packet, error) {
	if len(buf) < packetFramingSize {
		return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: buffer shorter than packet framing")
	}

	opcode := Opcode(buf[0])
	length := int(binary.BigEndian.Uint16(buf[1:3]))
	if length > MaxPacketSize {
		return Invalid, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: declared length %d exceeds max packet size", length)
	}
	if length != len(buf) {
		return Invalid, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: declared length %d does not match buffer %d", length, len(buf))
	}

	p := Packet{Opcode: opcode}
	off := packetFramingSize

	if hasConnectParams {
		if len(buf) < off+connectParamsSize {
			return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated connect parameters")
		}
		p.HasConnectParams = true
		p.ProtocolVersion = buf[off]
		p.ConnectFlags = buf[off+1]
		p.MaxPacketSize = binary.BigEndian.Uint16(buf[off+2 : off+4])
		off += connectParamsSize
	}

	for off < length {
		if off >= len(buf) {
			return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated header")
		}
		id := buf[off]
		enc := Encoding(id & encodingMask)

		switch enc {
		case EncString:
			h, n, err := decodeStringHeader(buf, off, id)
			if err != nil {
				return Invalid, err
			}
			p.Headers = append(p.Headers, h)
			off += n
		case EncBytes:
			h, n, bodyEOB, isBody, err := decodeBytesHeader(buf, off, id)
			if err != nil {
				return Invalid, err
			}
			if isBody {
				p.HasBody = true
				p.Body = h.bytes
				p.EOB = bodyEOB
			} else {
				p.Headers = append(p.Headers, h)
			}
			off += n
		case EncByte:
			if off+2 > len(buf) {
				return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated byte header")
			}
			p.Headers = append(p.Headers, NewByteHeader(id&semanticMask, buf[off+1]))
			off += 2
		case EncInt32:
			if off+5 > len(buf) {
				return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated int32 header")
			}
			v := binary.BigEndian.Uint32(buf[off+1 : off+5])
			p.Headers = append(p.Headers, NewInt32Header(id&semanticMask, v))
			off += 5
		default:
			return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: unknown header encoding")
		}
	}

	if off != length {
		return Invalid, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: header loop overran declared length")
	}

	return newValid(p), nil
}

// decodeStringHeader decodes a null-terminated UTF-16BE string header
// starting at off. Returns the header and the number of bytes consumed.
func decodeStringHeader(buf []byte, off int, id byte) (Header, int, error) {
	if off+3 > len(buf) {
		return Header{}, 0, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated string header length")
	}
	total := int(binary.BigEndian.Uint16(buf[off+1 : off+3]))
	// total = id(1) + len(2) + payload + NUL(2)
	payloadLen := total - 5
	if payloadLen < 0 || payloadLen%2 != 0 {
		return Header{}, 0, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: invalid string header length %d", total)
	}
	if off+total > len(buf) {
		return Header{}, 0, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: string header overruns buffer")
	}

	payload := buf[off+3 : off+3+payloadLen]
	units := make([]uint16, payloadLen/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(payload[i*2 : i*2+2])
	}
	s := string(utf16.Decode(units))

	return NewStringHeader(id&semanticMask, s), total, nil
}

// decodeBytesHeader decodes a length-prefixed byte-sequence header,
// including the implicit BODY/END_BODY headers which bind to the packet's
// body rather than its header list (spec.md 3, 4.2 step 3).
func decodeBytesHeader(buf []byte, off int, id byte) (h Header, consumed int, eob bool, isBody bool, err error) {
	if off+3 > len(buf) {
		return Header{}, 0, false, false, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: truncated bytes header length")
	}
	total := int(binary.BigEndian.Uint16(buf[off+1 : off+3]))
	semantic := id & semanticMask

	// BODY/END_BODY has no NUL terminator (spec.md 4.2 step 5, bodyWireSize
	// at packet.go:65): total = id(1) + len(2) + payload. Every other byte
	// string carries a trailing NUL: total = id(1) + len(2) + payload + NUL(1).
	var payloadLen int
	if semantic == HdrBody || semantic == HdrEndBody {
		payloadLen = total - 3
	} else {
		payloadLen = total - 4
	}
	if payloadLen < 0 || off+total > len(buf) {
		return Header{}, 0, false, false, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "obex: invalid bytes header length %d", total)
	}

	payload := append([]byte(nil), buf[off+3:off+3+payloadLen]...)

	if semantic == HdrBody || semantic == HdrEndBody {
		return Header{bytes: payload}, total, semantic == HdrEndBody, true, nil
	}

	return NewBytesHeader(semantic, payload), total, false, false, nil
}
