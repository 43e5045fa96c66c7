// Package glproto implements the UDP peer-discovery protocol ("glproto",
// spec.md 3, 4.3): a small request/reply message family identifying a peer
// by its stable 8-byte identifier, 3-character device-type tag, and
// hostname.
package glproto

import (
	"encoding/binary"

	"github.com/groundlift/groundlift/internal/glerr"
)

// Default ports (spec.md 6, 9). The module's wire default for discovery is
// GLServerMainPort, per spec.md 9's "current source aligns discovery with
// 1650" note; UDPServerPort is kept for interop with older peers that
// expect discovery on 1651.
const (
	GLServerMainPort = 1650
	UDPServerPort    = 1651

	DefaultDiscoveryPort = GLServerMainPort
)

// Discovery round-trip timeouts (spec.md 6).
const (
	DefaultTimeoutMs = 1000
	CLITimeoutMs     = 5000
)

// MsgType is the envelope's type byte (spec.md 3).
type MsgType byte

const (
	TypeDiscovery MsgType = 'D'
	TypeURL       MsgType = 'U'
	TypeFile      MsgType = 'F'
)

// reserved is the value glproto writes into each separator byte position.
// spec.md 9 flags their role as unclear in the source; this implementation
// treats them as reserved-zero, written but ignored on read beyond
// validating their offset.
const reserved byte = 0x00

// envelopeFixedSize is every fixed-width byte before the length-prefixed
// hostname: head(4) + length(2) + sep(1) + peerid(8) + sep(1) +
// devicetype(3) + sep(1) + hostname-length-prefix(1).
const envelopeFixedSize = 4 + 2 + 1 + 8 + 1 + 3 + 1 + 1

// PeerIDLen and DeviceTypeLen mirror internal/config's fixed widths.
const (
	PeerIDLen     = 8
	DeviceTypeLen = 3
)

// Message is a decoded glproto envelope.
type Message struct {
	Type       MsgType
	PeerID     [PeerIDLen]byte
	DeviceType [DeviceTypeLen]byte
	Hostname   string
}

// Encode renders m to its wire form.
func Encode(m Message) []byte {
	total := envelopeFixedSize + len(m.Hostname)
	buf := make([]byte, 0, total)

	buf = append(buf, 'G', 'L', byte(m.Type), 0x00)
	buf = append(buf, byte(total>>8), byte(total))
	buf = append(buf, reserved)
	buf = append(buf, m.PeerID[:]...)
	buf = append(buf, reserved)
	buf = append(buf, m.DeviceType[:]...)
	buf = append(buf, reserved)
	buf = append(buf, byte(len(m.Hostname)))
	buf = append(buf, []byte(m.Hostname)...)

	return buf
}

// HeadValid checks the 4-byte head per spec.md 3: bytes 'G','L', a non-zero
// type, and a NUL in position 3.
func HeadValid(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 'G' && buf[1] == 'L' && buf[2] != 0 && buf[3] == 0x00
}

// Decode parses a glproto envelope, validating the head and every fixed
// offset described in spec.md 4.3.
func Decode(buf []byte) (Message, error) {
	if !HeadValid(buf) {
		return Message{}, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "glproto: invalid head")
	}
	if len(buf) < envelopeFixedSize {
		return Message{}, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "glproto: truncated envelope")
	}

	total := int(binary.BigEndian.Uint16(buf[4:6]))
	if total > len(buf) {
		return Message{}, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "glproto: declared length %d exceeds buffer %d", total, len(buf))
	}

	var m Message
	m.Type = MsgType(buf[2])
	// buf[6] is the reserved separator before the peer id.
	copy(m.PeerID[:], buf[7:15])
	// buf[15] is the reserved separator before the device type.
	copy(m.DeviceType[:], buf[16:19])
	// buf[19] is the reserved separator before the hostname length.
	hostLen := int(buf[20])
	if envelopeFixedSize+hostLen != total {
		return Message{}, glerr.Newf(glerr.LayerGL, glerr.EINVALIDPACKET, "glproto: hostname length %d inconsistent with declared total %d", hostLen, total)
	}
	if envelopeFixedSize+hostLen > len(buf) {
		return Message{}, glerr.New(glerr.LayerGL, glerr.EINVALIDPACKET, "glproto: hostname overruns buffer")
	}
	m.Hostname = string(buf[envelopeFixedSize : envelopeFixedSize+hostLen])

	return m, nil
}
