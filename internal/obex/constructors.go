package obex

// ConnectPacket builds the initial CONNECT request a sender issues to
// negotiate a transfer (spec.md 4.4.2 "Negotiating"): protocol version,
// flags=0, this side's max packet size, and NAME/LENGTH/HOSTNAME headers
// describing the file about to be sent.
func ConnectPacket(basename string, size int64, hostname string, maxPacketSize uint16) Packet {
	return newValid(Packet{
		Opcode:           OpConnect,
		HasConnectParams: true,
		ProtocolVersion:  ProtocolVersion,
		ConnectFlags:     0x00,
		MaxPacketSize:    cappedMaxPacketSize(maxPacketSize),
		Headers: []Header{
			NewStringHeader(HdrName, basename),
			NewInt32Header(HdrLength, uint32(size)),
			NewStringHeader(HdrHostname, hostname),
		},
	})
}

// DisconnectPacket builds a DISCONNECT request (spec.md 4.4.2 "Disconnecting").
func DisconnectPacket() Packet {
	return newValid(Packet{Opcode: OpDisconnect})
}

// SuccessPacket builds a SUCCESS-final response. When withConnectParams is
// true it carries the CONNECT reply parameters (spec.md 4.4.1
// "DecidingAccept": "send SUCCESS-final with the CONNECT reply parameters").
func SuccessPacket(withConnectParams bool, maxPacketSize uint16) Packet {
	p := Packet{Opcode: OpSuccess}
	if withConnectParams {
		p.HasConnectParams = true
		p.ProtocolVersion = ProtocolVersion
		p.ConnectFlags = 0x00
		p.MaxPacketSize = cappedMaxPacketSize(maxPacketSize)
	}
	return newValid(p)
}

// ContinuePacket builds a CONTINUE-final response, sent after each
// non-terminal PUT chunk (spec.md 4.4.2 "Streaming").
func ContinuePacket() Packet {
	return newValid(Packet{Opcode: OpContinue})
}

// UnauthorizedPacket builds an UNAUTHORIZED-final response, sent when a
// connection is declined or a protocol error occurs (spec.md 4.4.1, 7).
func UnauthorizedPacket() Packet {
	return newValid(Packet{Opcode: OpUnauthorized})
}

// PutPacket builds one PUT packet carrying a body chunk. final sets the
// final bit and switches the implicit body header to END_BODY (spec.md 3,
// 4.4.2 "Streaming").
func PutPacket(body []byte, final bool) Packet {
	op := OpPut
	if final {
		op = op.WithFinal()
	}
	return newValid(Packet{
		Opcode:  op,
		HasBody: true,
		Body:    body,
		EOB:     final,
	})
}

// GetPacket builds a GET request for the named resource.
func GetPacket(name string) Packet {
	return newValid(Packet{
		Opcode:  OpGet.WithFinal(),
		Headers: []Header{NewStringHeader(HdrName, name)},
	})
}

func cappedMaxPacketSize(v uint16) uint16 {
	if v > MaxPacketSize {
		return MaxPacketSize
	}
	return v
}
