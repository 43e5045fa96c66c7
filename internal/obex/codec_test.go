package obex

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pkt  Packet
		hasP bool
	}{
		{"connect", ConnectPacket("a.bin", 10, "devbox", MaxPacketSize), true},
		{"disconnect", DisconnectPacket(), false},
		{"success-with-params", SuccessPacket(true, 4096), true},
		{"success-no-params", SuccessPacket(false, 0), false},
		{"continue", ContinuePacket(), false},
		{"unauthorized", UnauthorizedPacket(), false},
		{"put-nonfinal", PutPacket([]byte("chunk-one"), false), false},
		{"put-final-empty", PutPacket(nil, true), false},
		{"get", GetPacket("x.bin"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := Encode(tc.pkt)
			got, err := Decode(buf, tc.hasP)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if !got.IsValid() {
				t.Fatalf("Decode returned invalid packet")
			}
			assertPacketsEqual(t, tc.pkt, got)
		})
	}
}

func assertPacketsEqual(t *testing.T, want, got Packet) {
	t.Helper()
	if want.Opcode != got.Opcode {
		t.Fatalf("Opcode = %v, want %v", got.Opcode, want.Opcode)
	}
	if want.HasConnectParams != got.HasConnectParams {
		t.Fatalf("HasConnectParams = %v, want %v", got.HasConnectParams, want.HasConnectParams)
	}
	if want.HasConnectParams {
		if want.ProtocolVersion != got.ProtocolVersion || want.ConnectFlags != got.ConnectFlags || want.MaxPacketSize != got.MaxPacketSize {
			t.Fatalf("connect params mismatch: got %+v want %+v", got, want)
		}
	}
	if len(want.Headers) != len(got.Headers) {
		t.Fatalf("header count = %d, want %d", len(got.Headers), len(want.Headers))
	}
	for i := range want.Headers {
		if want.Headers[i].ID() != got.Headers[i].ID() {
			t.Fatalf("header[%d].ID = %x, want %x", i, got.Headers[i].ID(), want.Headers[i].ID())
		}
		switch want.Headers[i].Encoding() {
		case EncString:
			ws, _ := want.Headers[i].String()
			gs, _ := got.Headers[i].String()
			if ws != gs {
				t.Fatalf("header[%d] string = %q, want %q", i, gs, ws)
			}
		case EncBytes:
			wb, _ := want.Headers[i].Bytes()
			gb, _ := got.Headers[i].Bytes()
			if !bytes.Equal(wb, gb) {
				t.Fatalf("header[%d] bytes = %x, want %x", i, gb, wb)
			}
		case EncByte:
			wv, _ := want.Headers[i].Byte()
			gv, _ := got.Headers[i].Byte()
			if wv != gv {
				t.Fatalf("header[%d] byte = %x, want %x", i, gv, wv)
			}
		case EncInt32:
			wv, _ := want.Headers[i].Int32()
			gv, _ := got.Headers[i].Int32()
			if wv != gv {
				t.Fatalf("header[%d] int32 = %d, want %d", i, gv, wv)
			}
		}
	}
	if want.HasBody != got.HasBody {
		t.Fatalf("HasBody = %v, want %v", got.HasBody, want.HasBody)
	}
	if want.HasBody {
		if !bytes.Equal(want.Body, got.Body) {
			t.Fatalf("Body = %x, want %x", got.Body, want.Body)
		}
		if want.EOB != got.EOB {
			t.Fatalf("EOB = %v, want %v", got.EOB, want.EOB)
		}
	}
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	buf := []byte{byte(OpPut), 0x01, 0x11} // 0x0111 = 273, fine, but we override below
	// Try to declare length 70000 (> MaxPacketSize). The 16-bit field keeps
	// only 0x1170 = 4464, which disagrees with the 3-byte buffer, so Decode
	// rejects it as a length mismatch.
	buf[1] = byte(70000 >> 8)
	buf[2] = byte(70000)

	p, err := Decode(buf, false)
	if err == nil {
		t.Fatalf("expected an error for oversized declared length")
	}
	if p.IsValid() {
		t.Fatalf("expected the Invalid sentinel, got a valid packet")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	pkt := PutPacket([]byte("hello"), true)
	buf := Encode(pkt)
	truncated := buf[:len(buf)-1]

	p, err := Decode(truncated, false)
	if err == nil {
		t.Fatalf("expected an error for truncated buffer")
	}
	if p.IsValid() {
		t.Fatalf("expected the Invalid sentinel")
	}
}

func TestZeroByteFilePutFinal(t *testing.T) {
	pkt := PutPacket(nil, true)
	buf := Encode(pkt)
	got, err := Decode(buf, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.HasBody || !got.EOB || len(got.Body) != 0 {
		t.Fatalf("expected an empty final body, got %+v", got)
	}
}

func TestConcatenatedPacketStreamPreservesOrder(t *testing.T) {
	pkts := []Packet{
		ConnectPacket("a.bin", 24000, "host", MaxPacketSize),
		PutPacket(make([]byte, 8000), false),
		PutPacket(make([]byte, 8000), false),
		PutPacket(make([]byte, 8000), true),
		DisconnectPacket(),
	}
	hasParams := []bool{true, false, false, false, false}

	var stream []byte
	for _, p := range pkts {
		stream = append(stream, Encode(p)...)
	}

	off := 0
	for i, want := range pkts {
		length := int(stream[off+1])<<8 | int(stream[off+2])
		got, err := Decode(stream[off:off+length], hasParams[i])
		if err != nil {
			t.Fatalf("packet %d: Decode: %v", i, err)
		}
		assertPacketsEqual(t, want, got)
		off += length
	}
	if off != len(stream) {
		t.Fatalf("leftover bytes after decoding all packets: %d", len(stream)-off)
	}
}

func TestHeaderWireSizeInvariant(t *testing.T) {
	h := NewStringHeader(HdrName, "a.bin")
	want := 1 + 2 + 2*len([]rune("a.bin")) + 2
	if got := h.WireSize(); got != want {
		t.Fatalf("WireSize = %d, want %d", got, want)
	}

	bh := NewBytesHeader(HdrType, []byte("application/octet-stream"))
	if got, want := bh.WireSize(), 1+2+len("application/octet-stream")+1; got != want {
		t.Fatalf("WireSize = %d, want %d", got, want)
	}

	byh := NewByteHeader(HdrConnectionID, 0x01)
	if got := byh.WireSize(); got != 2 {
		t.Fatalf("WireSize = %d, want 2", got)
	}

	ih := NewInt32Header(HdrLength, 1024)
	if got := ih.WireSize(); got != 5 {
		t.Fatalf("WireSize = %d, want 5", got)
	}
}

func TestBodyEncodedIdentifiersMatchSpec(t *testing.T) {
	if IDBody != 0x48 {
		t.Fatalf("IDBody = %#x, want 0x48", IDBody)
	}
	if IDEndBody != 0x49 {
		t.Fatalf("IDEndBody = %#x, want 0x49", IDEndBody)
	}
}
