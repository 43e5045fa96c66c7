package glproto

import (
	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/trace"
)

// Responder answers DISCOVERY broadcasts with this peer's identity
// (spec.md 4.3 "Response"). A zero Responder is not usable; construct with
// NewResponder.
type Responder struct {
	cfg  *config.Snapshot
	sock *glsock.Socket
	rec  *trace.Recorder
}

// NewResponder binds a UDP server socket on port and returns a Responder
// ready for ServeOne.
func NewResponder(cfg *config.Snapshot, port int, rec *trace.Recorder) (*Responder, error) {
	sock := glsock.New()
	sock.SetAddressRaw(nil, port)
	if err := sock.SetupUDP(true, 0); err != nil {
		return nil, glerr.Wrap(err, glerr.LayerGL, glerr.ESOCKET, "glproto: bind discovery server")
	}
	return &Responder{cfg: cfg, sock: sock, rec: rec}, nil
}

// Close releases the underlying socket.
func (r *Responder) Close() error { return r.sock.Shutdown() }

// ServeOne blocks for one inbound datagram, replies if it's a valid
// DISCOVERY request, and reports whether it did. Callers loop ServeOne in
// their own goroutine per spec.md 5 ("the discovery receive loop owns one
// thread"); a blocking recv error other than a timeout is returned so the
// caller can log it and keep looping (spec.md 7).
func (r *Responder) ServeOne() (replied bool, err error) {
	buf := make([]byte, 2048)
	n, from, err := r.sock.RecvFrom(buf)
	if err != nil {
		return false, err
	}

	raw := append([]byte(nil), buf[:n]...)
	if r.rec != nil {
		r.rec.RecordIn(raw)
	}

	if !HeadValid(raw) {
		return false, nil
	}
	msg, err := Decode(raw)
	if err != nil || msg.Type != TypeDiscovery {
		return false, nil
	}

	reply := Encode(Message{
		Type:       TypeDiscovery,
		PeerID:     r.cfg.PeerID(),
		DeviceType: r.cfg.DeviceType(),
		Hostname:   r.cfg.Hostname(),
	})
	if r.rec != nil {
		r.rec.RecordOut(reply)
	}
	if err := r.sock.SendTo(reply, from); err != nil {
		return false, glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "glproto: send discovery reply")
	}
	return true, nil
}
