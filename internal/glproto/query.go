package glproto

import (
	"log"
	"net"

	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/event"
	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/glsock/iface"
	"github.com/groundlift/groundlift/internal/trace"
)

// QueryRound issues one DISCOVERY broadcast to `broadcast` on `port` and
// collects replies until the socket's receive timeout elapses (spec.md
// 4.3 "Query"). Replies are deduplicated against `seen` (keyed by peer id)
// as they arrive; QueryRound mutates `seen` in place so callers running
// multiple rounds (multi-interface mode) share one dedup set.
func QueryRound(cfg *config.Snapshot, broadcast net.IP, port, timeoutMs int, seen map[[PeerIDLen]byte]bool, emitter *event.Emitter, rec *trace.Recorder) error {
	sock := glsock.New()
	if err := sock.SetAddress("", 0); err != nil {
		return err
	}
	if err := sock.SetupUDP(false, timeoutMs); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESOCKET, "glproto: setup query socket")
	}
	defer sock.Shutdown()

	query := Encode(Message{
		Type:       TypeDiscovery,
		PeerID:     cfg.PeerID(),
		DeviceType: cfg.DeviceType(),
		Hostname:   cfg.Hostname(),
	})
	if rec != nil {
		rec.RecordOut(query)
	}
	if err := sock.SendTo(query, glsock.Endpoint{Host: broadcast, Port: port}); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "glproto: broadcast discovery")
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := sock.RecvFrom(buf)
		if err != nil {
			if code, ok := glerr.CodeOf(err); ok && code == glerr.TIMEOUT {
				return nil
			}
			// Transport errors in discovery are logged and the loop
			// continues until timeout (spec.md 7).
			log.Println("glproto: discovery recv:", err)
			continue
		}

		raw := append([]byte(nil), buf[:n]...)
		if rec != nil {
			rec.RecordIn(raw)
		}

		if !HeadValid(raw) {
			continue
		}
		msg, err := Decode(raw)
		if err != nil || msg.Type != TypeDiscovery {
			continue
		}
		if seen[msg.PeerID] {
			continue
		}
		seen[msg.PeerID] = true

		udpFrom := net.UDPAddr{IP: from.Host, Port: from.Port}
		emitter.PeerDiscovered(event.PeerInfo{
			Hostname:   msg.Hostname,
			Addr:       &udpFrom,
			DeviceType: config.DeviceTypeString(msg.DeviceType),
		})
	}
}

// DiscoverAll runs one query round per broadcast-capable interface (or a
// single INADDR_BROADCAST round when enumeration is unavailable), per
// spec.md 4.3 "Multi-interface mode", then emits exactly one DiscoveryEnd.
func DiscoverAll(cfg *config.Snapshot, enum iface.Enumerator, port, timeoutMs int, emitter *event.Emitter, rec *trace.Recorder) error {
	if enum == nil {
		enum = iface.Default
	}

	ifs, err := enum.Enumerate()
	if err != nil || len(ifs) == 0 {
		ifs = iface.SingleInterfaceFallback()
	}

	seen := make(map[[PeerIDLen]byte]bool)
	var firstErr error
	for _, netIf := range ifs {
		if netIf.Broadcast == nil {
			continue
		}
		if err := QueryRound(cfg, netIf.Broadcast, port, timeoutMs, seen, emitter, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	emitter.DiscoveryEnd()
	return firstErr
}
