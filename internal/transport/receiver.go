// Package transport drives the sender and receiver finite-state machines
// that turn an accepted or outbound stream socket into a CONNECT -> PUT* ->
// DISCONNECT exchange (spec.md 4.4). Each session is a plain function run in
// its own goroutine by the caller, matching the teacher's
// handleClient/handleMux per-connection goroutine style in
// server/main.go rather than a dispatched object graph.
package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"

	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/event"
	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/obex"
	"github.com/groundlift/groundlift/internal/trace"
)

// ServeConnection drives one accepted connection through
// Accepted -> AwaitingConnect -> DecidingAccept -> Streaming -> Draining ->
// Done (spec.md 4.4.1). conn must already be the socket returned by the
// listener's Accept; ServeConnection owns it for the rest of its lifetime
// and always shuts it down before returning.
func ServeConnection(conn *glsock.Socket, cfg *config.Snapshot, emitter *event.Emitter, rec *trace.Recorder) error {
	defer func() {
		_ = conn.Shutdown()
		emitter.Disconnected(asNetAddr(conn.PeerEndpoint()))
	}()

	req, err := obex.RecvPacket(conn, true, rec)
	if err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: receiver accepted")
	}
	if !req.IsValid() || req.Opcode != obex.OpConnect {
		_ = obex.SendPacket(conn, obex.UnauthorizedPacket(), rec)
		return glerr.New(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "transport: expected CONNECT")
	}

	basename, _ := findString(req.Headers, obex.HdrName)
	size, _ := findInt32(req.Headers, obex.HdrLength)
	hostname, _ := findString(req.Headers, obex.HdrHostname)

	accepted := emitter.ConnReq(event.ConnReqInfo{Basename: basename, Size: int64(size), Hostname: hostname})
	if !accepted {
		if sendErr := obex.SendPacket(conn, obex.UnauthorizedPacket(), rec); sendErr != nil {
			return glerr.Wrap(sendErr, glerr.LayerGL, glerr.ESEND, "transport: decline reply")
		}
		return glerr.New(glerr.LayerGL, glerr.EDECLINED, "transport: transfer declined")
	}

	outPath := UniquifyPath(cfg.DownloadDir(), basename)
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	for os.IsExist(err) {
		// A concurrent session claimed outPath first; pick the next free name.
		outPath = UniquifyPath(cfg.DownloadDir(), basename)
		f, err = os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	}
	if err != nil {
		_ = obex.SendPacket(conn, obex.UnauthorizedPacket(), rec)
		return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: create %s", outPath)
	}
	defer f.Close()

	if err := obex.SendPacket(conn, obex.SuccessPacket(true, obex.MaxPacketSize), rec); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: accept reply")
	}

	digest := sha256.New()
	var received int64
	total := int64(size)
	chunkIndex := 0

	for {
		p, err := obex.RecvPacket(conn, false, rec)
		if err != nil {
			return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: streaming recv")
		}
		if !p.IsValid() || p.Opcode.Base() != obex.OpPut {
			return glerr.New(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "transport: expected PUT")
		}

		if len(p.Body) > 0 {
			if _, err := f.Write(p.Body); err != nil {
				return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: write %s", outPath)
			}
			digest.Write(p.Body)
		}
		received += int64(len(p.Body))
		chunkIndex++
		emitter.PutProgress(basename, received, total, chunkIndex, len(p.Body))

		if p.EOB {
			if err := f.Close(); err != nil {
				return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: close %s", outPath)
			}
			emitter.PutSucceeded(basename, hex.EncodeToString(digest.Sum(nil)))
			if err := obex.SendPacket(conn, obex.SuccessPacket(false, 0), rec); err != nil {
				return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: final success")
			}
			break
		}

		if err := obex.SendPacket(conn, obex.ContinuePacket(), rec); err != nil {
			return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: continue ack")
		}
	}

	return drainDisconnect(conn, rec)
}

// drainDisconnect implements the Draining state: it expects DISCONNECT and
// replies SUCCESS-final, but tolerates the peer tearing the socket down
// first (spec.md 4.4.2 edge policy): CONN_SHUTDOWN and CONN_CLOSED during
// Draining are both treated as success.
func drainDisconnect(conn *glsock.Socket, rec *trace.Recorder) error {
	p, err := obex.RecvPacket(conn, false, rec)
	if err != nil {
		if code, ok := glerr.CodeOf(err); ok && (code == glerr.CONN_SHUTDOWN || code == glerr.CONN_CLOSED) {
			return nil
		}
		return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: draining recv")
	}
	if !p.IsValid() || p.Opcode != obex.OpDisconnect {
		return glerr.New(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "transport: expected DISCONNECT")
	}
	if err := obex.SendPacket(conn, obex.SuccessPacket(false, 0), rec); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: disconnect reply")
	}
	return nil
}

// Accept loops the listener's accept call, spawning one ServeConnection
// goroutine per inbound connection until the listening socket is shut down
// (spec.md 4.4.1 "Listening", spec.md 5 "each accepted inbound connection
// owns one thread for the lifetime of its session").
func Accept(listener *glsock.Socket, cfg *config.Snapshot, emitter *event.Emitter, rec *trace.Recorder) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if code, ok := glerr.CodeOf(err); ok && code == glerr.CONN_SHUTDOWN {
				return nil
			}
			return err
		}
		go func() {
			if err := ServeConnection(conn, cfg, emitter, rec); err != nil {
				log.Println("transport:", err)
			}
		}()
	}
}
