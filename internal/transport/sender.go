package transport

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/event"
	"github.com/groundlift/groundlift/internal/glerr"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/obex"
	"github.com/groundlift/groundlift/internal/trace"
)

// Send drives one outbound transfer through
// Idle -> Connecting -> Negotiating -> Streaming -> Disconnecting -> Done
// (spec.md 4.4.2). It runs synchronously; callers that want the front end to
// remain responsive run it in its own goroutine (spec.md 5).
func Send(cfg *config.Snapshot, host string, port int, filePath string, emitter *event.Emitter, rec *trace.Recorder) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: stat %s", filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: open %s", filePath)
	}
	defer f.Close()

	basename := filepath.Base(filePath)
	size := info.Size()

	sock := glsock.New()
	if err := sock.SetAddress(host, port); err != nil {
		return err
	}
	if err := sock.SetupTCP(false); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESOCKET, "transport: setup sender socket")
	}
	defer sock.Shutdown()

	if err := sock.Connect(); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ECONNECT, "transport: connect")
	}
	emitter.Connected(asNetAddr(sock.PeerEndpoint()))

	req := obex.ConnectPacket(basename, size, cfg.Hostname(), obex.MaxPacketSize)
	if err := obex.SendPacket(sock, req, rec); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: send CONNECT")
	}

	op, err := peekOpcode(sock)
	if err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: negotiating peek")
	}
	resp, err := obex.RecvPacket(sock, op == obex.OpSuccess, rec)
	if err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: negotiating recv")
	}
	if !resp.IsValid() || (resp.Opcode != obex.OpSuccess && resp.Opcode != obex.OpUnauthorized) {
		return glerr.New(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "transport: expected SUCCESS or UNAUTHORIZED")
	}

	accepted := resp.Opcode == obex.OpSuccess
	emitter.ConnReqResp(basename, accepted)
	if !accepted {
		return disconnect(sock, emitter, rec)
	}

	peerMaxPacketSize := resp.MaxPacketSize
	if err := stream(sock, f, basename, size, peerMaxPacketSize, emitter, rec); err != nil {
		return err
	}

	return disconnect(sock, emitter, rec)
}

// stream implements the Streaming state: read a chunk, send PUT/PUT-final,
// wait for the matching ack, repeat until the file is exhausted.
func stream(sock *glsock.Socket, f *os.File, basename string, size int64, peerMaxPacketSize uint16, emitter *event.Emitter, rec *trace.Recorder) error {
	br := bufio.NewReader(f)
	digest := sha256.New()
	var sent int64
	chunkIndex := 0

	for {
		remaining := size - sent
		n := chunkSize(peerMaxPacketSize, remaining)
		buf := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(br, buf); err != nil {
				return glerr.Wrapf(err, glerr.LayerGL, glerr.EFILESYSTEM, "transport: read %s", basename)
			}
			digest.Write(buf)
		}

		final := sent+int64(n) >= size
		put := obex.PutPacket(buf, final)
		if err := obex.SendPacket(sock, put, rec); err != nil {
			return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: send PUT")
		}

		ack, err := obex.RecvPacket(sock, false, rec)
		if err != nil {
			return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: streaming ack")
		}
		wantOp := obex.OpContinue
		if final {
			wantOp = obex.OpSuccess
		}
		if !ack.IsValid() || ack.Opcode != wantOp {
			return glerr.New(glerr.LayerGL, glerr.EINVALIDSTATEOPCODE, "transport: unexpected streaming ack")
		}

		sent += int64(n)
		chunkIndex++
		emitter.PutProgress(basename, sent, size, chunkIndex, n)

		if final {
			emitter.PutSucceeded(basename, hex.EncodeToString(digest.Sum(nil)))
			return nil
		}
	}
}

// disconnect implements the Disconnecting state: send DISCONNECT, read the
// optional SUCCESS ack (a peer that closes first is not an error here), then
// close and emit disconnected.
func disconnect(sock *glsock.Socket, emitter *event.Emitter, rec *trace.Recorder) error {
	defer func() {
		peer := sock.PeerEndpoint()
		_ = sock.Shutdown()
		emitter.Disconnected(asNetAddr(peer))
	}()

	if err := obex.SendPacket(sock, obex.DisconnectPacket(), rec); err != nil {
		return glerr.Wrap(err, glerr.LayerGL, glerr.ESEND, "transport: send DISCONNECT")
	}

	_, err := obex.RecvPacket(sock, false, rec)
	if err != nil {
		if code, ok := glerr.CodeOf(err); ok && (code == glerr.CONN_SHUTDOWN || code == glerr.CONN_CLOSED) {
			return nil
		}
		return glerr.Wrap(err, glerr.LayerGL, glerr.ERECV, "transport: disconnect ack")
	}
	return nil
}
