package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/event"
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/obex"
)

// startServer binds a listener on port, spawns Accept in the background, and
// returns the receiver-side config so tests can inspect its download dir.
func startServer(t *testing.T, port int, accept bool) (*config.Snapshot, *recorderLog) {
	t.Helper()
	cfg := config.New(fakePeerID('S'), "Lnx", "receiver", t.TempDir())

	listener := glsock.New()
	listener.SetAddressRaw(nil, port)
	if err := listener.SetupTCP(true); err != nil {
		t.Fatalf("SetupTCP: %v", err)
	}

	rl := &recorderLog{}
	emitter := event.NewEmitter(&event.Handlers{
		ConnReq:      func(event.ConnReqInfo) bool { return accept },
		PutProgress:  rl.onProgress,
		PutSucceeded: rl.onSucceeded,
		Disconnected: rl.onDisconnected,
	})

	go func() { _ = Accept(listener, cfg, emitter, nil) }()

	return cfg, rl
}

type progressRecord struct {
	Basename             string
	Sent, Total          int64
	ChunkIndex, ChunkSize int
}

type recorderLog struct {
	mu         sync.Mutex
	progress   []progressRecord
	succeeded  []string
	digests    []string
	disconnect int
}

func (r *recorderLog) onProgress(basename string, sent, total int64, chunkIndex, chunkSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progressRecord{
		Basename: basename, Sent: sent, Total: total, ChunkIndex: chunkIndex, ChunkSize: chunkSize,
	})
}

func (r *recorderLog) onSucceeded(basename, digest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, basename)
	r.digests = append(r.digests, digest)
}

func (r *recorderLog) onDisconnected(net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect++
}

func fakePeerID(b byte) [config.PeerIDLen]byte {
	var out [config.PeerIDLen]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSendReceiveSmallFile(t *testing.T) {
	const port = 19650
	cfg, rl := startServer(t, port, true)

	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	filePath := writeTempFile(t, "a.bin", data)

	clientCfg := config.New(fakePeerID('C'), "Lnx", "sender", t.TempDir())
	var connectedCount, respCount int
	emitter := event.NewEmitter(&event.Handlers{
		Connected:    func(net.Addr) { connectedCount++ },
		ConnReqResp:  func(string, bool) { respCount++ },
		PutProgress:  func(string, int64, int64, int, int) {},
		PutSucceeded: func(string, string) {},
		Disconnected: func(net.Addr) {},
	})

	if err := Send(clientCfg, "127.0.0.1", port, filePath, emitter, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	outPath := filepath.Join(cfg.DownloadDir(), "a.bin")
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", outPath, err)
	}
	if string(got) != string(data) {
		t.Fatalf("file mismatch: got %v want %v", got, data)
	}

	if connectedCount != 1 || respCount != 1 {
		t.Fatalf("expected exactly one connected/conn_req_resp, got %d/%d", connectedCount, respCount)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.progress) != 1 || rl.progress[0].Sent != 10 || rl.progress[0].Total != 10 {
		t.Fatalf("unexpected receiver progress: %+v", rl.progress)
	}
	if len(rl.succeeded) != 1 {
		t.Fatalf("expected exactly one put_succeeded, got %d", len(rl.succeeded))
	}
}

func TestSendReceiveRepeatUniquifies(t *testing.T) {
	const port = 19651
	cfg, _ := startServer(t, port, true)

	data := []byte("hello world")
	clientCfg := config.New(fakePeerID('C'), "Lnx", "sender", t.TempDir())
	noop := event.NewEmitter(&event.Handlers{})

	for i := 0; i < 2; i++ {
		filePath := writeTempFile(t, "a.bin", data)
		if err := Send(clientCfg, "127.0.0.1", port, filePath, noop, nil); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	first := filepath.Join(cfg.DownloadDir(), "a.bin")
	second := filepath.Join(cfg.DownloadDir(), "a (1).bin")
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("expected %s to exist: %v", first, err)
	}
	if _, err := os.Stat(second); err != nil {
		t.Fatalf("expected %s to exist: %v", second, err)
	}
}

func TestSendReceiveMultiChunk(t *testing.T) {
	const port = 19652
	_, rl := startServer(t, port, true)

	data := make([]byte, 24000)
	rand.New(rand.NewSource(1)).Read(data)
	filePath := writeTempFile(t, "big.bin", data)

	clientCfg := config.New(fakePeerID('C'), "Lnx", "sender", t.TempDir())
	noop := event.NewEmitter(&event.Handlers{})

	if err := Send(clientCfg, "127.0.0.1", port, filePath, noop, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.progress) != 3 {
		t.Fatalf("expected 3 progress events, got %d: %+v", len(rl.progress), rl.progress)
	}
	wantSent := []int64{8000, 16000, 24000}
	for i, p := range rl.progress {
		if p.Sent != wantSent[i] {
			t.Fatalf("progress[%d].Sent = %d, want %d", i, p.Sent, wantSent[i])
		}
	}
}

func TestSendReceiveZeroByteFile(t *testing.T) {
	const port = 19653
	cfg, rl := startServer(t, port, true)

	filePath := writeTempFile(t, "empty.bin", nil)
	clientCfg := config.New(fakePeerID('C'), "Lnx", "sender", t.TempDir())
	noop := event.NewEmitter(&event.Handlers{})

	if err := Send(clientCfg, "127.0.0.1", port, filePath, noop, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	outPath := filepath.Join(cfg.DownloadDir(), "empty.bin")
	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("Stat %s: %v", outPath, err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected empty file, got size %d", info.Size())
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.succeeded) != 1 {
		t.Fatalf("expected exactly one put_succeeded, got %d", len(rl.succeeded))
	}
}

func TestSendReceiveDeclined(t *testing.T) {
	const port = 19654
	cfg, rl := startServer(t, port, false)

	filePath := writeTempFile(t, "nope.bin", []byte("data"))
	clientCfg := config.New(fakePeerID('C'), "Lnx", "sender", t.TempDir())

	var accepted bool
	var sawResp bool
	emitter := event.NewEmitter(&event.Handlers{
		ConnReqResp: func(_ string, ok bool) { accepted = ok; sawResp = true },
	})

	if err := Send(clientCfg, "127.0.0.1", port, filePath, emitter, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !sawResp || accepted {
		t.Fatalf("expected conn_req_resp(false), sawResp=%v accepted=%v", sawResp, accepted)
	}
	if _, err := os.Stat(filepath.Join(cfg.DownloadDir(), "nope.bin")); !os.IsNotExist(err) {
		t.Fatalf("expected no file written, stat err=%v", err)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.succeeded) != 0 {
		t.Fatalf("expected no put_succeeded on decline, got %d", len(rl.succeeded))
	}
}

func TestConcurrentSendersDistinctPaths(t *testing.T) {
	const port = 19655
	cfg, _ := startServer(t, port, true)

	mkFile := func(name string, seed int64) (string, []byte) {
		data := make([]byte, 20000)
		rand.New(rand.NewSource(seed)).Read(data)
		return writeTempFile(t, name, data), data
	}

	path1, data1 := mkFile("dup.bin", 11)
	path2, data2 := mkFile("dup.bin", 22)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		clientCfg := config.New(fakePeerID('1'), "Lnx", "senderA", t.TempDir())
		errs[0] = Send(clientCfg, "127.0.0.1", port, path1, event.NewEmitter(&event.Handlers{}), nil)
	}()
	go func() {
		defer wg.Done()
		clientCfg := config.New(fakePeerID('2'), "Lnx", "senderB", t.TempDir())
		errs[1] = Send(clientCfg, "127.0.0.1", port, path2, event.NewEmitter(&event.Handlers{}), nil)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("sender %d: %v", i, err)
		}
	}

	first := filepath.Join(cfg.DownloadDir(), "dup.bin")
	second := filepath.Join(cfg.DownloadDir(), "dup (1).bin")

	gotA, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", first, err)
	}
	gotB, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", second, err)
	}

	sums := map[string]bool{sum(data1): true, sum(data2): true}
	if !sums[sum(gotA)] || !sums[sum(gotB)] {
		t.Fatalf("received file contents don't match either sent file")
	}
}

// TestReceiverToleratesPeerShutdownDuringDraining drives the wire protocol
// by hand up through the final PUT ack, then tears the client socket down
// instead of sending DISCONNECT. ServeConnection must still return a nil
// error: spec.md 4.4.2's edge policy has the receiver treat a peer shutdown
// during Draining as success rather than a protocol error.
func TestReceiverToleratesPeerShutdownDuringDraining(t *testing.T) {
	const port = 19656
	cfg := config.New(fakePeerID('S'), "Lnx", "receiver", t.TempDir())

	listener := glsock.New()
	listener.SetAddressRaw(nil, port)
	if err := listener.SetupTCP(true); err != nil {
		t.Fatalf("SetupTCP: %v", err)
	}

	emitter := event.NewEmitter(&event.Handlers{
		ConnReq: func(event.ConnReqInfo) bool { return true },
	})

	serveErrCh := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serveErrCh <- err
			return
		}
		serveErrCh <- ServeConnection(conn, cfg, emitter, nil)
	}()

	client := glsock.New()
	if err := client.SetAddress("127.0.0.1", port); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}
	if err := client.SetupTCP(false); err != nil {
		t.Fatalf("SetupTCP: %v", err)
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	data := []byte("hi")
	req := obex.ConnectPacket("x.bin", int64(len(data)), "sender", obex.MaxPacketSize)
	if err := obex.SendPacket(client, req, nil); err != nil {
		t.Fatalf("send CONNECT: %v", err)
	}
	resp, err := obex.RecvPacket(client, true, nil)
	if err != nil || resp.Opcode != obex.OpSuccess {
		t.Fatalf("CONNECT reply: %+v, %v", resp, err)
	}

	put := obex.PutPacket(data, true)
	if err := obex.SendPacket(client, put, nil); err != nil {
		t.Fatalf("send PUT: %v", err)
	}
	ack, err := obex.RecvPacket(client, false, nil)
	if err != nil || ack.Opcode != obex.OpSuccess {
		t.Fatalf("PUT ack: %+v, %v", ack, err)
	}

	if err := client.Shutdown(); err != nil {
		t.Fatalf("client Shutdown: %v", err)
	}

	select {
	case err := <-serveErrCh:
		if err != nil {
			t.Fatalf("ServeConnection should tolerate a peer shutdown instead of DISCONNECT, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServeConnection to return")
	}
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
