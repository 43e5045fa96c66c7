// Package event defines the typed callbacks a front-end hooks into a
// GroundLift sender or receiver session. Every field is a plain closure, so
// wiring state into a handler is ordinary Go closure-capture rather than a
// void* "arg" pointer threaded through the call chain.
package event

import (
	"net"
	"sync"
)

// ConnReqInfo describes an inbound CONNECT request surfaced to the host so
// it can synchronously decide whether to accept the transfer.
type ConnReqInfo struct {
	Basename string
	Size     int64
	Hostname string
}

// PeerInfo describes one discovered peer.
type PeerInfo struct {
	Hostname   string
	Addr       *net.UDPAddr
	DeviceType string
}

// Handlers is the full set of host-facing callbacks. Any field left nil is
// simply not invoked; callers only need to set the ones they care about.
type Handlers struct {
	// Connected fires once a sender's stream socket reaches its peer.
	Connected func(endpoint net.Addr)

	// ConnReq fires on the receiver side when a CONNECT has been parsed; the
	// host must return true to accept the transfer, false to decline it.
	ConnReq func(info ConnReqInfo) bool

	// ConnReqResp fires on the sender side once the peer's accept/decline is known.
	ConnReqResp func(basename string, accepted bool)

	// PutProgress fires after each chunk: on the sender once the peer has
	// acknowledged it, on the receiver once it has been written.
	PutProgress func(basename string, sentBytes, totalBytes int64, chunkIndex int, chunkSize int)

	// PutSucceeded fires once a file has been fully transferred; sha256Hex
	// is the hex-encoded digest of the bytes written (receiver) or read
	// (sender), per SPEC_FULL.md 3. The digest is reported, not checked.
	PutSucceeded func(basename string, sha256Hex string)

	// Disconnected fires when a session's stream socket is torn down.
	Disconnected func(endpoint net.Addr)

	// PeerDiscovered fires once per deduplicated discovery reply.
	PeerDiscovered func(info PeerInfo)

	// DiscoveryEnd fires once, after DiscoverAll has run every query round.
	DiscoveryEnd func()
}

func (h *Handlers) emitConnected(endpoint net.Addr) {
	if h != nil && h.Connected != nil {
		h.Connected(endpoint)
	}
}

func (h *Handlers) emitConnReq(info ConnReqInfo) bool {
	if h != nil && h.ConnReq != nil {
		return h.ConnReq(info)
	}
	return false
}

func (h *Handlers) emitConnReqResp(basename string, accepted bool) {
	if h != nil && h.ConnReqResp != nil {
		h.ConnReqResp(basename, accepted)
	}
}

func (h *Handlers) emitPutProgress(basename string, sent, total int64, chunkIndex, chunkSize int) {
	if h != nil && h.PutProgress != nil {
		h.PutProgress(basename, sent, total, chunkIndex, chunkSize)
	}
}

func (h *Handlers) emitPutSucceeded(basename, sha256Hex string) {
	if h != nil && h.PutSucceeded != nil {
		h.PutSucceeded(basename, sha256Hex)
	}
}

func (h *Handlers) emitDisconnected(endpoint net.Addr) {
	if h != nil && h.Disconnected != nil {
		h.Disconnected(endpoint)
	}
}

func (h *Handlers) emitPeerDiscovered(info PeerInfo) {
	if h != nil && h.PeerDiscovered != nil {
		h.PeerDiscovered(info)
	}
}

func (h *Handlers) emitDiscoveryEnd() {
	if h != nil && h.DiscoveryEnd != nil {
		h.DiscoveryEnd()
	}
}

// Emitter wraps Handlers with the mutex discipline spec.md 5 calls for: a
// session's worker goroutine owns event emission, but Shutdown can be called
// concurrently from another goroutine, so emission is guarded against a
// concurrent shutdown tearing down state a handler might read.
type Emitter struct {
	h    *Handlers
	mu   sync.Mutex
	done bool
}

// NewEmitter wraps a (possibly nil) Handlers set.
func NewEmitter(h *Handlers) *Emitter {
	return &Emitter{h: h}
}

// Close marks the emitter closed; subsequent emits are no-ops. Mirrors the
// "send" mutex in spec.md 5 guarding concurrent event emission against
// shutdown.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
}

func (e *Emitter) guard(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	fn()
}

func (e *Emitter) Connected(endpoint net.Addr) {
	e.guard(func() { e.h.emitConnected(endpoint) })
}

func (e *Emitter) ConnReq(info ConnReqInfo) bool {
	var accepted bool
	e.guard(func() { accepted = e.h.emitConnReq(info) })
	return accepted
}

func (e *Emitter) ConnReqResp(basename string, accepted bool) {
	e.guard(func() { e.h.emitConnReqResp(basename, accepted) })
}

func (e *Emitter) PutProgress(basename string, sent, total int64, chunkIndex, chunkSize int) {
	e.guard(func() { e.h.emitPutProgress(basename, sent, total, chunkIndex, chunkSize) })
}

func (e *Emitter) PutSucceeded(basename, sha256Hex string) {
	e.guard(func() { e.h.emitPutSucceeded(basename, sha256Hex) })
}

func (e *Emitter) Disconnected(endpoint net.Addr) {
	e.guard(func() { e.h.emitDisconnected(endpoint) })
}

func (e *Emitter) PeerDiscovered(info PeerInfo) {
	e.guard(func() { e.h.emitPeerDiscovered(info) })
}

func (e *Emitter) DiscoveryEnd() {
	e.guard(func() { e.h.emitDiscoveryEnd() })
}
