package event

import "testing"

func TestEmitterDispatchesToHandlers(t *testing.T) {
	var gotBasename string
	var gotAccepted bool

	h := &Handlers{
		ConnReq: func(info ConnReqInfo) bool {
			return info.Basename == "a.bin"
		},
		ConnReqResp: func(basename string, accepted bool) {
			gotBasename = basename
			gotAccepted = accepted
		},
	}
	e := NewEmitter(h)

	if !e.ConnReq(ConnReqInfo{Basename: "a.bin"}) {
		t.Fatalf("expected ConnReq to accept a.bin")
	}
	e.ConnReqResp("a.bin", true)

	if gotBasename != "a.bin" || !gotAccepted {
		t.Fatalf("handler not invoked with expected args: %q %v", gotBasename, gotAccepted)
	}
}

func TestEmitterNilHandlersAreNoop(t *testing.T) {
	e := NewEmitter(nil)
	if e.ConnReq(ConnReqInfo{}) {
		t.Fatalf("nil handlers should decline by default")
	}
	e.PutProgress("x", 1, 2, 0, 1)
	e.Disconnected(nil)
}

func TestEmitterCloseSuppressesFurtherEmits(t *testing.T) {
	calls := 0
	e := NewEmitter(&Handlers{DiscoveryEnd: func() { calls++ }})
	e.DiscoveryEnd()
	e.Close()
	e.DiscoveryEnd()

	if calls != 1 {
		t.Fatalf("expected exactly 1 call before Close, got %d", calls)
	}
}
