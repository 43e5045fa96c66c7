package glsock

import (
	stdcontext "context"
	"net"
	"strings"
)

// context returns the background context used for the net.ListenConfig
// calls in this package; GroundLift sockets don't thread a caller context
// through bind/listen, matching the teacher's synchronous setup calls.
func context() stdcontext.Context {
	return stdcontext.Background()
}

// reuseOpts selects which socket options controlFunc should apply.
type reuseOpts struct {
	reuseAddr       bool
	reusePort       bool
	broadcast       bool
	noMulticastLoop bool
}

func isShutdownErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

func isAlreadyClosedErr(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return strings.Contains(opErr.Err.Error(), "use of closed network connection")
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func asOpError(err error, target **net.OpError) bool {
	for err != nil {
		if oe, ok := err.(*net.OpError); ok {
			*target = oe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
