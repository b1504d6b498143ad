package custody

import (
	"runtime"
	"strings"
	"sync/atomic"
)

// ReentrancyGuard is a non-blocking mutual exclusion flag. A second Enter while
// the guard is held fails immediately instead of waiting, so a collaborator
// calling back into the custodian mid-flow is rejected rather than deadlocked.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter acquires the guard. The returned release func must be called on every
// exit path; it is safe to call more than once.
func (g *ReentrancyGuard) Enter() (release func(), err error) {
	if !g.entered.CompareAndSwap(false, true) {
		return func() {}, ErrReentrantCall
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.entered.Store(false)
		}
	}, nil
}

// Held reports whether a flow currently holds the guard
func (g *ReentrancyGuard) Held() bool {
	return g.entered.Load()
}

// flowFrame is the function every custodian flow runs under. Finding it on
// the current goroutine's stack means a collaborator is calling back from
// inside a flow, whatever context it passed along.
const flowFrame = ".(*Custodian).runFlow"

func insideFlow() bool {
	pcs := make([]uintptr, 64)
	for {
		n := runtime.Callers(2, pcs)
		if n < len(pcs) {
			pcs = pcs[:n]
			break
		}
		pcs = make([]uintptr, 2*len(pcs))
	}
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if strings.HasSuffix(frame.Function, flowFrame) {
			return true
		}
		if !more {
			return false
		}
	}
}
