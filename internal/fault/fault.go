// Package fault contains addressing faults raised by native code so that a
// single call can fail without taking the process down.
//
// The contract is narrow: enter a guarded region, run a closure, get back
// either the closure's result or a *Fault. How the trap is caught is up to
// the native binding. The llama.cpp binding installs SIGSEGV/SIGBUS handlers
// that jump back into its C shim and then calls Raise; pure Go memory faults
// are caught through debug.SetPanicOnFault. An alternate strategy, such as
// running the risky call in a child process, only has to produce a *Fault.
package fault

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
)

// Fault identifies a trapped addressing fault.
type Fault struct {
	// Signal is the symbolic signal name, e.g. SIGSEGV.
	Signal string
	// Op names the native operation that was running, if known.
	Op string
	// Addr is the faulting address when the runtime reports one.
	Addr uintptr
}

func (f *Fault) Error() string {
	if f.Op == "" {
		return "fault: " + f.Signal
	}
	return fmt.Sprintf("fault: %s during %s", f.Signal, f.Op)
}

// ErrNested is returned when a guarded region is entered while the same
// guard is already active.
var ErrNested = errors.New("fault: guarded region already active")

// Guard is the explicit per-caller guard record. The zero value is ready to
// use. Exactly one region may be active per guard at a time.
type Guard struct {
	active atomic.Bool
}

// Active reports whether a guarded region is currently running.
func (g *Guard) Active() bool { return g.active.Load() }

// Guarded runs work inside a guarded region owned by g. A fault raised while
// work runs unwinds straight back here and is returned as a *Fault; the guard
// is released on every exit path. Panics that are not faults are re-raised
// unchanged.
//
// The calling goroutine is pinned to its OS thread for the duration because
// native recovery state is thread-local.
func Guarded[T any](g *Guard, op string, work func() (T, error)) (res T, err error) {
	if !g.active.CompareAndSwap(false, true) {
		return res, ErrNested
	}
	runtime.LockOSThread()
	prev := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(prev)
		runtime.UnlockOSThread()
		g.active.Store(false)
		if r := recover(); r != nil {
			f, ok := asFault(r, op)
			if !ok {
				panic(r)
			}
			var zero T
			res, err = zero, f
		}
	}()
	return work()
}

// Raise reports that a native call was interrupted by sig. It never returns;
// the enclosing Guarded call turns it into a *Fault. Outside a guarded region
// it crashes the process like any other unrecovered panic.
func Raise(sig syscall.Signal, op string) {
	panic(&Fault{Signal: SignalName(sig), Op: op})
}

// SignalName maps the addressing signals to their conventional names.
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGBUS:
		return "SIGBUS"
	default:
		return fmt.Sprintf("SIG%d", int(sig))
	}
}

// addrError is implemented by runtime errors produced for memory faults
// while SetPanicOnFault is enabled.
type addrError interface {
	error
	Addr() uintptr
}

func asFault(r any, op string) (*Fault, bool) {
	switch v := r.(type) {
	case *Fault:
		if v.Op == "" {
			v.Op = op
		}
		return v, true
	case addrError:
		return &Fault{Signal: "SIGSEGV", Op: op, Addr: v.Addr()}, true
	case runtime.Error:
		if strings.Contains(v.Error(), "invalid memory address") {
			return &Fault{Signal: "SIGSEGV", Op: op}, true
		}
	}
	return nil, false
}

// Installer registers process-wide handlers for addressing faults. Handlers
// must chain to whatever was installed before them when a fault happens
// outside a guarded region.
type Installer interface {
	InstallFaultHandlers()
}

var installed sync.Map

// InstallHandlers calls in.InstallFaultHandlers at most once per installer.
// Installers must be comparable, which in practice means pointer types.
func InstallHandlers(in Installer) {
	if in == nil {
		return
	}
	if _, loaded := installed.LoadOrStore(in, struct{}{}); loaded {
		return
	}
	in.InstallFaultHandlers()
}
