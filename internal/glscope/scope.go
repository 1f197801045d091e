// Package glscope models the single EGL-equivalent graphics context that
// gates every swapchain/texture operation (§5, §7): exactly one goroutine at
// a time may hold the scope. A different goroutine contending for it blocks,
// the way a real EGL context mutex would; the same goroutine calling Begin
// again before its matching End is a programmer error (true nesting) and
// panics rather than deadlocking silently.
package glscope

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Scope gates access to the shared graphics context. Begin must be paired
// with End. Begin blocks until any other goroutine's Begin/End pair
// completes; calling Begin again on the goroutine that already holds it
// panics instead of deadlocking, matching the teacher's goSafe posture of
// never eating a bug quietly.
type Scope interface {
	Begin()
	End()
}

// mutexScope is the default Scope: a real mutex for cross-goroutine
// exclusion, plus an owner goroutine id (checked before attempting the
// lock) to turn same-goroutine re-entrancy into an immediate panic rather
// than a self-deadlock.
type mutexScope struct {
	mu    sync.Mutex
	owner atomic.Uint64
}

// New returns the default mutex-backed Scope.
func New() Scope {
	return &mutexScope{}
}

func (s *mutexScope) Begin() {
	gid := goroutineID()
	if s.owner.Load() == gid {
		panic("glscope: Begin called while already inside the scope on this goroutine (nesting is not permitted)")
	}
	s.mu.Lock()
	s.owner.Store(gid)
}

func (s *mutexScope) End() {
	gid := goroutineID()
	if s.owner.Load() != gid {
		panic("glscope: End called without a matching Begin on this goroutine")
	}
	s.owner.Store(0)
	s.mu.Unlock()
}

// Do runs fn inside the scope, guaranteeing End is called even if fn panics.
func Do(s Scope, fn func()) {
	s.Begin()
	defer s.End()
	fn()
}

// goroutineID extracts the calling goroutine's id from its own stack trace
// header ("goroutine 123 [running]:"). It exists only to distinguish
// same-goroutine re-entrancy from cross-goroutine contention above; it is
// not used as a general-purpose goroutine identity outside this package.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
