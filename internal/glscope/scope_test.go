package glscope

import (
	"testing"
	"time"
)

func TestBeginEndRoundTrip(t *testing.T) {
	s := New()
	s.Begin()
	s.End()
	s.Begin()
	s.End()
}

func TestRecursiveBeginPanics(t *testing.T) {
	s := New()
	s.Begin()
	defer s.End()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected recursive Begin to panic")
		}
	}()
	s.Begin()
}

func TestEndWithoutBeginPanics(t *testing.T) {
	s := New()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected End without Begin to panic")
		}
	}()
	s.End()
}

func TestDoRunsFnInsideScope(t *testing.T) {
	s := New()
	ran := false
	Do(s, func() { ran = true })
	if !ran {
		t.Fatalf("expected fn to run")
	}
	// Scope should be free again afterward.
	s.Begin()
	s.End()
}

func TestBeginBlocksAcrossGoroutinesInsteadOfPanicking(t *testing.T) {
	s := New()
	s.Begin()

	acquired := make(chan struct{})
	go func() {
		s.Begin()
		close(acquired)
		s.End()
	}()

	select {
	case <-acquired:
		t.Fatalf("expected second goroutine's Begin to block while the first holds the scope")
	case <-time.After(20 * time.Millisecond):
	}

	s.End()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected second goroutine's Begin to unblock once End released the scope")
	}
}

func TestDoEndsScopeEvenWhenFnPanics(t *testing.T) {
	s := New()
	func() {
		defer func() { recover() }()
		Do(s, func() { panic("boom") })
	}()
	// If Do's deferred End ran, the scope is free again.
	s.Begin()
	s.End()
}
