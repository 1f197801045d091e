// Package utils holds small cross-cutting helpers with no domain logic of
// their own: panic containment for background goroutines and id generation.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/xrrelay/xrrelay/internal/logx"
)

// GoSafe starts fn on its own goroutine and recovers any panic, logging the
// stack instead of taking the whole process down with it. Every long-running
// loop in this repo (pipeline threads, signaling reader, RTCP reader) is
// started through this, never a bare `go`.
func GoSafe(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Error("panic in %s: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// NewID returns a random hex session/client identifier, falling back to a
// timestamp if the CSPRNG is unavailable (should not happen in practice).
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("id-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
