package session

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// SymmetricKey is the negotiated key material attached to a session.
//
// The session takes exclusive ownership of a key handed to it and calls Close
// exactly once when its record is destroyed. Implementations that also satisfy
// fmt.Stringer contribute a summary to verbose dumps.
type SymmetricKey interface {
	Close() error
}

// Certificate is the authentication certificate a session was created from.
// Ownership rules match [SymmetricKey].
type Certificate interface {
	Close() error
}

// ReleaseHook receives material Close failures. The record is destroyed
// regardless of the error.
type ReleaseHook func(id uint16, err error)

var (
	hookMu      sync.Mutex
	hookStack   []*ReleaseHook
	releaseHook atomic.Pointer[ReleaseHook]
)

// SetReleaseHook installs fn as the process-wide receiver of material Close
// failures and returns a func that uninstalls it. The most recently installed
// hook that has not been uninstalled receives every failure; uninstalling it
// hands failures back to the one installed before. A nil fn installs nothing.
func SetReleaseHook(fn ReleaseHook) (remove func()) {
	if fn == nil {
		return func() {}
	}
	h := &fn

	hookMu.Lock()
	hookStack = append(hookStack, h)
	releaseHook.Store(h)
	hookMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			hookMu.Lock()
			defer hookMu.Unlock()
			if i := slices.Index(hookStack, h); i >= 0 {
				hookStack = slices.Delete(hookStack, i, i+1)
			}
			if n := len(hookStack); n > 0 {
				releaseHook.Store(hookStack[n-1])
			} else {
				releaseHook.Store(nil)
			}
		})
	}
}

func reportRelease(id uint16, kind string, err error) {
	if err == nil {
		return
	}
	if fn := releaseHook.Load(); fn != nil {
		(*fn)(id, fmt.Errorf("close %s: %w", kind, err))
	}
}

func describe(v any) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}
