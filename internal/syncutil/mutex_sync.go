//go:build !deadlock

// Package syncutil provides the mutex types used by endpoints and
// transports. By default they are plain sync types with zero overhead.
// Build with -tags=deadlock to enable detection via
// github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// DeadlockDetection reports whether this build checks for deadlocks.
const DeadlockDetection = false

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
