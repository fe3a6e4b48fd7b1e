//go:build deadlock

// Package syncutil provides the mutex types used by endpoints and
// transports. This file is compiled when building with -tags=deadlock and
// reports lock-order inversions and locks held too long.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether this build checks for deadlocks.
const DeadlockDetection = true

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}

// SetLockTimeout sets how long a lock may be waited on before it is
// reported. Zero disables the timeout check.
func SetLockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}
