package syncutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex_SerializesWriters(t *testing.T) {
	t.Parallel()

	var mu Mutex
	var wg sync.WaitGroup
	counter := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1600, counter)
}

func TestRWMutex_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	var mu RWMutex
	mu.RLock()
	acquired := make(chan struct{})
	go func() {
		mu.RLock()
		close(acquired)
		mu.RUnlock()
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked")
	}
	mu.RUnlock()
}

func TestSetLockTimeout(t *testing.T) {
	t.Parallel()

	// Accepted in both builds.
	SetLockTimeout(30 * time.Second)
	t.Logf("deadlock detection: %v", DeadlockDetection)
}
