package segmentz

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestIDPoolBasicOperation tests basic ID pool functionality.
func TestIDPoolBasicOperation(t *testing.T) {
	pool := newIDPool(10, func() string { return "test-id" })
	defer pool.Close()

	if id := pool.Get(); id != "test-id" {
		t.Errorf("Expected 'test-id', got %s", id)
	}
}

// TestIDPoolEmpty tests fallback generation when the pool is drained.
func TestIDPoolEmpty(t *testing.T) {
	var (
		mu        sync.Mutex
		callCount int
	)
	factory := func() string {
		mu.Lock()
		defer mu.Unlock()
		callCount++
		return "direct-id"
	}

	pool := newIDPool(1, factory)
	defer pool.Close()

	for i := 0; i < 5; i++ {
		if id := pool.Get(); id != "direct-id" {
			t.Errorf("Expected 'direct-id', got %s", id)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if callCount < 5 {
		t.Errorf("Expected factory to be called at least 5 times, got %d", callCount)
	}
}

func TestUUIDPoolUnique(t *testing.T) {
	pool := newUUIDPool(16)
	defer pool.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := pool.Get()
		if len(id) != 32 {
			t.Fatalf("Expected 32 hex characters, got %q", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate id %s", id)
		}
		seen[id] = true
	}
}

// TestIDPoolClose verifies Close stops the refill goroutine and is idempotent.
func TestIDPoolClose(t *testing.T) {
	before := runtime.NumGoroutine()

	pool := newIDPool(4, func() string { return "id" })
	pool.Close()
	pool.Close()

	time.Sleep(20 * time.Millisecond)
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("Goroutine leak detected after close: %d -> %d", before, after)
	}

	if id := pool.Get(); id != "id" {
		t.Errorf("Expected Get to keep working after close, got %s", id)
	}
}
