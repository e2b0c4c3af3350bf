package state

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryManagerLifecycle(t *testing.T) {
	m := NewMemoryManager()

	if m.InProgress(1) {
		t.Fatal("fresh manager must not report progress")
	}
	if _, _, ok := m.GetState(1); ok {
		t.Fatal("fresh manager must not return state")
	}

	first := time.Now()
	m.SetState(1, "greeted", first)

	st, at, ok := m.GetState(1)
	if !ok || st != "greeted" || !at.Equal(first) {
		t.Fatalf("unexpected state: %v %v %v", st, at, ok)
	}
	if !m.InProgress(1) {
		t.Fatal("expected progress after SetState")
	}

	second := first.Add(time.Second)
	m.SetState(1, "received_audio", second)
	st, at, _ = m.GetState(1)
	if st != "received_audio" || !at.Equal(second) {
		t.Fatalf("overwrite failed: %v %v", st, at)
	}

	m.Clear(1)
	if m.InProgress(1) {
		t.Fatal("expected no progress after Clear")
	}
}

func TestMemoryManagerConcurrentAccess(t *testing.T) {
	m := NewMemoryManager()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.SetState(id, "greeted", time.Now())
				m.GetState(id)
				m.InProgress(id)
			}
		}(int64(i % 4))
	}
	wg.Wait()
}
