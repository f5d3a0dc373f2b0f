package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, expected %v", c.Now(), start)
	}

	c.Advance(6 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(6 * time.Second)) {
		t.Errorf("after Advance, Now() = %v", got)
	}

	jump := start.Add(time.Hour)
	c.Set(jump)
	if got := c.Now(); !got.Equal(jump) {
		t.Errorf("after Set, Now() = %v", got)
	}
}

func TestClock_ConcurrentUse(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(time.Millisecond)
				_ = c.Now()
			}
		}()
	}
	wg.Wait()

	if got := c.Now(); !got.Equal(start.Add(800 * time.Millisecond)) {
		t.Errorf("Now() = %v, expected %v", got, start.Add(800*time.Millisecond))
	}
}
