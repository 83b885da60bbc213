package ticket

import (
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	rl, err := NewRateLimiter(RateLimiterOpts{})
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	return rl
}

func TestNewRateLimiter_BadSchedule(t *testing.T) {
	if _, err := NewRateLimiter(RateLimiterOpts{PruneSchedule: "nope"}); err == nil {
		t.Fatal("expected error for bad cron expression")
	}
}

func TestReserve_SecondAttemptRejected(t *testing.T) {
	rl := newTestLimiter(t)
	if _, ok := rl.Reserve("u1"); !ok {
		t.Fatal("first reservation rejected")
	}
	retry, ok := rl.Reserve("u1")
	if ok {
		t.Fatal("second reservation within the window accepted")
	}
	if retry <= 0 || retry > CreationWindow {
		t.Errorf("retryAfter = %v, want 0 < retryAfter <= %v", retry, CreationWindow)
	}
}

func TestReserve_IndependentUsers(t *testing.T) {
	rl := newTestLimiter(t)
	rl.Reserve("u1")
	if _, ok := rl.Reserve("u2"); !ok {
		t.Error("different user rejected by u1's window")
	}
}

func TestReserve_WindowElapses(t *testing.T) {
	rl := newTestLimiter(t)
	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	rl.Reserve("u1")
	now = base.Add(CreationWindow - time.Second)
	if _, ok := rl.Reserve("u1"); ok {
		t.Error("accepted just inside the window")
	}
	now = base.Add(CreationWindow)
	if _, ok := rl.Reserve("u1"); !ok {
		t.Error("rejected after the window elapsed")
	}
}

func TestReserve_BurstSerializesToOne(t *testing.T) {
	rl := newTestLimiter(t)
	const attempts = 16
	var wg sync.WaitGroup
	accepted := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := rl.Reserve("u1"); ok {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)
	n := 0
	for range accepted {
		n++
	}
	if n != 1 {
		t.Errorf("%d concurrent reservations accepted, want exactly 1", n)
	}
}

func TestRelease_RefundsWindow(t *testing.T) {
	rl := newTestLimiter(t)
	rl.Reserve("u1")
	rl.Release("u1")
	if _, ok := rl.Reserve("u1"); !ok {
		t.Error("reservation after release rejected")
	}
}

func TestPrune(t *testing.T) {
	rl := newTestLimiter(t)
	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	rl.Reserve("old")
	now = base.Add(30 * time.Second)
	rl.Reserve("fresh")
	now = base.Add(70 * time.Second)

	if n := rl.Prune(); n != 1 {
		t.Errorf("Prune removed %d, want 1 (only the stale entry)", n)
	}
	// "fresh" is still inside its window.
	if _, ok := rl.Reserve("fresh"); ok {
		t.Error("fresh entry was pruned")
	}
}
