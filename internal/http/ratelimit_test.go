package http

import (
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(3)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("fourth request within the window allowed")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("other client rejected")
	}
	if got := rl.rejected.Load(); got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}

	now = now.Add(time.Minute)
	if !rl.allow("1.2.3.4") {
		t.Fatal("request after the window rejected")
	}
}

func TestRateLimiter_SteadyTrafficStillLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2)
	rl.now = func() time.Time { return now }

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.allow("1.2.3.4") {
			allowed++
		}
		now = now.Add(5 * time.Second)
	}
	// 50 seconds of traffic fits in one window
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(10)
	rl.now = func() time.Time { return now }

	rl.allow("old")
	now = now.Add(11 * time.Minute)
	rl.allow("fresh")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := rl.clients["fresh"]; !ok {
		t.Error("fresh client evicted")
	}
	rl.stop()
	rl.stop()
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	if rl := newRateLimiter(0); rl.limit != 60 {
		t.Errorf("limit = %d, want 60", rl.limit)
	}
}
