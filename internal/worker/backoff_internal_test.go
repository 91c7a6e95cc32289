package worker

import (
	"testing"
	"time"
)

// Exercises the §4.4 step 6 backoff formula directly (delay is unexported,
// so this lives inside the package rather than worker_test).

func TestBackoffDelay_WithinJitterBounds(t *testing.T) {
	cfg := BackoffConfig{Base: 10 * time.Second, Max: 10 * time.Minute, Jitter: 0.2}

	for attempt := 1; attempt <= 3; attempt++ {
		base := cfg.Base * time.Duration(1<<uint(attempt-1))
		low := time.Duration(float64(base) * 0.8)
		high := time.Duration(float64(base) * 1.2)

		for i := 0; i < 20; i++ {
			d := cfg.delay(attempt)
			if d < low || d > high {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, low, high)
			}
		}
	}
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	cfg := BackoffConfig{Base: 10 * time.Second, Max: 30 * time.Second, Jitter: 0.2}

	// attempt=10 would be 10s * 2^9 = 5120s uncapped; must clamp to ~Max.
	for i := 0; i < 20; i++ {
		d := cfg.delay(10)
		low := time.Duration(float64(cfg.Max) * 0.8)
		high := time.Duration(float64(cfg.Max) * 1.2)
		if d < low || d > high {
			t.Fatalf("delay %v not clamped near Max %v", d, cfg.Max)
		}
	}
}

func TestBackoffDelay_ZeroJitter_Deterministic(t *testing.T) {
	cfg := BackoffConfig{Base: 10 * time.Second, Max: 10 * time.Minute, Jitter: 0}

	want := 40 * time.Second // attempt=3: 10s * 2^2
	if got := cfg.delay(3); got != want {
		t.Errorf("delay(3) = %v, want %v", got, want)
	}
}

func TestBackoffDelay_RetryGapsMeetSpecMinimums(t *testing.T) {
	// S2: attempt 2 scheduled >= 8s after attempt 1; attempt 3 >= 16s,
	// even at the low end of jitter.
	cfg := DefaultBackoff()

	for i := 0; i < 50; i++ {
		d2 := cfg.delay(1)
		if d2 < 8*time.Second {
			t.Fatalf("attempt 1->2 delay %v below the 8s floor", d2)
		}
		d3 := cfg.delay(2)
		if d3 < 16*time.Second {
			t.Fatalf("attempt 2->3 delay %v below the 16s floor", d3)
		}
	}
}
