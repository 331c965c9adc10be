// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestFakeClock_DefaultsToReferenceTime(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Time{})
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := clock.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	clock.Advance(90 * time.Minute)
	if got := clock.Since(start); got != 90*time.Minute {
		t.Errorf("Since() = %v, want 1h30m", got)
	}

	later := start.Add(24 * time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			clock.Advance(time.Second)
			_ = clock.Now()
		})
	}
	wg.Wait()

	if got := clock.Since(start); got != 50*time.Second {
		t.Errorf("Since() = %v, want 50s", got)
	}
}
