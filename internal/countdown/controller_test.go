package countdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunDerivesRemainingFromDeadline(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := base

	ctrl := &Controller{
		Now:      func() time.Time { return now },
		Interval: time.Millisecond,
	}

	var ticks []int
	err := ctrl.Run(context.Background(), base.Add(3*time.Second),
		func(remaining int) error {
			ticks = append(ticks, remaining)
			now = now.Add(time.Second)
			return nil
		},
		func() error { return nil },
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []int{3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
}

func TestRunSurvivesSkippedTicks(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := base

	ctrl := &Controller{
		Now:      func() time.Time { return now },
		Interval: time.Millisecond,
	}

	var ticks []int
	err := ctrl.Run(context.Background(), base.Add(10*time.Second),
		func(remaining int) error {
			ticks = append(ticks, remaining)
			// The process stalls for 7 seconds between ticks.
			now = now.Add(7 * time.Second)
			return nil
		},
		func() error { return nil },
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 10, 3, 0: remaining re-derives from the deadline, it never drifts.
	want := []int{10, 3, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
}

func TestRunRetriesExpiry(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := base.Add(time.Hour) // already past the deadline

	ctrl := &Controller{
		Now:      func() time.Time { return now },
		Interval: time.Millisecond,
	}

	calls := 0
	err := ctrl.Run(context.Background(), base,
		func(int) error { return nil },
		func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expire calls = %d, want 3", calls)
	}
}

func TestRunStopsOnTickError(t *testing.T) {
	ctrl := &Controller{Interval: time.Millisecond}
	wantErr := errors.New("consumer gone")

	err := ctrl.Run(context.Background(), time.Now().Add(time.Hour),
		func(int) error { return wantErr },
		func() error { return nil },
	)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctrl := &Controller{Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	err := ctrl.Run(ctx, time.Now().Add(time.Hour),
		func(int) error {
			cancel()
			return nil
		},
		func() error { return nil },
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRemainingRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		until time.Duration
		want  int
	}{
		{0, 0},
		{-time.Minute, 0},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
	}
	for _, tc := range cases {
		if got := remainingSeconds(now, now.Add(tc.until)); got != tc.want {
			t.Fatalf("remaining(%v) = %d, want %d", tc.until, got, tc.want)
		}
	}
}
