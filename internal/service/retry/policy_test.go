package retry

import (
	"context"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Multiplier: 2, Max: time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	cases := []struct {
		r    float64
		want time.Duration
	}{
		{0, 200 * time.Millisecond},
		{0.5, 400 * time.Millisecond},
		{0.75, 500 * time.Millisecond},
	}
	for _, tc := range cases {
		p := Policy{Base: 400 * time.Millisecond, Multiplier: 2, Max: time.Second, Jitter: true}.
			WithRand(func() float64 { return tc.r })
		if got := p.Delay(1); got != tc.want {
			t.Fatalf("Delay with r=%v = %s, want %s", tc.r, got, tc.want)
		}
	}

	p := Default()
	for i := 0; i < 1000; i++ {
		d := p.Delay(2)
		if d < 200*time.Millisecond || d >= 600*time.Millisecond {
			t.Fatalf("jittered delay %s outside [200ms, 600ms)", d)
		}
	}
}

func TestSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep ignored cancellation")
	}
}
