package rate_test

import (
	"math"
	"testing"
	"time"

	"scorch/internal/mastering"
	"scorch/internal/rate"
)

func TestWindowMeanAndPhaseClear(t *testing.T) {
	const total = 1000
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	est := rate.NewEstimator(total, 0)
	est.Start(base)

	// t=1s, 10%: first sample is the cumulative average, 100 B/s.
	got := est.Observe(10, mastering.ActionWritingData, base.Add(1*time.Second))
	if math.Abs(got.BytesPerSecond-100) > 0.001 {
		t.Fatalf("first estimate = %f B/s, want 100", got.BytesPerSecond)
	}
	if !got.HasETA {
		t.Fatal("expected an ETA with a nonzero rate")
	}

	// t=2s, 30%: instantaneous 200 B/s joins the window, mean 150 B/s.
	got = est.Observe(30, mastering.ActionWritingData, base.Add(2*time.Second))
	if math.Abs(got.BytesPerSecond-150) > 0.001 {
		t.Fatalf("second estimate = %f B/s, want 150", got.BytesPerSecond)
	}

	// t=3s, finalizing: no transfer, rate and ETA vanish.
	got = est.Observe(30, mastering.ActionFinalizing, base.Add(3*time.Second))
	if got.BytesPerSecond != 0 || got.HasETA {
		t.Fatalf("finalizing must publish no rate, got %+v", got)
	}
}

func TestWindowBounded(t *testing.T) {
	const total = 100 * 1000
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	est := rate.NewEstimator(total, 0)
	est.Start(base)

	// Ten slow samples at 1%/s, then ten fast at 4%/s. With a window of
	// eight, the slow samples must age out completely.
	pct := 0.0
	now := base
	for i := 0; i < 10; i++ {
		pct++
		now = now.Add(time.Second)
		est.Observe(pct, mastering.ActionWritingData, now)
	}
	var got rate.Estimate
	for i := 0; i < 10; i++ {
		pct += 4
		now = now.Add(time.Second)
		got = est.Observe(pct, mastering.ActionWritingData, now)
	}
	want := 4.0 / 100 * total
	if math.Abs(got.BytesPerSecond-want) > 0.001 {
		t.Fatalf("estimate = %f B/s, want %f after slow samples aged out", got.BytesPerSecond, want)
	}
}

func TestStalledPercentKeepsPublishedMean(t *testing.T) {
	const total = 1000
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	est := rate.NewEstimator(total, 0)
	est.Start(base)

	got := est.Observe(10, mastering.ActionWritingData, base.Add(1*time.Second))
	if math.Abs(got.BytesPerSecond-100) > 0.001 {
		t.Fatalf("first estimate = %f B/s, want 100", got.BytesPerSecond)
	}

	// Same percent a second later: the mean must hold, not halve.
	got = est.Observe(10, mastering.ActionWritingData, base.Add(2*time.Second))
	if math.Abs(got.BytesPerSecond-100) > 0.001 {
		t.Fatalf("stalled estimate = %f B/s, want 100", got.BytesPerSecond)
	}

	// The next advance spans the full interval since the last one:
	// 200 bytes over two seconds is another 100 B/s sample.
	got = est.Observe(30, mastering.ActionWritingData, base.Add(3*time.Second))
	if math.Abs(got.BytesPerSecond-100) > 0.001 {
		t.Fatalf("post-stall estimate = %f B/s, want 100", got.BytesPerSecond)
	}
}

func TestClampToConfiguredSpeed(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// 1 KB/s cap; observations imply 10x that.
	est := rate.NewEstimator(100_000, 1)
	est.Start(base)
	got := est.Observe(10, mastering.ActionWritingData, base.Add(1*time.Second))
	if got.BytesPerSecond != 1000 {
		t.Fatalf("estimate = %f B/s, want clamp at 1000", got.BytesPerSecond)
	}
}

func TestETAFromRemainingBytes(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	est := rate.NewEstimator(1000, 0)
	est.Start(base)
	got := est.Observe(50, mastering.ActionWritingData, base.Add(5*time.Second))
	// 100 B/s with 500 bytes left: five seconds remaining.
	if !got.HasETA || got.ETA != 5*time.Second {
		t.Fatalf("unexpected ETA: %+v", got)
	}
}

func TestNoRateBeforeFirstInterval(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	est := rate.NewEstimator(1000, 0)
	got := est.Observe(0, mastering.ActionWritingData, base)
	if got.BytesPerSecond != 0 || got.HasETA {
		t.Fatalf("expected no rate at transfer start, got %+v", got)
	}
}
