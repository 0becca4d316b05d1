// Package rate turns sparse progress observations into a smoothed
// throughput figure and an ETA.
package rate

import (
	"time"

	"scorch/internal/mastering"
)

// windowSize bounds the number of instantaneous samples kept. Eight
// samples smooth drive buffer bursts without hiding real speed changes.
const windowSize = 8

// Estimate is a published speed/ETA pair. A zero BytesPerSecond with
// HasETA false means "no rate available".
type Estimate struct {
	BytesPerSecond float64
	ETA            time.Duration
	HasETA         bool
}

// Estimator derives write speed from (percent, phase) observations. The
// total byte count is fixed at construction and never recomputed
// mid-transfer.
type Estimator struct {
	totalBytes int64
	maxBps     float64

	started   bool
	startTime time.Time
	lastTime  time.Time
	lastBytes float64
	window    []float64
}

// NewEstimator builds an estimator for a transfer of totalBytes.
// maxSpeedKBs caps the published rate at the configured write speed;
// zero disables the clamp.
func NewEstimator(totalBytes int64, maxSpeedKBs int64) *Estimator {
	e := &Estimator{totalBytes: totalBytes}
	if maxSpeedKBs > 0 {
		e.maxBps = float64(maxSpeedKBs) * 1000
	}
	return e
}

// Start marks the beginning of the transfer so the first observation can
// publish a cumulative average. Calling it again restarts the estimator.
func (e *Estimator) Start(now time.Time) {
	e.reset()
	e.started = true
	e.startTime = now
	e.lastTime = now
	e.lastBytes = 0
}

// Observe folds one backend progress report into the estimate. Percent is
// 0..100 of the fixed total. Non-transfer phases clear the sample window
// and publish no rate, so a finalizing lull never shows a bogus speed.
func (e *Estimator) Observe(percent float64, action mastering.Action, now time.Time) Estimate {
	if !action.IsTransfer() {
		e.reset()
		return Estimate{}
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	bytes := percent / 100 * float64(e.totalBytes)

	if !e.started {
		e.started = true
		e.startTime = now
		e.lastTime = now
		e.lastBytes = bytes
		return e.publish(bytes, now)
	}

	// Only forward progress produces a sample; a report at an unchanged
	// percent republishes the current mean instead of diluting it with
	// zeros, and the next advance is measured over the full interval.
	if bytes > e.lastBytes {
		elapsed := now.Sub(e.lastTime).Seconds()
		if elapsed > 0 {
			e.window = append(e.window, (bytes-e.lastBytes)/elapsed)
			if len(e.window) > windowSize {
				e.window = e.window[1:]
			}
			e.lastTime = now
			e.lastBytes = bytes
		}
	}
	return e.publish(bytes, now)
}

func (e *Estimator) publish(bytes float64, now time.Time) Estimate {
	var speed float64
	if len(e.window) > 0 {
		var sum float64
		for _, s := range e.window {
			sum += s
		}
		speed = sum / float64(len(e.window))
	} else {
		// No deltas yet: fall back to the cumulative average since the
		// transfer began.
		elapsed := now.Sub(e.startTime).Seconds()
		if elapsed > 0 {
			speed = bytes / elapsed
		}
	}
	if e.maxBps > 0 && speed > e.maxBps {
		speed = e.maxBps
	}
	if speed <= 0 {
		return Estimate{}
	}

	remaining := float64(e.totalBytes) - bytes
	if remaining < 0 {
		remaining = 0
	}
	return Estimate{
		BytesPerSecond: speed,
		ETA:            time.Duration(remaining / speed * float64(time.Second)),
		HasETA:         true,
	}
}

func (e *Estimator) reset() {
	e.started = false
	e.window = e.window[:0]
	e.lastBytes = 0
}
