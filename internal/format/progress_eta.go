package format

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// etaSmoothing weights the newest rate sample in the moving average.
const etaSmoothing = 0.3

// ProgressWithETA estimates the remaining time of a calculation from the
// progress percentages (0-100) it reports. The rate is an exponential moving
// average so a slow queue phase does not dominate once computing starts.
type ProgressWithETA struct {
	mu           sync.Mutex
	now          func() time.Time
	startTime    time.Time
	lastTime     time.Time
	lastProgress float64
	progressRate float64 // percentage points per second
}

// NewProgressWithETA starts an estimator at the current time.
func NewProgressWithETA() *ProgressWithETA {
	return newProgressWithETA(time.Now)
}

func newProgressWithETA(now func() time.Time) *ProgressWithETA {
	t := now()
	return &ProgressWithETA{now: now, startTime: t, lastTime: t}
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Update records progress and returns the clamped value with the new
// estimate. Progress going backwards (a restarted run) resets the estimator.
func (p *ProgressWithETA) Update(progress float64) (float64, time.Duration) {
	progress = clampPercent(progress)
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if progress < p.lastProgress {
		p.startTime, p.lastTime, p.lastProgress, p.progressRate = now, now, progress, 0
		return progress, 0
	}
	if dt := now.Sub(p.lastTime).Seconds(); dt > 0 && progress > p.lastProgress {
		sample := (progress - p.lastProgress) / dt
		if p.progressRate == 0 {
			p.progressRate = sample
		} else {
			p.progressRate = etaSmoothing*sample + (1-etaSmoothing)*p.progressRate
		}
		p.lastTime = now
		p.lastProgress = progress
	}
	return progress, p.etaLocked()
}

// ETA returns the current estimate, or 0 while no rate is known.
func (p *ProgressWithETA) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.etaLocked()
}

func (p *ProgressWithETA) etaLocked() time.Duration {
	if p.progressRate <= 0 || p.lastProgress >= 100 {
		return 0
	}
	return time.Duration((100 - p.lastProgress) / p.progressRate * float64(time.Second))
}

// Elapsed returns the time since the estimator started or was reset.
func (p *ProgressWithETA) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.startTime)
}

// ProgressBar renders progress (0-100) as a bar of width cells.
func ProgressBar(progress float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(clampPercent(progress) / 100 * float64(width))
	var b strings.Builder
	b.Grow(width * 3)
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteRune('█')
		} else {
			b.WriteRune('░')
		}
	}
	return b.String()
}

// FormatProgressBarWithETA renders "[bar] 42.00% ETA: 1m30s".
func FormatProgressBarWithETA(progress float64, eta time.Duration, width int) string {
	return fmt.Sprintf("[%s] %6.2f%% ETA: %s", ProgressBar(progress, width), clampPercent(progress), FormatETA(eta))
}
