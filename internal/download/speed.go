package download

import "time"

// defaultEmitInterval throttles progress events: at most one per
// interval unless overall progress moved by a full percent.
const defaultEmitInterval = 500 * time.Millisecond

// progressGate decides when a progress event may be published, so that
// chunk-rate updates do not flood observers.
type progressGate struct {
	interval    time.Duration
	lastEmit    time.Time
	lastPercent int
}

func newProgressGate(interval time.Duration) *progressGate {
	if interval <= 0 {
		interval = defaultEmitInterval
	}
	return &progressGate{interval: interval, lastPercent: -1}
}

// allow reports whether an event at the given overall percent should be
// published now, and records the emission if so.
func (g *progressGate) allow(now time.Time, percent int) bool {
	if now.Sub(g.lastEmit) < g.interval && abs(percent-g.lastPercent) < 1 {
		return false
	}
	g.lastEmit = now
	g.lastPercent = percent
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// instantSpeed computes bytes per second over the elapsed wall time of
// the file in flight. Returns 0 until any time has passed.
func instantSpeed(downloaded int64, since time.Time) float64 {
	elapsed := time.Since(since).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(downloaded) / elapsed
}

// overallPercent folds per-file progress into overall job progress.
func overallPercent(fileIndex, totalFiles int, downloaded, total int64) int {
	if totalFiles == 0 {
		return 0
	}
	fileFraction := 0.0
	if total > 0 {
		fileFraction = float64(downloaded) / float64(total)
	}
	p := int((float64(fileIndex) + fileFraction) / float64(totalFiles) * 100)
	if p > 100 {
		p = 100
	}
	return p
}
