package engine

import (
	"time"
)

// signalFilter suppresses unreliable sensor input after engine start. Two
// independent filters compose: a warm-up interval during which every sample
// is discarded (sensor initialization transients), and a seed count of early
// GPS fixes that only prime the runtime state because first fixes are
// frequently inaccurate.
type signalFilter struct {
	warmUp    time.Duration
	seedFixes int

	startedAt time.Time
	fixCount  int
}

func newSignalFilter(warmUp time.Duration, seedFixes int, startedAt time.Time) *signalFilter {
	return &signalFilter{
		warmUp:    warmUp,
		seedFixes: seedFixes,
		startedAt: startedAt,
	}
}

// inWarmUp reports whether a sample at now should be discarded outright.
func (f *signalFilter) inWarmUp(now time.Time) bool {
	return now.Sub(f.startedAt) < f.warmUp
}

// seedOnly counts a new fix and reports whether it should only seed state
// without being evaluated against any rule.
func (f *signalFilter) seedOnly() bool {
	f.fixCount++
	return f.fixCount <= f.seedFixes
}
