// Package progress implements the throttled completion-fraction reporting
// shared by archiving, extraction and downloads.
package progress

// Func receives a completion fraction in [0, 1]. Implementations must not
// block; callbacks are invoked from whichever goroutine performs the I/O.
type Func func(fraction float64)

// step is the minimum advance between emissions, so sinks are not flooded.
const step = 0.01

// Tracker emits throttled, monotonically non-decreasing fractions to a Func.
// A zero total is reported as a single immediate emission of 1.0.
type Tracker struct {
	fn    Func
	total int64
	last  float64
}

// NewTracker creates a Tracker over total work items. fn may be nil, in
// which case all reporting is skipped.
func NewTracker(total int64, fn Func) *Tracker {
	t := &Tracker{fn: fn, total: total}
	if fn != nil && total == 0 {
		fn(1.0)
	}
	return t
}

// Advance reports that done items out of the total have completed. Emissions
// below the throttle step are suppressed; the exact 1.0 emission is left to
// Finish.
func (t *Tracker) Advance(done int64) {
	if t.fn == nil || t.total == 0 {
		return
	}
	frac := float64(done) / float64(t.total)
	if frac < 1.0 && frac-t.last >= step {
		t.fn(frac)
		t.last = frac
	}
}

// Finish emits the guaranteed final 1.0. Call only on success.
func (t *Tracker) Finish() {
	if t.fn == nil || t.total == 0 {
		return
	}
	t.fn(1.0)
	t.last = 1.0
}
