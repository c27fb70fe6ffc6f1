// Package tracker accounts wall-clock focus time to questions. Time is
// charged to the question that was visible during the elapsed interval, not
// the question being switched to, and the charge happens at every boundary:
// palette jumps, prev/next, tab-hide, and the pre-submit flush.
package tracker

import (
	"math"
	"time"
)

// Tracker accumulates elapsed seconds per question id. Accumulation keeps
// the unrounded fractional value; rounding across many short visits to the
// same question would otherwise compound. Whole seconds appear only in
// Rounded output for the submission payload.
type Tracker struct {
	spent  map[string]float64
	anchor time.Time
}

// New creates a Tracker with anchor as the first interval's starting point.
// Existing per-question totals (rehydrated from the session store after a
// reload) seed the accumulator.
func New(anchor time.Time, existing map[string]float64) *Tracker {
	spent := make(map[string]float64, len(existing))
	for k, v := range existing {
		spent[k] = v
	}
	return &Tracker{spent: spent, anchor: anchor}
}

// RecordSwitch charges the interval since the last boundary to fromID and
// resets the anchor to at. Negative deltas (clock steps) charge nothing;
// totals only ever grow. Returns the accumulated map for persistence.
func (t *Tracker) RecordSwitch(fromID string, at time.Time) map[string]float64 {
	delta := at.Sub(t.anchor).Seconds()
	if delta > 0 && fromID != "" {
		t.spent[fromID] += delta
	}
	t.anchor = at
	return t.Snapshot()
}

// ResetAnchor moves the interval start without charging anyone. Used when
// the clock was frozen (offline) and the frozen span must not be billed.
func (t *Tracker) ResetAnchor(at time.Time) {
	t.anchor = at
}

// Snapshot returns a copy of the fractional per-question totals.
func (t *Tracker) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.spent))
	for k, v := range t.spent {
		out[k] = v
	}
	return out
}

// Seconds returns the accumulated fractional total for one question.
func (t *Tracker) Seconds(questionID string) float64 {
	return t.spent[questionID]
}

// Rounded returns whole-second totals for the submission payload.
func (t *Tracker) Rounded() map[string]int {
	out := make(map[string]int, len(t.spent))
	for k, v := range t.spent {
		out[k] = int(math.Round(v))
	}
	return out
}
