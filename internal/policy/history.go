package policy

import "time"

// historyLimit caps the timestamps kept per class so a busy class cannot grow
// the window without bound.
const historyLimit = 32

// History is a bounded sliding window of recent trigger timestamps per class.
type History struct {
	window   time.Duration
	triggers map[string][]time.Time
}

// NewHistory creates an empty history. Entries older than window are dropped
// as new ones are recorded.
func NewHistory(window time.Duration) *History {
	return &History{
		window:   window,
		triggers: make(map[string][]time.Time),
	}
}

// LastTrigger returns the most recent trigger time for the class, if any.
func (h *History) LastTrigger(class string) (time.Time, bool) {
	ts := h.triggers[class]
	if len(ts) == 0 {
		return time.Time{}, false
	}
	return ts[len(ts)-1], true
}

// Record appends a trigger timestamp for the class and trims entries that fell
// out of the window.
func (h *History) Record(class string, t time.Time) {
	ts := append(h.triggers[class], t)

	cutoff := t.Add(-h.window)
	start := 0
	for start < len(ts)-1 && ts[start].Before(cutoff) {
		start++
	}
	ts = ts[start:]

	if len(ts) > historyLimit {
		ts = ts[len(ts)-historyLimit:]
	}
	h.triggers[class] = ts
}

// Seed records a trigger without trimming, letting tests construct a known
// starting state.
func (h *History) Seed(class string, t time.Time) {
	h.triggers[class] = append(h.triggers[class], t)
}
