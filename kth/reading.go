package kth

import (
	"time"
)

// A Reading is a single decoded register sample.
type Reading struct {
	Time  time.Time `json:"timestamp"`
	ID    string    `json:"id"`
	Unit  string    `json:"unit"`
	Value float64   `json:"value"`
}

// DefaultWindowSize is how many readings a Window holds unless told otherwise.
const DefaultWindowSize = 500

// A Window is a bounded buffer of readings ordered oldest first. Appending a
// batch that pushes it past its maximum size evicts that many of the oldest
// readings, so the window drains at the same granularity it fills.
//
// A Window is not safe for concurrent use; callers serialize access.
type Window struct {
	max      int
	readings []Reading
}

// NewWindow returns an empty window holding at most max readings. A
// non-positive max falls back to DefaultWindowSize.
func NewWindow(max int) *Window {
	if max <= 0 {
		max = DefaultWindowSize
	}
	return &Window{max: max}
}

// Append adds a batch of readings. If the window has grown past its maximum,
// len(batch) of the oldest readings are evicted.
func (w *Window) Append(batch []Reading) {
	w.readings = append(w.readings, batch...)
	if len(w.readings) <= w.max {
		return
	}
	evict := len(batch)
	if evict > len(w.readings) {
		evict = len(w.readings)
	}
	remaining := len(w.readings) - evict
	copy(w.readings, w.readings[evict:])
	w.readings = w.readings[:remaining]
}

// Len returns how many readings the window currently holds.
func (w *Window) Len() int {
	return len(w.readings)
}

// Readings returns a copy of the window's contents, oldest first.
func (w *Window) Readings() []Reading {
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}
