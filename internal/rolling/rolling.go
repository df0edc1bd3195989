// Package rolling provides a fixed-capacity rolling window of float64
// samples backed by a ring buffer. Pushing beyond capacity evicts the
// oldest sample; the backing array is allocated once and never grows.
//
// The window is the building block for all trailing-average feature
// detection in the tracker: amplitude history for emphasis, pitch history
// for question intonation, confidence history for the scroll control law,
// and line-transition durations for predictive pacing.
//
// A Window is not safe for concurrent use; each owner confines its windows
// to a single goroutine.
package rolling

// Window is a fixed-capacity ring of float64 samples.
// The zero value is unusable; create one with New.
type Window struct {
	buf   []float64
	head  int // index of the oldest sample
	count int
}

// New returns a Window holding at most capacity samples.
// Panics if capacity is not positive; window sizes are compile-time
// tuning constants, never user input.
func New(capacity int) *Window {
	if capacity <= 0 {
		panic("rolling: capacity must be positive")
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when the window is full.
func (w *Window) Push(v float64) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = v
		w.count++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the configured capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Mean returns the arithmetic mean of the held samples, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[(w.head+i)%len(w.buf)]
	}
	return sum / float64(w.count)
}

// MeanExcludingLast returns the mean of all samples except the newest,
// or 0 when fewer than two samples are held. Used for "did the newest
// sample rise above its own trailing history" checks.
func (w *Window) MeanExcludingLast() float64 {
	if w.count < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count-1; i++ {
		sum += w.buf[(w.head+i)%len(w.buf)]
	}
	return sum / float64(w.count-1)
}

// Last returns the newest sample, or 0 when empty.
func (w *Window) Last() float64 {
	if w.count == 0 {
		return 0
	}
	return w.buf[(w.head+w.count-1)%len(w.buf)]
}

// Values returns the held samples oldest-first in a freshly allocated
// slice. Intended for end-of-session snapshots and tests, not hot paths.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Clear drops all samples while keeping the backing capacity, so a window
// can be reused across performances without reallocation.
func (w *Window) Clear() {
	w.head = 0
	w.count = 0
}
