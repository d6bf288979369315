package breaker

import "time"

// failureWindow is a fixed-capacity ring buffer of failure timestamps.
// Appending beyond capacity evicts the oldest entry.
type failureWindow struct {
	buf   []time.Time
	head  int // index of the oldest entry
	count int
}

func newFailureWindow(capacity int) failureWindow {
	return failureWindow{buf: make([]time.Time, capacity)}
}

func (w *failureWindow) Append(t time.Time) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = t
		w.count++
		return
	}
	// Full: overwrite the oldest.
	w.buf[w.head] = t
	w.head = (w.head + 1) % len(w.buf)
}

func (w *failureWindow) Len() int {
	return w.count
}

func (w *failureWindow) Clear() {
	w.head = 0
	w.count = 0
}

// Oldest returns the oldest timestamp in the window. The window must be
// non-empty.
func (w *failureWindow) Oldest() time.Time {
	return w.buf[w.head]
}

// Newest returns the most recent timestamp in the window. The window must
// be non-empty.
func (w *failureWindow) Newest() time.Time {
	return w.buf[(w.head+w.count-1)%len(w.buf)]
}
