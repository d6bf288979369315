package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}

func TestFailureWindowAppendAndLen(t *testing.T) {
	w := newFailureWindow(3)
	assert.Equal(t, 0, w.Len())

	w.Append(ts(1))
	w.Append(ts(2))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, ts(1), w.Oldest())
	assert.Equal(t, ts(2), w.Newest())
}

func TestFailureWindowEvictsOldest(t *testing.T) {
	w := newFailureWindow(3)
	for i := 1; i <= 5; i++ {
		w.Append(ts(i))
	}

	assert.Equal(t, 3, w.Len(), "size is bounded by capacity")
	assert.Equal(t, ts(3), w.Oldest())
	assert.Equal(t, ts(5), w.Newest())
}

func TestFailureWindowClear(t *testing.T) {
	w := newFailureWindow(2)
	w.Append(ts(1))
	w.Append(ts(2))
	w.Clear()

	assert.Equal(t, 0, w.Len())

	// Reusable after clearing.
	w.Append(ts(7))
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, ts(7), w.Oldest())
	assert.Equal(t, ts(7), w.Newest())
}
