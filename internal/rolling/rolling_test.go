package rolling_test

import (
	"math"
	"testing"

	"github.com/tightfive/stagetrack/internal/rolling"
)

func TestWindow_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	w := rolling.New(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
	}

	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
	got := w.Values()
	want := []float64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWindow_Mean(t *testing.T) {
	t.Parallel()

	w := rolling.New(4)
	if w.Mean() != 0 {
		t.Errorf("empty Mean() = %v, want 0", w.Mean())
	}

	w.Push(1)
	w.Push(2)
	w.Push(3)
	if got := w.Mean(); math.Abs(got-2) > 1e-12 {
		t.Errorf("Mean() = %v, want 2", got)
	}

	// Overflow: 1 evicted, window holds 2,3,10.
	w.Push(10)
	w.Push(2) // evicts 2 → 3,10,2... capacity 4, so holds 2,3,10,2
	if got := w.Mean(); math.Abs(got-(2+3+10+2)/4.0) > 1e-12 {
		t.Errorf("Mean() after wrap = %v, want %v", got, (2+3+10+2)/4.0)
	}
}

func TestWindow_MeanExcludingLast(t *testing.T) {
	t.Parallel()

	w := rolling.New(5)
	if w.MeanExcludingLast() != 0 {
		t.Errorf("MeanExcludingLast() on empty = %v, want 0", w.MeanExcludingLast())
	}
	w.Push(100)
	if w.MeanExcludingLast() != 0 {
		t.Errorf("MeanExcludingLast() with one sample = %v, want 0", w.MeanExcludingLast())
	}

	w.Push(110)
	w.Push(120) // history: 100, 110; newest: 120
	if got := w.MeanExcludingLast(); math.Abs(got-105) > 1e-12 {
		t.Errorf("MeanExcludingLast() = %v, want 105", got)
	}
	if w.Last() != 120 {
		t.Errorf("Last() = %v, want 120", w.Last())
	}
}

func TestWindow_ClearKeepsCapacity(t *testing.T) {
	t.Parallel()

	w := rolling.New(2)
	w.Push(7)
	w.Push(8)
	w.Clear()

	if w.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", w.Len())
	}
	if w.Cap() != 2 {
		t.Fatalf("Cap() after Clear = %d, want 2", w.Cap())
	}

	w.Push(1)
	if w.Last() != 1 {
		t.Errorf("Last() after Clear+Push = %v, want 1", w.Last())
	}
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("New(0) did not panic")
		}
	}()
	rolling.New(0)
}
