package common

import (
	"math"
	"testing"
)

func TestSampleBufferEvictsOldestFirst(t *testing.T) {
	sb := NewSampleBuffer(5)

	input := make([]float64, 12)
	for i := range input {
		input[i] = float64(i)
	}
	// Feed in uneven chunks so both the wrap path and the oversize path are hit
	sb.Write(input[:3])
	sb.Write(input[3:10])
	sb.Write(input[10:])

	if sb.Len() != 5 {
		t.Fatalf("expected len 5, got %d", sb.Len())
	}
	got := sb.Snapshot()
	want := []float64{7, 8, 9, 10, 11}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %v, want %v (full %v)", i, got[i], want[i], got)
		}
	}
	if sb.Written() != 12 {
		t.Fatalf("expected 12 samples written, got %d", sb.Written())
	}
}

func TestSampleBufferSingleOversizedWrite(t *testing.T) {
	sb := NewSampleBuffer(4)
	sb.Write([]float64{1, 2, 3, 4, 5, 6, 7})

	got := sb.Snapshot()
	want := []float64{4, 5, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
}

func TestSampleBufferTail(t *testing.T) {
	sb := NewSampleBuffer(6)
	sb.Write([]float64{1, 2, 3, 4})
	sb.Write([]float64{5, 6, 7, 8}) // wraps

	dst := make([]float64, 3)
	if n := sb.Tail(dst, 3); n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	want := []float64{6, 7, 8}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("tail = %v, want %v", dst, want)
		}
	}

	// Asking for more than is buffered is truncated
	big := make([]float64, 10)
	if n := sb.Tail(big, 10); n != 6 {
		t.Fatalf("expected 6 samples, got %d", n)
	}
	if big[0] != 3 || big[5] != 8 {
		t.Fatalf("unexpected wrapped tail %v", big[:6])
	}

	// Tail does not consume
	if sb.Len() != 6 {
		t.Fatalf("tail consumed samples, len=%d", sb.Len())
	}
}

func TestSampleBufferWriteCountsEvictedSamples(t *testing.T) {
	sb := NewSampleBuffer(3)
	if n := sb.Write([]float64{1, 2, 3, 4, 5}); n != 5 {
		t.Fatalf("Write returned %d, want 5", n)
	}
	if n := sb.Write([]float64{6}); n != 1 {
		t.Fatalf("Write returned %d, want 1", n)
	}
	if sb.Written() != 6 {
		t.Fatalf("expected 6 samples written, got %d", sb.Written())
	}
	if sb.Len() != 3 || sb.Cap() != 3 {
		t.Fatalf("len=%d cap=%d, want 3/3", sb.Len(), sb.Cap())
	}
}

func TestMathHelpers(t *testing.T) {
	if got := RMS([]float64{1, -1, 1, -1}); got != 1 {
		t.Fatalf("RMS = %v, want 1", got)
	}
	if got := SumSquares([]float64{1, 2, 3}); got != 14 {
		t.Fatalf("SumSquares = %v, want 14", got)
	}
	if got := ArgMax([]float64{0, 2, 2, 1}); got != 1 {
		t.Fatalf("ArgMax tie should pick lowest index, got %d", got)
	}
	if got := ArgMax(nil); got != -1 {
		t.Fatalf("ArgMax(nil) = %d, want -1", got)
	}
	d := Diff([]float64{1, 3, 6})
	if len(d) != 2 || d[0] != 2 || d[1] != 3 {
		t.Fatalf("Diff = %v", d)
	}
	if AllFinite([]float64{0, math.NaN()}) {
		t.Fatal("expected NaN to be rejected")
	}
	if Clamp(2, -1, 1) != 1 || Clamp(-2, -1, 1) != -1 {
		t.Fatal("Clamp out of range")
	}
}
