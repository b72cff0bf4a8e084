package common

import (
	"math"
	"testing"
)

func TestDownmix(t *testing.T) {
	cases := []struct {
		name     string
		in       []float64
		channels int
		want     []float64
	}{
		{"stereo drops partial frame", []float64{1, 3, 2, 4, 9}, 2, []float64{2, 3}},
		{"stereo fractions", []float64{0.2, 0.4, -1, 1}, 2, []float64{0.3, 0}},
		{"three channels", []float64{3, 0, 0, 1, 1, 1}, 3, []float64{1, 1}},
		{"mono", []float64{0.1, 0.2}, 1, []float64{0.1, 0.2}},
	}
	for _, tc := range cases {
		got := Downmix(tc.in, tc.channels)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: len = %d, want %d", tc.name, len(got), len(tc.want))
		}
		for i := range tc.want {
			if math.Abs(got[i]-tc.want[i]) > 1e-12 {
				t.Fatalf("%s: Downmix[%d] = %v, want %v", tc.name, i, got[i], tc.want[i])
			}
		}
	}

	mono := []float64{0.1, 0.2}
	copied := Downmix(mono, 1)
	copied[0] = 7
	if mono[0] != 0.1 {
		t.Fatal("mono downmix must not alias its input")
	}
}
