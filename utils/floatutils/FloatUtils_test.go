package floatutils

import (
	"math"
	"testing"
)

func TestClip(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.0, -1.0, 1.0, 1.0},
		{-3.0, -1.0, 1.0, -1.0},
		{0.5, -1.0, 1.0, 0.5},
		{-1.0, -1.0, 1.0, -1.0},
		{1.0, -1.0, 1.0, 1.0},
	}

	for _, test := range tests {
		got := Clip(test.value, test.min, test.max)
		if got != test.expected {
			t.Errorf("clip(%v, %v, %v) = %v, expected %v", test.value,
				test.min, test.max, got, test.expected)
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean(); got != 0.0 {
		t.Errorf("mean of no values should be 0, got %v", got)
	}

	if got := Mean(1.0, 2.0, 3.0); got != 2.0 {
		t.Errorf("mean(1, 2, 3) = %v, expected 2", got)
	}
}

func TestFinite(t *testing.T) {
	if !Finite(0.0, -1.5, 1e300) {
		t.Error("finite values reported as non-finite")
	}

	if Finite(1.0, math.NaN()) {
		t.Error("NaN reported as finite")
	}

	if Finite(math.Inf(1)) {
		t.Error("+Inf reported as finite")
	}
}
