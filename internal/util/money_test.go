package util

import "testing"

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.2345, 1.23},
		{0.125, 0.13},
		{-0.125, -0.13},
		{0, 0},
		{99.999, 100},
		{42.675001, 42.68},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(3.14159, 4); got != 3.1416 {
		t.Errorf("RoundTo(3.14159, 4) = %v, want 3.1416", got)
	}
	if got := RoundTo(1234.5, 0); got != 1235 {
		t.Errorf("RoundTo(1234.5, 0) = %v, want 1235", got)
	}
}
