package units

import (
	"math"
	"testing"
)

func TestFromMPS(t *testing.T) {
	cases := []struct {
		speedMPS float64
		units    string
		want     float64
	}{
		{10, KMH, 36},
		{10, MPH, 22.369362920544},
		{10, MPS, 10},
		{10, "furlongs", 10}, // unknown units pass through
	}

	for _, c := range cases {
		got := FromMPS(c.speedMPS, c.units)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("FromMPS(%v, %q) = %v, want %v", c.speedMPS, c.units, got, c.want)
		}
	}
}

func TestKMHToMPSRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 2, 36, 120.5} {
		got := FromMPS(KMHToMPS(v), KMH)
		if math.Abs(got-v) > 1e-9 {
			t.Errorf("round trip of %v km/h gave %v", v, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(KMH) || !IsValid(MPS) || !IsValid(MPH) {
		t.Error("expected all unit constants to be valid")
	}
	if IsValid("knots") {
		t.Error("expected unknown unit to be invalid")
	}
}
