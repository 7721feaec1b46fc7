package rolling

import (
	"testing"

	"github.com/Resinat/Dashgate/internal/model"
)

func pointsOf(values ...float64) []model.MeasurementPoint {
	out := make([]model.MeasurementPoint, len(values))
	for i, v := range values {
		out[i] = model.MeasurementPoint{SensorID: "01", Value: v}
	}
	return out
}

func TestComputeStats_Empty(t *testing.T) {
	for _, in := range [][]model.MeasurementPoint{nil, {}} {
		s := ComputeStats(in)
		if s.Count != 0 {
			t.Fatalf("count: got %d, want 0", s.Count)
		}
		if s.Mean != nil || s.Min != nil || s.Max != nil || s.StdDev != nil {
			t.Fatalf("expected nil numeric fields, got %+v", s)
		}
		if !s.Empty() {
			t.Fatal("Empty() = false for zero-count snapshot")
		}
	}
}

func TestComputeStats_KnownValues(t *testing.T) {
	s := ComputeStats(pointsOf(0.30, 0.32, 0.34))

	if s.Count != 3 {
		t.Fatalf("count: got %d, want 3", s.Count)
	}
	check := func(name string, got *float64, want float64) {
		t.Helper()
		if got == nil {
			t.Fatalf("%s is nil", name)
		}
		if *got != want {
			t.Fatalf("%s: got %v, want %v", name, *got, want)
		}
	}
	check("mean", s.Mean, 0.32)
	check("min", s.Min, 0.30)
	check("max", s.Max, 0.34)
	check("std_dev", s.StdDev, 0.016)
}

func TestComputeStats_SinglePointHasZeroDeviation(t *testing.T) {
	s := ComputeStats(pointsOf(0.291))
	if *s.Mean != 0.291 || *s.Min != 0.291 || *s.Max != 0.291 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if *s.StdDev != 0 {
		t.Fatalf("std_dev: got %v, want 0", *s.StdDev)
	}
}

func TestComputeStats_OrderIndependent(t *testing.T) {
	a := ComputeStats(pointsOf(0.281, 0.355, 0.302, 0.347, 0.319))
	b := ComputeStats(pointsOf(0.347, 0.319, 0.281, 0.302, 0.355))

	pairs := []struct {
		name string
		x, y *float64
	}{
		{"mean", a.Mean, b.Mean},
		{"min", a.Min, b.Min},
		{"max", a.Max, b.Max},
		{"std_dev", a.StdDev, b.StdDev},
	}
	for _, p := range pairs {
		if *p.x != *p.y {
			t.Fatalf("%s differs by order: %v vs %v", p.name, *p.x, *p.y)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.32000000000000006, 0.32},
		{0.016329931618554522, 0.016},
		{0.2995, 0.3},
		{0.1234, 0.123},
		{0, 0},
		// Ties round away from zero on the shortest decimal, not on the
		// binary value: 0.3005 is stored just below the tie.
		{0.3005, 0.301},
		{-0.3005, -0.301},
		{0.0005, 0.001},
		{2.5e-4, 0},
	}
	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
