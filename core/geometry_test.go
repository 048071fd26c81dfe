package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

func TestHaversineMeters_ZeroForSamePoint(t *testing.T) {
	p := model.NewGeoPoint(77.5, 25.5)
	if d := HaversineMeters(p, p); d != 0 {
		t.Fatalf("HaversineMeters(p, p) = %v, want 0", d)
	}
}

func TestHaversineMeters_OneDegreeOfLatitude(t *testing.T) {
	a := model.NewGeoPoint(0, 0)
	b := model.NewGeoPoint(0, 1)

	want := EarthRadiusMeters * math.Pi / 180
	if d := HaversineMeters(a, b); math.Abs(d-want) > 1e-6 {
		t.Fatalf("HaversineMeters = %v, want %v", d, want)
	}
}

func TestHaversineMeters_Symmetric(t *testing.T) {
	a := model.NewGeoPoint(77.1, 25.2)
	b := model.NewGeoPoint(77.4, 25.9)
	if ab, ba := HaversineMeters(a, b), HaversineMeters(b, a); math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestSlopeAngleDegrees(t *testing.T) {
	cases := []struct {
		diff, dist, want float64
	}{
		{0, 100, 0},
		{100, 100, 45},
		{-100, 100, 45},
		{10, 0, 90},
	}
	for _, tc := range cases {
		if got := SlopeAngleDegrees(tc.diff, tc.dist); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("SlopeAngleDegrees(%v, %v) = %v, want %v", tc.diff, tc.dist, got, tc.want)
		}
	}
}
