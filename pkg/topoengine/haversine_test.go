package topoengine

import (
	"math"
	"testing"
)

func TestDistanceMiles(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		tolerance              float64
	}{
		{"identical points", 40.0, -74.0, 40.0, -74.0, 0, 0},
		{"one degree of latitude at the equator", 0, 0, 1, 0, 69.1, 0.1},
		{"one degree of longitude at the equator", 0, 0, 0, 1, 69.1, 0.1},
		{"new york to los angeles", 40.7128, -74.0060, 34.0522, -118.2437, 2448, 5},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 213.5, 2},
		{"antipodal-ish span", 0, 0, 0, 180, 3959 * math.Pi, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMiles(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMiles(%v, %v, %v, %v) = %f, want %f +/- %f",
					tt.lat1, tt.lng1, tt.lat2, tt.lng2, got, tt.want, tt.tolerance)
			}
			if got < 0 || math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("distance must be finite and non-negative, got %f", got)
			}
		})
	}
}

func TestDistanceMilesSymmetric(t *testing.T) {
	d1 := DistanceMiles(37.7749, -122.4194, 47.6062, -122.3321)
	d2 := DistanceMiles(47.6062, -122.3321, 37.7749, -122.4194)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance is direction-dependent: %f vs %f", d1, d2)
	}
}
