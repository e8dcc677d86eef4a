package topoengine

import (
	"image/color"
	"testing"
)

func TestColorForCount(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		maxCount int
		want     color.RGBA
	}{
		{"least traversed", 0, 10, color.RGBA{255, 165, 0, 255}},
		{"busiest", 10, 10, color.RGBA{255, 0, 0, 255}},
		{"halfway", 5, 10, color.RGBA{255, 83, 0, 255}},
		{"no edges", 3, 0, color.RGBA{255, 165, 0, 255}},
		{"over max clamps", 20, 10, color.RGBA{255, 0, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ColorForCount(tt.count, tt.maxCount); got != tt.want {
				t.Errorf("ColorForCount(%d, %d) = %v, want %v", tt.count, tt.maxCount, got, tt.want)
			}
		})
	}
}

func TestColorForCountStaysOnRamp(t *testing.T) {
	// Red and blue channels are fixed; only green moves.
	for count := 0; count <= 50; count++ {
		c := ColorForCount(count, 50)
		if c.R != 255 || c.B != 0 || c.A != 255 {
			t.Fatalf("count %d left the orange-red ramp: %v", count, c)
		}
	}
}

func TestWidthForCount(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		maxCount int
		want     float64
	}{
		{"least traversed", 0, 10, 2},
		{"busiest", 10, 10, 8},
		{"halfway", 5, 10, 5},
		{"no edges", 3, 0, 2},
		{"over max clamps", 20, 10, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WidthForCount(tt.count, tt.maxCount); got != tt.want {
				t.Errorf("WidthForCount(%d, %d) = %f, want %f", tt.count, tt.maxCount, got, tt.want)
			}
		})
	}
}

func TestWidthForCountMonotonic(t *testing.T) {
	prev := 0.0
	for count := 0; count <= 100; count++ {
		w := WidthForCount(count, 100)
		if w < prev {
			t.Fatalf("width shrank from %f to %f at count %d", prev, w, count)
		}
		if w < 2 || w > 8 {
			t.Fatalf("width %f at count %d outside [2, 8]", w, count)
		}
		prev = w
	}
}
