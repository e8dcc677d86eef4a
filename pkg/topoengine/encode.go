package topoengine

import (
	"image/color"
	"math"
)

// Visual encoding for trunk lines: traversal count maps to a color ramp and
// a stroke width on fixed scales. Pure helpers for map overlay consumers.

var (
	colorCool = color.RGBA{255, 165, 0, 255} // orange, least-traversed
	colorHot  = color.RGBA{255, 0, 0, 255}   // red, busiest
)

func intensity(count, maxCount int) float64 {
	if maxCount <= 0 {
		return 0
	}
	v := float64(count) / float64(maxCount)
	if v > 1 {
		return 1
	}
	return v
}

// ColorForCount interpolates between orange and red by the count's share of
// the busiest edge.
func ColorForCount(count, maxCount int) color.RGBA {
	t := intensity(count, maxCount)
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(colorCool.R, colorHot.R),
		G: lerp(colorCool.G, colorHot.G),
		B: lerp(colorCool.B, colorHot.B),
		A: 255,
	}
}

// WidthForCount maps the same intensity linearly onto stroke widths 2 to 8.
func WidthForCount(count, maxCount int) float64 {
	return 2.0 + intensity(count, maxCount)*6.0
}
