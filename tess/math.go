package tess

import (
	"math"

	"golang.org/x/exp/constraints"
)

const (
	// epsilon snaps near-zero radii and widths to zero.
	epsilon = 1e-3
	// clipEpsilon is the tolerance window around [0, 1] accepted for
	// barycentric coordinates of clipped points.
	clipEpsilon = 1e-5
	// flattenTolerance is the maximum distance between a curve and its
	// flattened polyline, in pixels.
	flattenTolerance = 0.25
	// maxArcSegments bounds the segments of one quarter ellipse.
	maxArcSegments = 32
)

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// snap returns 0 for values within epsilon of zero.
func snap(v float32) float32 {
	if abs32(v) < epsilon {
		return 0
	}
	return v
}

func nearlyEqual(a, b float32) bool { return abs32(a-b) < epsilon }

type vec2 struct{ x, y float32 }

func (a vec2) sub(b vec2) vec2 {
	return vec2{a.x - b.x, a.y - b.y}
}

func (a vec2) add(b vec2) vec2 {
	return vec2{a.x + b.x, a.y + b.y}
}

func (a vec2) scale(s float32) vec2 {
	return vec2{a.x * s, a.y * s}
}

func lerp2(a, b vec2, t float32) vec2 {
	return vec2{a.x + (b.x-a.x)*t, a.y + (b.y-a.y)*t}
}

// cross returns (b-a)×(c-a).
func cross(a, b, c vec2) float32 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

// arcSegments returns the number of segments that keep a quarter ellipse
// with the given larger radius within flattenTolerance.
func arcSegments(r float32) int {
	if r <= flattenTolerance {
		return 1
	}
	step := 2 * math.Acos(1-flattenTolerance/float64(r))
	return clamp(int(math.Ceil((math.Pi/2)/step)), 1, maxArcSegments)
}
