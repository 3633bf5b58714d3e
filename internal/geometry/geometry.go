// Package geometry provides the planar primitives the inventory model is
// built on: vectors, axis-aligned rectangles, and the overlap, stacking, and
// slicing operations used by the scan compiler, the batch planner, and the
// response processors.
//
// All operations are pure and deterministic. Coordinates are float64 meters
// in a fixed world frame; the y-axis is vertical. Rectangles describe shelf
// faces with y pointing up.
package geometry

import (
	"errors"
	"math"
)

const (
	// StackVerticalMargin is how far a rectangle's bottom edge may sit above
	// or below another's top edge and still count as resting on it.
	StackVerticalMargin = 0.055

	// StackHorizontalMargin shrinks both horizontal spans before the overlap
	// test for stacking, so grazing contact does not count.
	StackHorizontalMargin = 0.1

	// MinSliceDimension drops slice strips whose width or height does not
	// exceed this size.
	MinSliceDimension = 0.1
)

// ErrNoOverlap is returned by operations that require two rectangles to
// share area.
var ErrNoOverlap = errors.New("rectangles do not overlap")

// Vector2 is a point on the shelf plane.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector3 is a point or extent in the world frame. Z defaults to zero.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Component returns the named axis component. ok is false for an unknown
// axis name.
func (v Vector3) Component(axis string) (float64, bool) {
	switch axis {
	case "x":
		return v.X, true
	case "y":
		return v.Y, true
	case "z":
		return v.Z, true
	default:
		return 0, false
	}
}

// Sub returns v − o component-wise.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Vector3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Rectangle is an axis-aligned rectangle on the shelf plane.
type Rectangle struct {
	BottomLeft Vector2 `json:"bottom_left"`
	TopRight   Vector2 `json:"top_right"`
}

// Width returns the horizontal extent.
func (r Rectangle) Width() float64 {
	return r.TopRight.X - r.BottomLeft.X
}

// Height returns the vertical extent.
func (r Rectangle) Height() float64 {
	return r.TopRight.Y - r.BottomLeft.Y
}

// Area returns width times height.
func (r Rectangle) Area() float64 {
	return r.Width() * r.Height()
}

// BottomCenter returns the middle of the bottom edge, the reference point an
// item's absolute position is anchored to.
func (r Rectangle) BottomCenter() Vector2 {
	return Vector2{X: (r.BottomLeft.X + r.TopRight.X) / 2, Y: r.BottomLeft.Y}
}

// Center returns the midpoint of the rectangle.
func (r Rectangle) Center() Vector2 {
	return Vector2{
		X: (r.BottomLeft.X + r.TopRight.X) / 2,
		Y: (r.BottomLeft.Y + r.TopRight.Y) / 2,
	}
}

// ContainsPoint reports whether (x, y) lies inside the rectangle, edges
// inclusive.
func (r Rectangle) ContainsPoint(x, y float64) bool {
	return r.BottomLeft.X <= x && x <= r.TopRight.X &&
		r.BottomLeft.Y <= y && y <= r.TopRight.Y
}

// OverlapArea returns the shared area of two rectangles, zero when disjoint.
func OverlapArea(a, b Rectangle) float64 {
	xOverlap := math.Max(0, math.Min(a.TopRight.X, b.TopRight.X)-math.Max(a.BottomLeft.X, b.BottomLeft.X))
	yOverlap := math.Max(0, math.Min(a.TopRight.Y, b.TopRight.Y)-math.Max(a.BottomLeft.Y, b.BottomLeft.Y))
	return xOverlap * yOverlap
}

// IsStackedOn reports whether top rests on bottom: the horizontal spans
// overlap after shrinking bottom's span by StackHorizontalMargin on each
// side, and top's bottom edge sits within StackVerticalMargin of bottom's
// top edge.
func IsStackedOn(top, bottom Rectangle) bool {
	horizontal := top.TopRight.X > bottom.BottomLeft.X+StackHorizontalMargin &&
		top.BottomLeft.X < bottom.TopRight.X-StackHorizontalMargin
	vertical := math.Abs(top.BottomLeft.Y-bottom.TopRight.Y) < StackVerticalMargin
	return horizontal && vertical
}

// CanContain reports whether other fits strictly inside r by both
// dimensions.
func CanContain(r, other Rectangle) bool {
	return r.Width() > other.Width() && r.Height() > other.Height()
}

// SliceRectangle cuts base around cutter and returns up to three remainder
// strips: the full-height strip left of the overlap, the strip above the
// overlap, and the full-height strip right of the overlap. Strips whose
// width or height does not exceed MinSliceDimension are dropped. Returns
// ErrNoOverlap when the rectangles share no area.
func SliceRectangle(base, cutter Rectangle) ([]Rectangle, error) {
	if OverlapArea(base, cutter) <= 0 {
		return nil, ErrNoOverlap
	}

	overlapLeft := math.Max(base.BottomLeft.X, cutter.BottomLeft.X)
	overlapRight := math.Min(base.TopRight.X, cutter.TopRight.X)
	overlapTop := math.Min(base.TopRight.Y, cutter.TopRight.Y)

	strips := []Rectangle{
		{
			BottomLeft: base.BottomLeft,
			TopRight:   Vector2{X: overlapLeft, Y: base.TopRight.Y},
		},
		{
			BottomLeft: Vector2{X: overlapLeft, Y: overlapTop},
			TopRight:   Vector2{X: overlapRight, Y: base.TopRight.Y},
		},
		{
			BottomLeft: Vector2{X: overlapRight, Y: base.BottomLeft.Y},
			TopRight:   base.TopRight,
		},
	}

	var kept []Rectangle
	for _, s := range strips {
		if s.Width() > MinSliceDimension && s.Height() > MinSliceDimension {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// Intersection returns the overlapping rectangle of a and b. Returns
// ErrNoOverlap when the intersection is degenerate.
func Intersection(a, b Rectangle) (Rectangle, error) {
	x1 := math.Max(a.BottomLeft.X, b.BottomLeft.X)
	y1 := math.Max(a.BottomLeft.Y, b.BottomLeft.Y)
	x2 := math.Min(a.TopRight.X, b.TopRight.X)
	y2 := math.Min(a.TopRight.Y, b.TopRight.Y)
	if x1 >= x2 || y1 >= y2 {
		return Rectangle{}, ErrNoOverlap
	}
	return Rectangle{
		BottomLeft: Vector2{X: x1, Y: y1},
		TopRight:   Vector2{X: x2, Y: y2},
	}, nil
}

// Merge returns the union extents of two overlapping rectangles.
func Merge(a, b Rectangle) (Rectangle, error) {
	if OverlapArea(a, b) == 0 {
		return Rectangle{}, ErrNoOverlap
	}
	return Rectangle{
		BottomLeft: Vector2{
			X: math.Min(a.BottomLeft.X, b.BottomLeft.X),
			Y: math.Min(a.BottomLeft.Y, b.BottomLeft.Y),
		},
		TopRight: Vector2{
			X: math.Max(a.TopRight.X, b.TopRight.X),
			Y: math.Max(a.TopRight.Y, b.TopRight.Y),
		},
	}, nil
}

// RemoveOverlap separates two overlapping rectangles. Wide intersections
// split the pair vertically, tall intersections horizontally; blockier
// intersections pull each rectangle off the intersection center, except when
// one rectangle is nearly (95%) contained in the other, in which case both
// are returned unchanged.
func RemoveOverlap(a, b Rectangle) (Rectangle, Rectangle, error) {
	overlap := OverlapArea(a, b)
	if overlap == 0 {
		return Rectangle{}, Rectangle{}, ErrNoOverlap
	}

	intersect, err := Intersection(a, b)
	if err != nil {
		return Rectangle{}, Rectangle{}, err
	}

	const ratioThreshold = 3.0
	ratio := intersect.Width() / intersect.Height()

	switch {
	case ratio >= ratioThreshold:
		a, b = splitVertical(a, b, intersect)
	case ratio <= 1/ratioThreshold:
		a, b = splitHorizontal(a, b, intersect)
	default:
		const containedThreshold = 0.95
		minArea := math.Min(a.Area(), b.Area())
		if overlap/minArea >= containedThreshold {
			return a, b, nil
		}
		center := intersect.Center()
		a = excludePoint(a, center.X, center.Y)
		b = excludePoint(b, center.X, center.Y)
	}
	return a, b, nil
}

// splitVertical clamps the lower rectangle's top edge and the upper
// rectangle's bottom edge to the intersection's vertical center.
func splitVertical(a, b, intersect Rectangle) (Rectangle, Rectangle) {
	centerY := intersect.Center().Y
	if a.TopRight.Y > b.TopRight.Y && a.BottomLeft.Y > b.BottomLeft.Y {
		b.TopRight.Y = centerY
		a.BottomLeft.Y = centerY
		return a, b
	}
	a.TopRight.Y = centerY
	b.BottomLeft.Y = centerY
	return a, b
}

// splitHorizontal clamps the facing vertical edges to the intersection's
// horizontal center.
func splitHorizontal(a, b, intersect Rectangle) (Rectangle, Rectangle) {
	centerX := intersect.Center().X
	if a.TopRight.X > b.TopRight.X && a.BottomLeft.X > b.BottomLeft.X {
		a.BottomLeft.X = centerX
		b.TopRight.X = centerX
		return a, b
	}
	a.TopRight.X = centerX
	b.BottomLeft.X = centerX
	return a, b
}

// excludePoint shifts the edges of r nearest to (x, y) onto the point so the
// point no longer lies inside.
func excludePoint(r Rectangle, x, y float64) Rectangle {
	if !r.ContainsPoint(x, y) {
		return r
	}
	if math.Abs(r.BottomLeft.X-x) < math.Abs(r.TopRight.X-x) {
		r.BottomLeft.X = x
	} else {
		r.TopRight.X = x
	}
	if math.Abs(r.BottomLeft.Y-y) < math.Abs(r.TopRight.Y-y) {
		r.BottomLeft.Y = y
	} else {
		r.TopRight.Y = y
	}
	return r
}
