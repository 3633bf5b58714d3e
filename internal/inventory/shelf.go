package inventory

import (
	"fmt"
	"math"

	"orbit/internal/geometry"
)

// HorizontalOverlap is the width shared by two bboxes on the x axis.
// Negative when they are apart.
func HorizontalOverlap(a, b geometry.Rectangle) float64 {
	left := math.Max(a.BottomLeft.X, b.BottomLeft.X)
	right := math.Min(a.TopRight.X, b.TopRight.X)
	return right - left
}

// ConstructEmpty rebuilds an empty spanning [leftLimit, rightLimit] at the
// source empty's shelf level. The result keeps the source's meta, side,
// aligned axis, and z, drops its waypoint and indexes, and carries no uuid;
// the caller decides whether to reuse the source's or mint a fresh one.
func ConstructEmpty(empty Item, leftLimit, rightLimit float64) (Item, error) {
	box, err := empty.BoundingBox()
	if err != nil {
		return Item{}, fmt.Errorf("empty %s: %w", empty.UUID, err)
	}
	bounds := geometry.Rectangle{
		BottomLeft: geometry.Vector2{X: leftLimit, Y: empty.Absolute.Position.Y},
		TopRight:   geometry.Vector2{X: rightLimit, Y: box.TopRight.Y},
	}
	dimension := geometry.Vector3{
		X: math.Abs(leftLimit - rightLimit),
		Y: math.Abs(empty.Absolute.Position.Y - box.TopRight.Y),
	}
	bottomCenter := bounds.BottomCenter()

	meta := empty.Meta
	meta.Stack = append([]string(nil), empty.Meta.Stack...)
	out := Item{
		Meta: meta,
		Absolute: ItemAbsolute{
			Position:    geometry.Vector3{X: bottomCenter.X, Y: bottomCenter.Y, Z: empty.Absolute.Position.Z},
			AlignedAxis: empty.Absolute.AlignedAxis,
		},
		Relative: ItemRelative{
			Dimension: dimension,
			Side:      empty.Relative.Side,
		},
	}
	return out, nil
}

// BoxesBelow returns the boxes whose top edge sits within margin of baseY
// and whose bbox overlaps the window horizontally.
func BoxesBelow(items []Item, window geometry.Rectangle, baseY, margin float64) ([]Item, error) {
	var out []Item
	for _, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		if math.Abs(box.TopRight.Y-baseY) < margin &&
			box.TopRight.X > window.BottomLeft.X &&
			box.BottomLeft.X < window.TopRight.X &&
			it.Meta.ItemType == ItemTypeBox {
			out = append(out, it)
		}
	}
	return out, nil
}

// LeftEdge returns the first item flush against the window's left side, at
// the same shelf level as the empty.
func LeftEdge(empty Item, window geometry.Rectangle, items []Item, margin float64) (*Item, error) {
	for _, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		if math.Abs(it.Absolute.Position.Y-empty.Absolute.Position.Y) < margin &&
			math.Abs(box.TopRight.X-window.BottomLeft.X) < margin {
			out := it.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

// RightEdge returns the first item flush against the window's right side,
// at the same shelf level as the empty.
func RightEdge(empty Item, window geometry.Rectangle, items []Item, margin float64) (*Item, error) {
	for _, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		if math.Abs(it.Absolute.Position.Y-empty.Absolute.Position.Y) < margin &&
			math.Abs(box.BottomLeft.X-window.TopRight.X) < margin {
			out := it.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

// MaxHorizontalOverlap returns the item sharing the widest horizontal span
// with the window.
func MaxHorizontalOverlap(items []Item, window geometry.Rectangle) (Item, error) {
	best := items[0]
	bestOverlap := math.Inf(-1)
	for _, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return Item{}, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		if o := HorizontalOverlap(box, window); o > bestOverlap {
			best, bestOverlap = it, o
		}
	}
	return best, nil
}
