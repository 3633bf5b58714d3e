package scan

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"orbit/internal/geometry"
	"orbit/internal/inventory"
)

const (
	// MergeThreshold is the fraction of either bbox that must be covered by
	// the pair's overlap for two partial detections to merge. Equality does
	// not merge.
	MergeThreshold = 0.4

	// DistanceThreshold bounds the horizontal distance between partials
	// considered for merging. Partials are sorted by x, so a pair beyond
	// the threshold ends the inner sweep.
	DistanceThreshold = 1.5

	// BarcodeMergeDistance is the 3D distance under which two detections of
	// the same barcode payload collapse into one.
	BarcodeMergeDistance = 0.1

	// MinPartialWidth filters out degenerate slivers before merging.
	MinPartialWidth = 0.08
)

// ErrNonUniformCluster indicates a merge cluster mixes partials that cannot
// belong to one physical object.
var ErrNonUniformCluster = errors.New("cluster members disagree")

// MergePartialItems merges sorted partial detections into canonical items.
// Each connected component of sufficiently-overlapping partials becomes one
// item; stacks are assigned across the resulting items. A partial further
// than DistanceThreshold from every neighbor is treated as noise and
// dropped.
func MergePartialItems(partials []inventory.PartialItem) ([]inventory.Item, error) {
	boxes := make([]geometry.Rectangle, len(partials))
	for i, p := range partials {
		box, err := p.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("partial %s: %w", p.ID, err)
		}
		boxes[i] = box
	}

	adj := make(map[int][]int)
	recorded := make([]bool, len(partials))
	for i := range partials {
		for j := i + 1; j < len(partials); j++ {
			if math.Abs(partials[i].Absolute.Position.X-partials[j].Absolute.Position.X) > DistanceThreshold {
				break
			}
			recorded[i], recorded[j] = true, true
			overlap := geometry.OverlapArea(boxes[i], boxes[j])
			if overlap > MergeThreshold*boxes[i].Area() || overlap > MergeThreshold*boxes[j].Area() {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	var items []inventory.Item
	visited := make([]bool, len(partials))
	for i := range partials {
		if !recorded[i] || visited[i] {
			continue
		}
		component := collectComponent(i, adj, visited)
		members := make([]inventory.PartialItem, len(component))
		for k, idx := range component {
			members[k] = partials[idx]
		}
		item, err := itemFromPartials(members)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		bi, _ := items[i].BoundingBox()
		bj, _ := items[j].BoundingBox()
		if bi.BottomLeft.X != bj.BottomLeft.X {
			return bi.BottomLeft.X < bj.BottomLeft.X
		}
		return bi.BottomLeft.Y < bj.BottomLeft.Y
	})

	if err := GenerateStacks(items); err != nil {
		return nil, err
	}
	return items, nil
}

// collectComponent walks the adjacency from node and returns the connected
// component in ascending index order.
func collectComponent(node int, adj map[int][]int, visited []bool) []int {
	var component []int
	stack := []int{node}
	visited[node] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		component = append(component, n)
		for _, next := range adj[n] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	sort.Ints(component)
	return component
}

// itemFromPartials builds the canonical item for one cluster. The cluster
// must agree on aligned axis, aisle index, item type, and scan id; the
// largest-area member supplies the relative header, position, side, and the
// absolute z.
func itemFromPartials(partials []inventory.PartialItem) (inventory.Item, error) {
	if len(partials) == 0 {
		return inventory.Item{}, errors.New("empty partial cluster")
	}

	first := partials[0]
	for _, p := range partials[1:] {
		switch {
		case p.Absolute.AlignedAxis != first.Absolute.AlignedAxis:
			return inventory.Item{}, fmt.Errorf("aligned axis: %w", ErrNonUniformCluster)
		case p.Meta.AisleIndex != first.Meta.AisleIndex:
			return inventory.Item{}, fmt.Errorf("aisle index: %w", ErrNonUniformCluster)
		case p.Meta.ItemType != first.Meta.ItemType:
			return inventory.Item{}, fmt.Errorf("item type: %w", ErrNonUniformCluster)
		case p.Meta.ScanID != first.Meta.ScanID:
			return inventory.Item{}, fmt.Errorf("scan id: %w", ErrNonUniformCluster)
		}
	}

	ideal := partials[0]
	idealBox, err := ideal.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	idealArea := idealBox.Area()
	union := idealBox
	for _, p := range partials[1:] {
		box, err := p.BoundingBox()
		if err != nil {
			return inventory.Item{}, err
		}
		if box.Area() > idealArea {
			ideal, idealArea = p, box.Area()
		}
		union.BottomLeft.X = math.Min(union.BottomLeft.X, box.BottomLeft.X)
		union.BottomLeft.Y = math.Min(union.BottomLeft.Y, box.BottomLeft.Y)
		union.TopRight.X = math.Max(union.TopRight.X, box.TopRight.X)
		union.TopRight.Y = math.Max(union.TopRight.Y, box.TopRight.Y)
	}

	dimension := geometry.Vector3{X: union.Width(), Y: union.Height()}
	bottomCenter := union.BottomCenter()
	header := ideal.Relative.Header
	relPosition := ideal.Relative.Position

	return inventory.Item{
		UUID: uuid.Must(uuid.NewV7()).String(),
		Meta: inventory.ItemMeta{
			ItemType:   first.Meta.ItemType,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: first.Meta.AisleIndex,
			ScanID:     first.Meta.ScanID,
		},
		Absolute: inventory.ItemAbsolute{
			Position:    geometry.Vector3{X: bottomCenter.X, Y: bottomCenter.Y, Z: ideal.Absolute.Position.Z},
			Dimension:   &dimension,
			AlignedAxis: ideal.Absolute.AlignedAxis,
		},
		Relative: inventory.ItemRelative{
			Header:    &header,
			Position:  &relPosition,
			Dimension: dimension,
			Side:      ideal.Relative.Side,
		},
	}, nil
}

// GenerateStacks records, on every item, the uuids of the items resting
// directly on top of it.
func GenerateStacks(items []inventory.Item) error {
	boxes := make([]geometry.Rectangle, len(items))
	for i, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return fmt.Errorf("item %s: %w", it.UUID, err)
		}
		boxes[i] = box
	}
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if geometry.IsStackedOn(boxes[i], boxes[j]) {
				items[j].Meta.Stack = append(items[j].Meta.Stack, items[i].UUID)
			} else if geometry.IsStackedOn(boxes[j], boxes[i]) {
				items[i].Meta.Stack = append(items[i].Meta.Stack, items[j].UUID)
			}
		}
	}
	return nil
}

// MergeBarcodes collapses repeated detections of the same payload. Two
// detections cluster when they share (data, barcode_type) and sit within
// BarcodeMergeDistance of each other in space; the lowest-index member
// supplies meta, relative placement, and axis.
func MergeBarcodes(barcodes []inventory.Barcode) ([]inventory.Barcode, error) {
	type groupKey struct {
		data string
		typ  string
	}
	groups := make(map[groupKey][]int)
	for i, bc := range barcodes {
		k := groupKey{bc.Meta.Data, bc.Meta.BarcodeType}
		groups[k] = append(groups[k], i)
	}

	adj := make(map[int][]int)
	for _, members := range groups {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				d := geometry.Distance(barcodes[i].Absolute.Position, barcodes[j].Absolute.Position)
				if d < BarcodeMergeDistance {
					adj[i] = append(adj[i], j)
					adj[j] = append(adj[j], i)
				}
			}
		}
	}

	var out []inventory.Barcode
	visited := make([]bool, len(barcodes))
	for i := range barcodes {
		if visited[i] {
			continue
		}
		component := collectComponent(i, adj, visited)
		merged, err := barcodeFromCluster(barcodes, component)
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	return out, nil
}

func barcodeFromCluster(barcodes []inventory.Barcode, component []int) (inventory.Barcode, error) {
	rep := barcodes[component[0]]
	union, err := rep.BoundingBox()
	if err != nil {
		return inventory.Barcode{}, fmt.Errorf("barcode %s: %w", rep.ID, err)
	}
	for _, idx := range component[1:] {
		box, err := barcodes[idx].BoundingBox()
		if err != nil {
			return inventory.Barcode{}, fmt.Errorf("barcode %s: %w", barcodes[idx].ID, err)
		}
		union.BottomLeft.X = math.Min(union.BottomLeft.X, box.BottomLeft.X)
		union.BottomLeft.Y = math.Min(union.BottomLeft.Y, box.BottomLeft.Y)
		union.TopRight.X = math.Max(union.TopRight.X, box.TopRight.X)
		union.TopRight.Y = math.Max(union.TopRight.Y, box.TopRight.Y)
	}

	bottomCenter := union.BottomCenter()
	dimension := geometry.Vector3{X: union.Width(), Y: union.Height()}
	return inventory.Barcode{
		Meta: rep.Meta,
		Absolute: inventory.BarcodeAbsolute{
			Position:    geometry.Vector3{X: bottomCenter.X, Y: bottomCenter.Y, Z: rep.Absolute.Position.Z},
			Dimension:   &dimension,
			AlignedAxis: rep.Absolute.AlignedAxis,
		},
		Relative: rep.Relative,
	}, nil
}

// AssignBarcodes attaches each barcode to the first item whose bbox contains
// both of the barcode's corners, then re-expresses the barcode's relative
// position in the owning item's frame. A barcode belongs to at most one
// item; unowned barcodes are dropped.
func AssignBarcodes(items []inventory.Item, barcodes []inventory.Barcode) error {
	boxes := make([]geometry.Rectangle, len(items))
	for i, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return fmt.Errorf("item %s: %w", it.UUID, err)
		}
		boxes[i] = box
	}

	for _, bc := range barcodes {
		bcBox, err := bc.BoundingBox()
		if err != nil {
			return fmt.Errorf("barcode %s: %w", bc.ID, err)
		}
		for i := range items {
			if !boxes[i].ContainsPoint(bcBox.BottomLeft.X, bcBox.BottomLeft.Y) ||
				!boxes[i].ContainsPoint(bcBox.TopRight.X, bcBox.TopRight.Y) {
				continue
			}
			bc.ItemUUID = items[i].UUID
			bc.Relative.Position = bc.Absolute.Position.Sub(items[i].Absolute.Position)
			bc.Relative.Header.FrameID = "parent_item"
			items[i].Barcodes = append(items[i].Barcodes, bc)
			break
		}
	}
	return nil
}
