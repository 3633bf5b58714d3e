// Package memory provides an in-memory inventory store. It is the default
// backend for tests and single-process deployments; nothing is persisted
// across restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"orbit/internal/inventory"
)

type renderKey struct {
	side  string
	aisle int
}

// Store is an in-memory inventory.Store. All entities are deep-copied on
// the way in and out, so callers can never alias internal state.
type Store struct {
	mu sync.RWMutex

	items           map[string]inventory.Item
	barcodes        map[string]inventory.Barcode
	partialItems    map[string]inventory.PartialItem
	partialBarcodes map[string]inventory.Barcode
	batches         map[string]inventory.RobotBatch
	jobs            map[string]inventory.RobotJob
	scanImages      map[string]inventory.ScanImage
	renders         map[renderKey]inventory.Render
}

var _ inventory.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		items:           make(map[string]inventory.Item),
		barcodes:        make(map[string]inventory.Barcode),
		partialItems:    make(map[string]inventory.PartialItem),
		partialBarcodes: make(map[string]inventory.Barcode),
		batches:         make(map[string]inventory.RobotBatch),
		jobs:            make(map[string]inventory.RobotJob),
		scanImages:      make(map[string]inventory.ScanImage),
		renders:         make(map[renderKey]inventory.Render),
	}
}

func (s *Store) GetItem(_ context.Context, id string) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	out := it.Clone()
	return &out, nil
}

func (s *Store) PutItem(_ context.Context, item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.UUID] = item.Clone()
	return nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) DeleteItemsExceptType(_ context.Context, keep string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, it := range s.items {
		if it.Meta.ItemType != keep {
			removed = append(removed, id)
			delete(s.items, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func matchItem(q inventory.ItemQuery, it inventory.Item) bool {
	if q.ItemType != "" && it.Meta.ItemType != q.ItemType {
		return false
	}
	if q.Location != "" && it.Meta.Location != q.Location {
		return false
	}
	if q.Side != "" && it.Relative.Side != q.Side {
		return false
	}
	if q.AisleIndex != nil && it.Meta.AisleIndex != *q.AisleIndex {
		return false
	}
	if q.Available != nil && it.Meta.Available != *q.Available {
		return false
	}
	if q.ScanID != "" && it.Meta.ScanID != q.ScanID {
		return false
	}
	return true
}

func (s *Store) ListItems(_ context.Context, q inventory.ItemQuery) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Item
	for _, it := range s.items {
		if matchItem(q, it) {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (s *Store) FindNearby(_ context.Context, q inventory.NearbyQuery) ([]inventory.Item, error) {
	dx, dy := q.DX, q.DY
	if dx == 0 {
		dx = inventory.DefaultNearbyDX
	}
	if dy == 0 {
		dy = inventory.DefaultNearbyDY
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Item
	for _, it := range s.items {
		if it.Meta.AisleIndex != q.AisleIndex || it.Relative.Side != q.Side {
			continue
		}
		if q.ItemType != "" && it.Meta.ItemType != q.ItemType {
			continue
		}
		if q.Location != "" && it.Meta.Location != q.Location {
			continue
		}
		if q.Available != nil && it.Meta.Available != *q.Available {
			continue
		}
		px, py := it.Absolute.Position.X, it.Absolute.Position.Y
		if px <= q.CX-dx || px >= q.CX+dx || py <= q.CY-dy || py >= q.CY+dy {
			continue
		}
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (s *Store) FindBestEmpty(_ context.Context, aisleIndex int, side string, minWidth, minHeight float64) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *inventory.Item
	var bestArea float64
	for _, it := range s.items {
		if it.Meta.ItemType != inventory.ItemTypeEmpty {
			continue
		}
		if it.Meta.AisleIndex != aisleIndex || it.Relative.Side != side {
			continue
		}
		if it.Relative.Dimension.X <= minWidth || it.Relative.Dimension.Y <= minHeight {
			continue
		}
		area := it.Relative.Dimension.X * it.Relative.Dimension.Y
		if best == nil || area < bestArea || (area == bestArea && it.UUID < best.UUID) {
			c := it.Clone()
			best = &c
			bestArea = area
		}
	}
	return best, nil
}

func (s *Store) FindItemsWithInStack(_ context.Context, id string) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Item
	for _, it := range s.items {
		for _, member := range it.Meta.Stack {
			if member == id {
				out = append(out, it.Clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (s *Store) DistinctItemScanIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, it := range s.items {
		if it.Meta.ScanID != "" {
			seen[it.Meta.ScanID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) PutBarcode(_ context.Context, bc inventory.Barcode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bc.ID == "" {
		bc.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.barcodes[bc.ID] = bc
	return nil
}

func (s *Store) ListBarcodesByData(_ context.Context, data string) ([]inventory.Barcode, error) {
	return s.ListBarcodesByAnyData(nil, []string{data})
}

func (s *Store) ListBarcodesByAnyData(_ context.Context, data []string) ([]inventory.Barcode, error) {
	want := make(map[string]struct{}, len(data))
	for _, d := range data {
		want[d] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Barcode
	for _, bc := range s.barcodes {
		if _, ok := want[bc.Meta.Data]; ok {
			out = append(out, bc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindPrimaryBarcode(_ context.Context, itemUUID string) (*inventory.Barcode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *inventory.Barcode
	bestRank := len(inventory.PrimaryBarcodeTypes)
	for _, bc := range s.barcodes {
		if bc.ItemUUID != itemUUID {
			continue
		}
		for rank, t := range inventory.PrimaryBarcodeTypes {
			if bc.Meta.BarcodeType != t {
				continue
			}
			if best == nil || rank < bestRank || (rank == bestRank && bc.ID < best.ID) {
				c := bc
				best = &c
				bestRank = rank
			}
		}
	}
	return best, nil
}

func (s *Store) DeleteBarcodesByItem(_ context.Context, itemUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bc := range s.barcodes {
		if bc.ItemUUID == itemUUID {
			delete(s.barcodes, id)
		}
	}
	return nil
}

func (s *Store) DeleteAllBarcodes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.barcodes = make(map[string]inventory.Barcode)
	return nil
}

func (s *Store) PutPartialItem(_ context.Context, p inventory.PartialItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.partialItems[p.ID] = p
	return p.ID, nil
}

func (s *Store) PutPartialBarcode(_ context.Context, bc inventory.Barcode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bc.ID == "" {
		bc.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.partialBarcodes[bc.ID] = bc
	return bc.ID, nil
}

func (s *Store) ListPartialItems(_ context.Context, q inventory.PartialItemQuery) ([]inventory.PartialItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.PartialItem
	for _, p := range s.partialItems {
		if q.ScanID != "" && p.Meta.ScanID != q.ScanID {
			continue
		}
		if p.Meta.AisleIndex != q.AisleIndex || p.Relative.Side != q.Side {
			continue
		}
		if q.ItemType != "" && p.Meta.ItemType != q.ItemType {
			continue
		}
		if q.MinConfidence > 0 && p.Meta.Confidence < q.MinConfidence {
			continue
		}
		if q.MinWidth > 0 && p.Absolute.Dimension.X < q.MinWidth {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Absolute.Position.X != out[j].Absolute.Position.X {
			return out[i].Absolute.Position.X < out[j].Absolute.Position.X
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListPartialBarcodes(_ context.Context, scanID string, aisleIndex int, side string) ([]inventory.Barcode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Barcode
	for _, bc := range s.partialBarcodes {
		if bc.Meta.ScanID != scanID || bc.Meta.AisleIndex != aisleIndex || bc.Relative.Side != side {
			continue
		}
		out = append(out, bc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DistinctPartialAisles(_ context.Context, scanID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, p := range s.partialItems {
		if scanID == "" || p.Meta.ScanID == scanID {
			seen[p.Meta.AisleIndex] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Ints(out)
	return out, nil
}

func (s *Store) DeletePartials(_ context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.partialItems {
		if p.Meta.ScanID == scanID {
			delete(s.partialItems, id)
		}
	}
	for id, bc := range s.partialBarcodes {
		if bc.Meta.ScanID == scanID {
			delete(s.partialBarcodes, id)
		}
	}
	return nil
}

func (s *Store) PutBatch(_ context.Context, b inventory.RobotBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.BatchID] = b.Clone()
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID string) (*inventory.RobotBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, nil
	}
	out := b.Clone()
	return &out, nil
}

func (s *Store) PutJob(_ context.Context, j inventory.RobotJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.JobID] = j.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (*inventory.RobotJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	out := j.Clone()
	return &out, nil
}

func (s *Store) PutScanImage(_ context.Context, img inventory.ScanImage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img.ID == "" {
		img.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.scanImages[img.ID] = img
	return img.ID, nil
}

func (s *Store) ListScanImages(_ context.Context, scanID string, aisleIndex int, side string) ([]inventory.ScanImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.ScanImage
	for _, img := range s.scanImages {
		if img.ScanID != scanID || img.AisleIndex != aisleIndex {
			continue
		}
		if side != "" && img.Side != side {
			continue
		}
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DistinctScanImageAisles(_ context.Context, scanID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, img := range s.scanImages {
		if img.ScanID == scanID {
			seen[img.AisleIndex] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Ints(out)
	return out, nil
}

func (s *Store) ReplaceRender(_ context.Context, r inventory.Render) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders[renderKey{r.Meta.Side, r.Meta.AisleIndex}] = cloneRender(r)
	return nil
}

func (s *Store) GetRender(_ context.Context, side string, aisleIndex int) (*inventory.Render, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.renders[renderKey{side, aisleIndex}]
	if !ok {
		return nil, nil
	}
	out := cloneRender(r)
	return &out, nil
}

func (s *Store) Close() error { return nil }

func cloneRender(r inventory.Render) inventory.Render {
	out := r
	out.Data = make([]inventory.RenderItemData, len(r.Data))
	for i, d := range r.Data {
		out.Data[i] = d
		out.Data[i].Item = d.Item.Clone()
	}
	if r.ImgMeta != nil {
		m := *r.ImgMeta
		out.ImgMeta = &m
	}
	return out
}
