package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"orbit/internal/inventory"
	"orbit/internal/logging"
)

// CompilerConfig configures a Compiler.
type CompilerConfig struct {
	Store  inventory.Store
	Logger *slog.Logger
}

// Compiler turns accumulated partial detections into canonical inventory.
// Shelf faces compile independently; inserts happen once every face has
// been clustered.
type Compiler struct {
	store  inventory.Store
	logger *slog.Logger
}

// NewCompiler creates a Compiler.
func NewCompiler(cfg CompilerConfig) *Compiler {
	return &Compiler{
		store:  cfg.Store,
		logger: logging.Default(cfg.Logger).With("component", "scan-compiler"),
	}
}

// faceResult buffers one shelf face's compiled items until insert time.
type faceResult struct {
	aisleIndex int
	side       string
	items      []inventory.Item
}

// Compile runs one compilation request. A cluster that fails uniformity
// skips its (aisle, side, type) group; any other failure aborts the
// request.
func (c *Compiler) Compile(ctx context.Context, req CompileRequest) error {
	types := []string{inventory.ItemTypeEmpty, inventory.ItemTypeBox}
	if req.ItemType != nil {
		types = []string{*req.ItemType}
	}
	sides := []string{inventory.SideLeft, inventory.SideRight}
	if req.Side != nil {
		sides = []string{*req.Side}
	}
	var aisles []int
	if req.AisleIndex != nil {
		aisles = []int{*req.AisleIndex}
	} else {
		var err error
		aisles, err = c.store.DistinctPartialAisles(ctx, "")
		if err != nil {
			return fmt.Errorf("list partial aisles: %w", err)
		}
	}

	c.logger.Info("compiling scan",
		"scan_id", req.ScanID,
		"aisles", len(aisles),
		"sides", sides,
		"types", types,
		"overwrite", req.Overwrite)

	if req.Overwrite {
		removed, err := c.store.DeleteItemsExceptType(ctx, inventory.ItemTypeConveyor)
		if err != nil {
			return fmt.Errorf("overwrite item sweep: %w", err)
		}
		c.logger.Info("overwrite removed existing items", "count", len(removed))
	}

	var wipeBarcodes sync.Once
	var wipeErr error

	var mu sync.Mutex
	var results []faceResult

	g, gctx := errgroup.WithContext(ctx)
	for _, aisleIndex := range aisles {
		for _, side := range sides {
			g.Go(func() error {
				items, err := c.compileFace(gctx, req, aisleIndex, side, types, &wipeBarcodes, &wipeErr)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					return nil
				}
				mu.Lock()
				results = append(results, faceResult{aisleIndex: aisleIndex, side: side, items: items})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Insert in face order regardless of which goroutine finished first.
	sort.Slice(results, func(i, j int) bool {
		if results[i].aisleIndex != results[j].aisleIndex {
			return results[i].aisleIndex < results[j].aisleIndex
		}
		return results[i].side < results[j].side
	})

	total, totalBarcodes := 0, 0
	for _, res := range results {
		for _, item := range res.items {
			item.PrimaryBarcode = nil
			if err := c.store.PutItem(ctx, item); err != nil {
				return fmt.Errorf("insert item %s: %w", item.UUID, err)
			}
			total++
			for _, bc := range item.Barcodes {
				if err := c.store.PutBarcode(ctx, bc); err != nil {
					return fmt.Errorf("insert barcode for item %s: %w", item.UUID, err)
				}
				totalBarcodes++
			}
		}
	}
	c.logger.Info("compile finished",
		"scan_id", req.ScanID, "items", total, "barcodes", totalBarcodes)
	return nil
}

// compileFace clusters one (aisle, side) pair across the requested types.
func (c *Compiler) compileFace(ctx context.Context, req CompileRequest, aisleIndex int, side string, types []string, wipeBarcodes *sync.Once, wipeErr *error) ([]inventory.Item, error) {
	byType := make(map[string][]inventory.Item)
	for _, itemType := range types {
		partials, err := c.store.ListPartialItems(ctx, inventory.PartialItemQuery{
			ScanID:        req.ScanID,
			AisleIndex:    aisleIndex,
			Side:          side,
			ItemType:      itemType,
			MinConfidence: req.ConfidenceThreshold,
			MinWidth:      MinPartialWidth,
		})
		if err != nil {
			return nil, fmt.Errorf("list partials aisle=%d side=%s type=%s: %w", aisleIndex, side, itemType, err)
		}
		if len(partials) == 0 {
			continue
		}

		items, err := MergePartialItems(partials)
		if err != nil {
			if errors.Is(err, ErrNonUniformCluster) {
				c.logger.Warn("skipping non-uniform cluster group",
					"aisle_index", aisleIndex, "side", side, "item_type", itemType, "error", err)
				continue
			}
			return nil, fmt.Errorf("merge aisle=%d side=%s type=%s: %w", aisleIndex, side, itemType, err)
		}
		byType[itemType] = items
	}

	if boxes := byType[inventory.ItemTypeBox]; len(boxes) > 0 {
		if req.Overwrite {
			wipeBarcodes.Do(func() {
				*wipeErr = c.store.DeleteAllBarcodes(ctx)
			})
			if *wipeErr != nil {
				return nil, fmt.Errorf("overwrite barcode sweep: %w", *wipeErr)
			}
		}
		if err := c.compileBarcodes(ctx, req.ScanID, aisleIndex, side, boxes); err != nil {
			return nil, err
		}
	}

	var out []inventory.Item
	for _, itemType := range types {
		out = append(out, byType[itemType]...)
	}
	return out, nil
}

// compileBarcodes merges the face's partial barcodes and attaches them to
// the freshly compiled boxes in place.
func (c *Compiler) compileBarcodes(ctx context.Context, scanID string, aisleIndex int, side string, boxes []inventory.Item) error {
	partials, err := c.store.ListPartialBarcodes(ctx, scanID, aisleIndex, side)
	if err != nil {
		return fmt.Errorf("list partial barcodes aisle=%d side=%s: %w", aisleIndex, side, err)
	}
	if len(partials) == 0 {
		return nil
	}

	merged, err := MergeBarcodes(partials)
	if err != nil {
		return fmt.Errorf("merge barcodes aisle=%d side=%s: %w", aisleIndex, side, err)
	}
	if err := AssignBarcodes(boxes, merged); err != nil {
		return fmt.Errorf("assign barcodes aisle=%d side=%s: %w", aisleIndex, side, err)
	}
	return nil
}
