// Package render maintains the stored shelf-face snapshots the frontend
// draws from. Rasterizing the backdrop image is an external concern; the
// builder only collects rectangle traces and hands scan images to a
// pluggable compositor.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orbit/internal/inventory"
	"orbit/internal/logging"
)

// Compositor merges a face's scan images into one backdrop raster and
// reports where the result lives. Returning (nil, nil) means no backdrop.
type Compositor interface {
	Compose(ctx context.Context, face inventory.RenderMeta, images []inventory.ScanImage) (*inventory.RenderImageMeta, error)
}

// Nop never produces a backdrop.
type Nop struct{}

func (Nop) Compose(context.Context, inventory.RenderMeta, []inventory.ScanImage) (*inventory.RenderImageMeta, error) {
	return nil, nil
}

// Config configures a Builder.
type Config struct {
	Store      inventory.Store
	Compositor Compositor
	Logger     *slog.Logger
}

// Builder rebuilds renders for every shelf face touched by a scan.
type Builder struct {
	store      inventory.Store
	compositor Compositor
	logger     *slog.Logger
}

// New creates a Builder. A nil compositor defaults to Nop.
func New(cfg Config) *Builder {
	comp := cfg.Compositor
	if comp == nil {
		comp = Nop{}
	}
	return &Builder{
		store:      cfg.Store,
		compositor: comp,
		logger:     logging.Default(cfg.Logger).With("component", "render"),
	}
}

// Build refreshes the render of every (side, aisle) face that has scan
// images, across all known scans. Debug renders trace the raw partial
// detections instead of the compiled inventory.
func (b *Builder) Build(ctx context.Context, req inventory.RenderScanRequest) error {
	scanIDs, err := b.store.DistinctItemScanIDs(ctx)
	if err != nil {
		return fmt.Errorf("list scan ids: %w", err)
	}
	for _, scanID := range scanIDs {
		if scanID == "" {
			continue
		}
		aisles, err := b.store.DistinctScanImageAisles(ctx, scanID)
		if err != nil {
			return fmt.Errorf("scan %s: list aisles: %w", scanID, err)
		}
		for _, side := range []string{inventory.SideLeft, inventory.SideRight} {
			for _, aisle := range aisles {
				if err := b.buildFace(ctx, req, scanID, side, aisle); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *Builder) buildFace(ctx context.Context, req inventory.RenderScanRequest, scanID, side string, aisle int) error {
	var data []inventory.RenderItemData
	var err error
	if req.Debug {
		data, err = b.partialTraces(ctx, scanID, side, aisle)
	} else {
		data, err = b.itemTraces(ctx, side, aisle)
	}
	if err != nil {
		return err
	}

	render := inventory.Render{
		Request:      req,
		Meta:         inventory.RenderMeta{Side: side, AisleIndex: aisle},
		Data:         data,
		CreatedAtUTC: float64(time.Now().UnixNano()) / float64(time.Second),
	}

	images, err := b.store.ListScanImages(ctx, scanID, aisle, side)
	if err != nil {
		return fmt.Errorf("scan %s aisle %d %s: list images: %w", scanID, aisle, side, err)
	}
	if len(images) > 0 {
		imgMeta, err := b.compositor.Compose(ctx, render.Meta, images)
		if err != nil {
			return fmt.Errorf("compose aisle %d %s: %w", aisle, side, err)
		}
		render.ImgMeta = imgMeta
	}

	if err := b.store.ReplaceRender(ctx, render); err != nil {
		return fmt.Errorf("replace render aisle %d %s: %w", aisle, side, err)
	}
	b.logger.Info("rebuilt render",
		"scan_id", scanID, "aisle_index", aisle, "side", side,
		"traces", len(data), "images", len(images), "debug", req.Debug)
	return nil
}

// itemTraces collects the available inventory rectangles of one face.
func (b *Builder) itemTraces(ctx context.Context, side string, aisle int) ([]inventory.RenderItemData, error) {
	var data []inventory.RenderItemData
	for _, itemType := range []string{inventory.ItemTypeEmpty, inventory.ItemTypeBox} {
		items, err := b.store.ListItems(ctx, inventory.ItemQuery{
			ItemType:   itemType,
			Location:   inventory.LocationInventory,
			Side:       side,
			AisleIndex: inventory.IntPtr(aisle),
			Available:  inventory.BoolPtr(true),
		})
		if err != nil {
			return nil, fmt.Errorf("list %s items: %w", itemType, err)
		}
		for _, it := range items {
			box, err := it.BoundingBox()
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", it.UUID, err)
			}
			data = append(data, inventory.RenderItemData{
				Item: it,
				X0:   box.BottomLeft.X,
				Y0:   box.BottomLeft.Y,
				X1:   box.TopRight.X,
				Y1:   box.TopRight.Y,
			})
		}
	}
	return data, nil
}

// partialTraces collects the raw detection rectangles of one face.
func (b *Builder) partialTraces(ctx context.Context, scanID, side string, aisle int) ([]inventory.RenderItemData, error) {
	partials, err := b.store.ListPartialItems(ctx, inventory.PartialItemQuery{
		ScanID:     scanID,
		AisleIndex: aisle,
		Side:       side,
	})
	if err != nil {
		return nil, fmt.Errorf("list partials: %w", err)
	}
	var data []inventory.RenderItemData
	for _, p := range partials {
		box, err := p.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("partial %s: %w", p.ID, err)
		}
		data = append(data, inventory.RenderItemData{
			Item: inventory.Item{
				Meta: inventory.ItemMeta{
					ItemType:   p.Meta.ItemType,
					Stack:      []string{},
					Location:   inventory.LocationInventory,
					AisleIndex: p.Meta.AisleIndex,
					ScanID:     p.Meta.ScanID,
				},
				Absolute: inventory.ItemAbsolute{
					Position:    p.Absolute.Position,
					AlignedAxis: p.Absolute.AlignedAxis,
				},
				Relative: inventory.ItemRelative{
					Dimension: p.Relative.Dimension,
					Side:      p.Relative.Side,
				},
			},
			X0: box.BottomLeft.X,
			Y0: box.BottomLeft.Y,
			X1: box.TopRight.X,
			Y1: box.TopRight.Y,
		})
	}
	return data, nil
}
