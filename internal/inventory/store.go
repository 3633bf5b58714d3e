package inventory

import (
	"context"
	"fmt"
)

// Default half-extents of the nearby sweep window, in meters.
const (
	DefaultNearbyDX = 2.0
	DefaultNearbyDY = 1.0
)

// ItemQuery filters ListItems. Zero-valued fields do not filter.
type ItemQuery struct {
	ItemType   string
	Location   string
	Side       string
	AisleIndex *int
	Available  *bool
	ScanID     string
}

// NearbyQuery selects items whose absolute position falls strictly inside
// the window centered at (CX, CY) with half-extents (DX, DY). Zero DX and
// DY take the package defaults.
type NearbyQuery struct {
	AisleIndex int
	Side       string
	CX, CY     float64
	DX, DY     float64
	ItemType   string
	Location   string
	Available  *bool
}

// PartialItemQuery filters ListPartialItems. Results are ordered by
// absolute x position ascending.
type PartialItemQuery struct {
	ScanID        string
	AisleIndex    int
	Side          string
	ItemType      string
	MinConfidence float64
	MinWidth      float64
}

// Store persists the inventory model. Implementations must be safe for
// concurrent use. Single-entity getters return (nil, nil) when the entity
// does not exist.
type Store interface {
	// Items.
	GetItem(ctx context.Context, uuid string) (*Item, error)
	PutItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, uuid string) error
	// DeleteItemsExceptType removes every item whose type differs from
	// keep. It returns the uuids of the removed items.
	DeleteItemsExceptType(ctx context.Context, keep string) ([]string, error)
	ListItems(ctx context.Context, q ItemQuery) ([]Item, error)
	FindNearby(ctx context.Context, q NearbyQuery) ([]Item, error)
	// FindBestEmpty returns the smallest-area empty on the given shelf face
	// whose relative dimensions strictly exceed minWidth and minHeight, or
	// (nil, nil) when no empty fits.
	FindBestEmpty(ctx context.Context, aisleIndex int, side string, minWidth, minHeight float64) (*Item, error)
	// FindItemsWithInStack returns items whose stack contains uuid.
	FindItemsWithInStack(ctx context.Context, uuid string) ([]Item, error)
	DistinctItemScanIDs(ctx context.Context) ([]string, error)

	// Canonical barcodes.
	PutBarcode(ctx context.Context, bc Barcode) error
	ListBarcodesByData(ctx context.Context, data string) ([]Barcode, error)
	ListBarcodesByAnyData(ctx context.Context, data []string) ([]Barcode, error)
	// FindPrimaryBarcode returns the item's barcode with a primary
	// symbology, or (nil, nil) when the item has none.
	FindPrimaryBarcode(ctx context.Context, itemUUID string) (*Barcode, error)
	DeleteBarcodesByItem(ctx context.Context, itemUUID string) error
	DeleteAllBarcodes(ctx context.Context) error

	// Partial detections.
	PutPartialItem(ctx context.Context, p PartialItem) (string, error)
	PutPartialBarcode(ctx context.Context, bc Barcode) (string, error)
	ListPartialItems(ctx context.Context, q PartialItemQuery) ([]PartialItem, error)
	ListPartialBarcodes(ctx context.Context, scanID string, aisleIndex int, side string) ([]Barcode, error)
	DistinctPartialAisles(ctx context.Context, scanID string) ([]int, error)
	DeletePartials(ctx context.Context, scanID string) error

	// Robot batches and jobs.
	PutBatch(ctx context.Context, b RobotBatch) error
	GetBatch(ctx context.Context, batchID string) (*RobotBatch, error)
	PutJob(ctx context.Context, j RobotJob) error
	GetJob(ctx context.Context, jobID string) (*RobotJob, error)

	// Scan images.
	PutScanImage(ctx context.Context, img ScanImage) (string, error)
	ListScanImages(ctx context.Context, scanID string, aisleIndex int, side string) ([]ScanImage, error)
	DistinctScanImageAisles(ctx context.Context, scanID string) ([]int, error)

	// Renders. ReplaceRender removes any previous render for the same
	// (side, aisle_index) face before inserting.
	ReplaceRender(ctx context.Context, r Render) error
	GetRender(ctx context.Context, side string, aisleIndex int) (*Render, error)

	Close() error
}

// FindItemByBarcode resolves barcode data to the single item carrying it.
// The returned item has PrimaryBarcode set to the matched barcode. No match
// yields ErrMissingEntity, more than one yields ErrAmbiguous.
func FindItemByBarcode(ctx context.Context, s Store, data string) (*Item, error) {
	barcodes, err := s.ListBarcodesByData(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(barcodes) == 0 {
		return nil, wrapMissing("barcode " + data)
	}
	if len(barcodes) > 1 {
		return nil, fmt.Errorf("barcode %s: %w", data, ErrAmbiguous)
	}
	bc := barcodes[0]
	item, err := s.GetItem(ctx, bc.ItemUUID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, wrapMissing("item " + bc.ItemUUID + " for barcode " + data)
	}
	item.PrimaryBarcode = &bc
	return item, nil
}
