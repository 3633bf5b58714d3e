package scan

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"orbit/internal/blobstore"
	"orbit/internal/inventory"
	"orbit/internal/logging"
)

// RawImageContainer receives the decoded scan photos as they arrive.
const RawImageContainer = "scan-images-raw"

// IngesterConfig configures an Ingester.
type IngesterConfig struct {
	Store  inventory.Store
	Blobs  blobstore.Store
	Logger *slog.Logger
}

// Ingester records scan data as it streams in from the robot: the scan
// image metadata, the detected partials and barcodes, and the raw photo.
type Ingester struct {
	store  inventory.Store
	blobs  blobstore.Store
	logger *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(cfg IngesterConfig) *Ingester {
	return &Ingester{
		store:  cfg.Store,
		blobs:  cfg.Blobs,
		logger: logging.Default(cfg.Logger).With("component", "scan-ingester"),
	}
}

// Ingest persists one scan image worth of detections. Partials and
// barcodes are stamped with the image and scan ids so a later compile can
// trace them back. The photo itself is decoded and uploaded without
// overwrite, so a replayed message cannot clobber the original upload.
func (in *Ingester) Ingest(ctx context.Context, data Data) error {
	img := inventory.ScanImage{
		Image:           data.Image,
		ImageFilename:   data.ImageFilename,
		ImageBottomLeft: data.ImageBottomLeft,
		ImageTopRight:   data.ImageTopRight,
		Stamp:           data.Stamp,
		ScanID:          data.ScanID,
		Side:            data.Side,
		AisleIndex:      data.AisleIndex,
	}
	imageID, err := in.store.PutScanImage(ctx, img)
	if err != nil {
		return fmt.Errorf("store scan image: %w", err)
	}

	for _, p := range data.PartialItems {
		p.Meta.ImageID = imageID
		p.Meta.ScanID = data.ScanID
		if _, err := in.store.PutPartialItem(ctx, p); err != nil {
			return fmt.Errorf("store partial item: %w", err)
		}
	}
	for _, bc := range data.Barcodes {
		bc.Meta.ImageID = imageID
		bc.Meta.ScanID = data.ScanID
		if _, err := in.store.PutPartialBarcode(ctx, bc); err != nil {
			return fmt.Errorf("store partial barcode: %w", err)
		}
	}

	in.logger.Info("ingested scan data",
		"scan_id", data.ScanID,
		"aisle_index", data.AisleIndex,
		"side", data.Side,
		"partial_items", len(data.PartialItems),
		"barcodes", len(data.Barcodes))

	if data.Image == "" || data.ImageFilename == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(data.Image)
	if err != nil {
		return fmt.Errorf("decode scan image: %w", err)
	}
	name := fmt.Sprintf("%s_%s.webp", data.ImageFilename, data.ScanID)
	if err := in.blobs.Put(ctx, RawImageContainer, name, raw, false); err != nil {
		return fmt.Errorf("upload scan image: %w", err)
	}
	return nil
}
