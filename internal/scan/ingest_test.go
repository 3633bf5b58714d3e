package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"orbit/internal/blobstore"
	"orbit/internal/geometry"
	"orbit/internal/inventory"
	"orbit/internal/inventory/memory"
)

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	blobs := blobstore.NewMemory()
	defer blobs.Close()

	ing := NewIngester(IngesterConfig{Store: store, Blobs: blobs})
	data := Data{
		Stamp:           inventory.Timestamp{Sec: 1700000000},
		ScanID:          "scan-1",
		Side:            inventory.SideLeft,
		Image:           base64.StdEncoding.EncodeToString([]byte("webp bytes")),
		AisleIndex:      3,
		ImageBottomLeft: geometry.Vector2{X: 0.5, Y: 0.0},
		ImageTopRight:   geometry.Vector2{X: 2.5, Y: 1.5},
		ImageFilename:   "frame_0001",
		PartialItems: []inventory.PartialItem{
			partial("", 1.0, 0.2, 1.0, 1.0),
		},
		Barcodes: []inventory.Barcode{
			detection("", "123", "Code 128", geometry.Vector3{X: 1.0, Y: 0.5, Z: 0.5}),
		},
	}
	if err := ing.Ingest(ctx, data); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	imgs, err := store.ListScanImages(ctx, "scan-1", 3, "")
	if err != nil {
		t.Fatalf("list scan images: %v", err)
	}
	if len(imgs) != 1 {
		t.Fatalf("want 1 scan image, got %d", len(imgs))
	}
	img := imgs[0]
	if img.ID == "" {
		t.Fatal("scan image has no id")
	}
	if img.Image != data.Image || img.ImageFilename != "frame_0001" {
		t.Fatalf("scan image doc incomplete: %+v", img)
	}

	partials, err := store.ListPartialItems(ctx, inventory.PartialItemQuery{
		ScanID:     "scan-1",
		AisleIndex: 3,
		Side:       inventory.SideLeft,
	})
	if err != nil {
		t.Fatalf("list partials: %v", err)
	}
	if len(partials) != 1 {
		t.Fatalf("want 1 partial, got %d", len(partials))
	}
	if partials[0].Meta.ImageID != img.ID || partials[0].Meta.ScanID != "scan-1" {
		t.Fatalf("partial not stamped: %+v", partials[0].Meta)
	}

	bcs, err := store.ListPartialBarcodes(ctx, "scan-1", 3, inventory.SideLeft)
	if err != nil {
		t.Fatalf("list partial barcodes: %v", err)
	}
	if len(bcs) != 1 || bcs[0].Meta.ImageID != img.ID {
		t.Fatalf("barcode not stamped: %+v", bcs)
	}

	raw, err := blobs.Get(ctx, RawImageContainer, "frame_0001_scan-1.webp")
	if err != nil {
		t.Fatalf("get uploaded image: %v", err)
	}
	if string(raw) != "webp bytes" {
		t.Fatalf("uploaded image wrong: %q", raw)
	}

	// Replaying the same message must not clobber the original upload.
	if err := ing.Ingest(ctx, data); !errors.Is(err, blobstore.ErrAlreadyExists) {
		t.Fatalf("replay: want ErrAlreadyExists, got %v", err)
	}
}

func TestIngestWithoutImage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	blobs := blobstore.NewMemory()
	defer blobs.Close()

	ing := NewIngester(IngesterConfig{Store: store, Blobs: blobs})
	data := Data{
		ScanID:     "scan-2",
		Side:       inventory.SideRight,
		AisleIndex: 1,
		PartialItems: []inventory.PartialItem{
			partial("", 1.0, 0.2, 1.0, 1.0),
		},
	}
	if err := ing.Ingest(ctx, data); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := blobs.Get(ctx, RawImageContainer, "_scan-2.webp"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("image uploaded for empty payload: %v", err)
	}
}

func TestRequestRobotRequest(t *testing.T) {
	req := Request{
		Vendor:      "NLS",
		UserID:      "user-1",
		StartHeight: 0.2,
		EndHeight:   1.8,
		HeightStep:  0.4,
		AisleIndex:  3,
		ScanID:      "scan-1",
	}
	out := req.RobotRequest()
	if out.ScanID != "scan-1" {
		t.Fatalf("scan id: %q", out.ScanID)
	}
	if out.WaypointStartIndex != 0 || out.WaypointEndIndex != 0 {
		t.Fatalf("waypoint range defaults wrong: %+v", out)
	}
	if out.WaypointIndices == nil || len(out.WaypointIndices) != 0 {
		t.Fatalf("waypoint indices default wrong: %+v", out.WaypointIndices)
	}

	start, end := 2, 9
	req.WaypointStartIndex = &start
	req.WaypointEndIndex = &end
	req.WaypointIndices = []int{2, 5, 9}
	req.OverwriteScanID = "scan-0"
	out = req.RobotRequest()
	if out.ScanID != "scan-0" {
		t.Fatalf("overwrite scan id not applied: %q", out.ScanID)
	}
	if out.WaypointStartIndex != 2 || out.WaypointEndIndex != 9 || len(out.WaypointIndices) != 3 {
		t.Fatalf("waypoints wrong: %+v", out)
	}
}
