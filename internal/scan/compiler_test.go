package scan

import (
	"context"
	"testing"

	"orbit/internal/geometry"
	"orbit/internal/inventory"
	"orbit/internal/inventory/memory"
)

func typedPartial(id, itemType string, x, y, w, h, confidence float64) inventory.PartialItem {
	p := partial(id, x, y, w, h)
	p.Meta.ItemType = itemType
	p.Meta.Confidence = confidence
	return p
}

func seedFace(t *testing.T, store inventory.Store) {
	t.Helper()
	ctx := context.Background()
	partials := []inventory.PartialItem{
		// One box from two detections.
		typedPartial("", inventory.ItemTypeBox, 1.0, 0.2, 1.0, 1.0, 0.9),
		typedPartial("", inventory.ItemTypeBox, 1.1, 0.25, 1.0, 1.0, 0.85),
		// Below the confidence threshold.
		typedPartial("", inventory.ItemTypeBox, 1.0, 0.2, 1.0, 1.0, 0.1),
		// Degenerate sliver.
		typedPartial("", inventory.ItemTypeBox, 1.0, 0.2, 0.05, 1.0, 0.9),
		// One empty region from two detections.
		typedPartial("", inventory.ItemTypeEmpty, 3.0, 0.2, 1.0, 1.0, 0.9),
		typedPartial("", inventory.ItemTypeEmpty, 3.05, 0.2, 1.0, 1.0, 0.9),
	}
	for _, p := range partials {
		if _, err := store.PutPartialItem(ctx, p); err != nil {
			t.Fatalf("seed partial: %v", err)
		}
	}

	bc := detection("", "123", "Code 128", geometry.Vector3{X: 1.0, Y: 0.5, Z: 0.5})
	if _, err := store.PutPartialBarcode(ctx, bc); err != nil {
		t.Fatalf("seed partial barcode: %v", err)
	}
}

func TestCompile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	seedFace(t, store)

	compiler := NewCompiler(CompilerConfig{Store: store})
	err := compiler.Compile(ctx, CompileRequest{
		ScanID:              "scan-1",
		ConfidenceThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	items, err := store.ListItems(ctx, inventory.ItemQuery{})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 items, got %d", len(items))
	}

	var box, empty *inventory.Item
	for i := range items {
		switch items[i].Meta.ItemType {
		case inventory.ItemTypeBox:
			box = &items[i]
		case inventory.ItemTypeEmpty:
			empty = &items[i]
		}
	}
	if box == nil || empty == nil {
		t.Fatalf("missing compiled types: %+v", items)
	}
	if box.PrimaryBarcode != nil {
		t.Fatal("compiled item carries a primary barcode")
	}
	if box.Meta.AisleIndex != 3 || box.Relative.Side != inventory.SideLeft {
		t.Fatalf("box face wrong: %+v", box.Meta)
	}

	// The barcode landed on the box and was re-expressed in its frame.
	found, err := inventory.FindItemByBarcode(ctx, store, "123")
	if err != nil {
		t.Fatalf("find by barcode: %v", err)
	}
	if found.UUID != box.UUID {
		t.Fatalf("barcode attached to %s, want %s", found.UUID, box.UUID)
	}
	bcs, err := store.ListBarcodesByData(ctx, "123")
	if err != nil {
		t.Fatalf("list barcodes: %v", err)
	}
	if len(bcs) != 1 || bcs[0].Relative.Header.FrameID != "parent_item" {
		t.Fatalf("barcode not reframed: %+v", bcs)
	}
}

func TestCompileOverwrite(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	seedFace(t, store)

	stale := inventory.Item{
		UUID: "stale-box",
		Meta: inventory.ItemMeta{
			ItemType:   inventory.ItemTypeBox,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			AisleIndex: 3,
		},
	}
	conveyor := inventory.Item{
		UUID: "conveyor-1",
		Meta: inventory.ItemMeta{
			ItemType: inventory.ItemTypeConveyor,
			Stack:    []string{},
			Location: inventory.LocationInventory,
		},
	}
	for _, it := range []inventory.Item{stale, conveyor} {
		if err := store.PutItem(ctx, it); err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}
	staleBC := detection("", "999", "GS1-128", geometry.Vector3{X: 9, Y: 9, Z: 9})
	staleBC.ItemUUID = "stale-box"
	if err := store.PutBarcode(ctx, staleBC); err != nil {
		t.Fatalf("seed barcode: %v", err)
	}

	compiler := NewCompiler(CompilerConfig{Store: store})
	err := compiler.Compile(ctx, CompileRequest{
		ScanID:              "scan-1",
		ConfidenceThreshold: 0.5,
		Overwrite:           true,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if got, err := store.GetItem(ctx, "stale-box"); err != nil || got != nil {
		t.Fatalf("stale box survived overwrite: %+v, %v", got, err)
	}
	if got, err := store.GetItem(ctx, "conveyor-1"); err != nil || got == nil {
		t.Fatalf("conveyor removed by overwrite: %v", err)
	}
	if bcs, err := store.ListBarcodesByData(ctx, "999"); err != nil || len(bcs) != 0 {
		t.Fatalf("stale barcode survived overwrite: %+v, %v", bcs, err)
	}
	// The fresh compile still produced its own items and barcode.
	items, err := store.ListItems(ctx, inventory.ItemQuery{ScanID: "scan-1"})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 compiled items, got %d", len(items))
	}
	if bcs, err := store.ListBarcodesByData(ctx, "123"); err != nil || len(bcs) != 1 {
		t.Fatalf("compiled barcode missing: %+v, %v", bcs, err)
	}
}

func TestCompileScopedFace(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	seedFace(t, store)

	// Scope to a face with no partials; nothing is produced.
	side := inventory.SideRight
	aisle := 7
	compiler := NewCompiler(CompilerConfig{Store: store})
	err := compiler.Compile(ctx, CompileRequest{
		ScanID:              "scan-1",
		ConfidenceThreshold: 0.5,
		Side:                &side,
		AisleIndex:          &aisle,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	items, err := store.ListItems(ctx, inventory.ItemQuery{})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("scoped compile produced items: %+v", items)
	}
}
