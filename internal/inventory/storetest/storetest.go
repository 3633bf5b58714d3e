// Package storetest provides a conformance test suite for inventory.Store
// implementations. Store packages call TestStore from their own tests.
package storetest

import (
	"context"
	"testing"

	"orbit/internal/geometry"
	"orbit/internal/inventory"
)

// TestStore runs the conformance suite against a fresh store per subtest.
func TestStore(t *testing.T, newStore func(t *testing.T) inventory.Store) {
	t.Run("ItemRoundTrip", func(t *testing.T) { testItemRoundTrip(t, newStore(t)) })
	t.Run("ItemMissing", func(t *testing.T) { testItemMissing(t, newStore(t)) })
	t.Run("ListItems", func(t *testing.T) { testListItems(t, newStore(t)) })
	t.Run("FindNearby", func(t *testing.T) { testFindNearby(t, newStore(t)) })
	t.Run("FindBestEmpty", func(t *testing.T) { testFindBestEmpty(t, newStore(t)) })
	t.Run("StackMembership", func(t *testing.T) { testStackMembership(t, newStore(t)) })
	t.Run("DeleteItemsExceptType", func(t *testing.T) { testDeleteItemsExceptType(t, newStore(t)) })
	t.Run("Barcodes", func(t *testing.T) { testBarcodes(t, newStore(t)) })
	t.Run("Partials", func(t *testing.T) { testPartials(t, newStore(t)) })
	t.Run("BatchesAndJobs", func(t *testing.T) { testBatchesAndJobs(t, newStore(t)) })
	t.Run("ScanImages", func(t *testing.T) { testScanImages(t, newStore(t)) })
	t.Run("Renders", func(t *testing.T) { testRenders(t, newStore(t)) })
}

// Item constructs a box item centered at (cx, cy) with the given relative
// dimensions, aligned on the x axis. Exported for use by other test suites.
func Item(uuid string, aisle int, side string, cx, cy, w, h float64) inventory.Item {
	return inventory.Item{
		UUID: uuid,
		Meta: inventory.ItemMeta{
			ItemType:   inventory.ItemTypeBox,
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: aisle,
			Stack:      []string{},
		},
		Absolute: inventory.ItemAbsolute{
			Position:    geometry.Vector3{X: cx, Y: cy - h/2, Z: 0},
			AlignedAxis: "x",
		},
		Relative: inventory.ItemRelative{
			Dimension: geometry.Vector3{X: w, Y: h},
			Side:      side,
		},
	}
}

// Empty constructs an empty-region item on the same footprint convention.
func Empty(uuid string, aisle int, side string, cx, cy, w, h float64) inventory.Item {
	it := Item(uuid, aisle, side, cx, cy, w, h)
	it.Meta.ItemType = inventory.ItemTypeEmpty
	it.Meta.Available = false
	return it
}

func mustPut(t *testing.T, s inventory.Store, items ...inventory.Item) {
	t.Helper()
	for _, it := range items {
		if err := s.PutItem(context.Background(), it); err != nil {
			t.Fatalf("PutItem(%s): %v", it.UUID, err)
		}
	}
}

func testItemRoundTrip(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	it := Item("item-1", 3, inventory.SideLeft, 1.5, 0.8, 0.4, 0.3)
	// Fields excluded from the wire form must still survive the store.
	it.Absolute.Dimension = &geometry.Vector3{X: 0.4, Y: 0.3, Z: 0.5}
	it.Relative.Header = &inventory.Header{FrameID: "map", Stamp: inventory.Timestamp{Sec: 12, Nanosec: 34}}
	it.Relative.Position = &geometry.Vector3{X: 0.1, Y: 0.2, Z: 0.3}
	it.Absolute.Waypoint = inventory.StringPtr("wp-7")
	it.Absolute.DepthIndex = inventory.IntPtr(2)
	it.Meta.Destination = inventory.StringPtr("dest-uuid")
	it.Meta.Stack = []string{"other-uuid"}

	mustPut(t, s, it)

	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got == nil {
		t.Fatal("GetItem returned nil for existing item")
	}
	if got.UUID != it.UUID || got.Meta.ItemType != it.Meta.ItemType {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Absolute.Dimension == nil || got.Absolute.Dimension.Z != 0.5 {
		t.Errorf("absolute dimension lost: %+v", got.Absolute.Dimension)
	}
	if got.Relative.Header == nil || got.Relative.Header.FrameID != "map" {
		t.Errorf("relative header lost: %+v", got.Relative.Header)
	}
	if got.Relative.Position == nil || got.Relative.Position.Z != 0.3 {
		t.Errorf("relative position lost: %+v", got.Relative.Position)
	}
	if got.Absolute.Waypoint == nil || *got.Absolute.Waypoint != "wp-7" {
		t.Errorf("waypoint lost: %v", got.Absolute.Waypoint)
	}
	if got.Meta.Destination == nil || *got.Meta.Destination != "dest-uuid" {
		t.Errorf("destination lost: %v", got.Meta.Destination)
	}
	if len(got.Meta.Stack) != 1 || got.Meta.Stack[0] != "other-uuid" {
		t.Errorf("stack lost: %v", got.Meta.Stack)
	}

	// Overwrite with same uuid.
	it.Meta.Available = false
	mustPut(t, s, it)
	got, err = s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem after update: %v", err)
	}
	if got.Meta.Available {
		t.Error("update did not overwrite")
	}

	if err := s.DeleteItem(ctx, "item-1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	got, err = s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem after delete: %v", err)
	}
	if got != nil {
		t.Error("item still present after delete")
	}
}

func testItemMissing(t *testing.T, s inventory.Store) {
	defer s.Close()
	got, err := s.GetItem(context.Background(), "no-such-uuid")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing item, got %+v", got)
	}
}

func testListItems(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	a := Item("a", 1, inventory.SideLeft, 0.5, 0.5, 0.3, 0.3)
	b := Item("b", 1, inventory.SideRight, 0.5, 0.5, 0.3, 0.3)
	c := Empty("c", 1, inventory.SideLeft, 2.0, 0.5, 0.5, 0.5)
	d := Item("d", 2, inventory.SideLeft, 0.5, 0.5, 0.3, 0.3)
	d.Meta.Location = inventory.LocationRobot
	mustPut(t, s, a, b, c, d)

	aisle := 1
	got, err := s.ListItems(ctx, inventory.ItemQuery{AisleIndex: &aisle, Side: inventory.SideLeft})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 2 || got[0].UUID != "a" || got[1].UUID != "c" {
		t.Errorf("aisle+side filter: got %d items", len(got))
	}

	got, err = s.ListItems(ctx, inventory.ItemQuery{ItemType: inventory.ItemTypeEmpty})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "c" {
		t.Errorf("type filter: got %d items", len(got))
	}

	got, err = s.ListItems(ctx, inventory.ItemQuery{Location: inventory.LocationRobot})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "d" {
		t.Errorf("location filter: got %d items", len(got))
	}
}

func testFindNearby(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	center := Item("center", 1, inventory.SideLeft, 5.0, 1.0, 0.4, 0.4)
	near := Item("near", 1, inventory.SideLeft, 5.5, 1.2, 0.4, 0.4)
	// Position exactly on the window edge must be excluded.
	edge := Item("edge", 1, inventory.SideLeft, 6.0, 1.0, 0.4, 0.4)
	farX := Item("far-x", 1, inventory.SideLeft, 8.0, 1.0, 0.4, 0.4)
	otherSide := Item("other-side", 1, inventory.SideRight, 5.0, 1.0, 0.4, 0.4)
	otherAisle := Item("other-aisle", 2, inventory.SideLeft, 5.0, 1.0, 0.4, 0.4)
	// Tall empty sitting at y = 0.5. Its extent reaches y = 1.7, but window
	// membership is decided by the position alone.
	tall := Empty("tall", 1, inventory.SideLeft, 5.0, 1.1, 0.5, 1.2)
	mustPut(t, s, center, near, edge, farX, otherSide, otherAisle, tall)

	got, err := s.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: 1, Side: inventory.SideLeft,
		CX: 5.0, CY: 1.0, DX: 1.0, DY: 1.0,
	})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	want := map[string]bool{"center": true, "near": true, "tall": true}
	if len(got) != len(want) {
		t.Fatalf("FindNearby: got %d items, want %d", len(got), len(want))
	}
	for _, it := range got {
		if !want[it.UUID] {
			t.Errorf("unexpected item %s in window", it.UUID)
		}
	}

	// Type filter.
	got, err = s.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: 1, Side: inventory.SideLeft,
		CX: 5.0, CY: 1.0, DX: 1.0, DY: 1.0,
		ItemType: inventory.ItemTypeEmpty,
	})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "tall" {
		t.Errorf("type filter failed: got %d items", len(got))
	}

	// A window anchored at shelf level still admits the tall empty: its
	// position y = 0.5 is inside (-1, 1) even though its midpoint is not.
	got, err = s.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: 1, Side: inventory.SideLeft,
		CX: 5.0, CY: 0, DX: 1.0, DY: 1.0,
		ItemType: inventory.ItemTypeEmpty,
	})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "tall" {
		t.Fatalf("shelf-level window: got %d items, want tall empty", len(got))
	}
}

func testFindBestEmpty(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	big := Empty("big", 1, inventory.SideLeft, 1.0, 1.0, 1.0, 1.0)
	small := Empty("small", 1, inventory.SideLeft, 3.0, 1.0, 0.5, 0.5)
	tiny := Empty("tiny", 1, inventory.SideLeft, 5.0, 1.0, 0.2, 0.2)
	box := Item("box", 1, inventory.SideLeft, 7.0, 1.0, 0.6, 0.6)
	mustPut(t, s, big, small, tiny, box)

	got, err := s.FindBestEmpty(ctx, 1, inventory.SideLeft, 0.3, 0.3)
	if err != nil {
		t.Fatalf("FindBestEmpty: %v", err)
	}
	if got == nil || got.UUID != "small" {
		t.Errorf("expected smallest fitting empty, got %+v", got)
	}

	// Exact equality must not fit.
	got, err = s.FindBestEmpty(ctx, 1, inventory.SideLeft, 0.5, 0.5)
	if err != nil {
		t.Fatalf("FindBestEmpty: %v", err)
	}
	if got == nil || got.UUID != "big" {
		t.Errorf("expected strict fit to skip equal empty, got %+v", got)
	}

	got, err = s.FindBestEmpty(ctx, 1, inventory.SideLeft, 2.0, 2.0)
	if err != nil {
		t.Fatalf("FindBestEmpty: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil when nothing fits, got %+v", got)
	}
}

func testStackMembership(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	base := Item("base", 1, inventory.SideLeft, 1.0, 0.5, 0.5, 0.5)
	base.Meta.Stack = []string{"top"}
	top := Item("top", 1, inventory.SideLeft, 1.0, 1.0, 0.4, 0.4)
	other := Item("other", 1, inventory.SideLeft, 3.0, 0.5, 0.5, 0.5)
	mustPut(t, s, base, top, other)

	got, err := s.FindItemsWithInStack(ctx, "top")
	if err != nil {
		t.Fatalf("FindItemsWithInStack: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "base" {
		t.Errorf("expected base, got %d items", len(got))
	}

	// Rewriting the item replaces its stack.
	base.Meta.Stack = []string{}
	mustPut(t, s, base)
	got, err = s.FindItemsWithInStack(ctx, "top")
	if err != nil {
		t.Fatalf("FindItemsWithInStack: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale stack membership: got %d items", len(got))
	}
}

func testDeleteItemsExceptType(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	box := Item("box", 1, inventory.SideLeft, 1.0, 0.5, 0.5, 0.5)
	empty := Empty("empty", 1, inventory.SideLeft, 2.0, 0.5, 0.5, 0.5)
	conveyor := Item("conveyor", 1, inventory.SideLeft, 3.0, 0.5, 0.5, 0.5)
	conveyor.Meta.ItemType = inventory.ItemTypeConveyor
	mustPut(t, s, box, empty, conveyor)

	removed, err := s.DeleteItemsExceptType(ctx, inventory.ItemTypeConveyor)
	if err != nil {
		t.Fatalf("DeleteItemsExceptType: %v", err)
	}
	if len(removed) != 2 || removed[0] != "box" || removed[1] != "empty" {
		t.Errorf("removed = %v", removed)
	}
	got, err := s.GetItem(ctx, "conveyor")
	if err != nil || got == nil {
		t.Fatalf("conveyor should survive sweep: %v, %v", got, err)
	}
}

func testBarcodes(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	bc := func(id, data, typ, item string) inventory.Barcode {
		return inventory.Barcode{
			ID:       id,
			Meta:     inventory.BarcodeMeta{Data: data, BarcodeType: typ, AisleIndex: 1},
			ItemUUID: item,
		}
	}
	for _, b := range []inventory.Barcode{
		bc("b1", "00100897774117552794", "GS1-128", "item-1"),
		bc("b2", "qr-payload", "QR Code", "item-1"),
		bc("b3", "00100897774116019311", "Code 128", "item-2"),
	} {
		if err := s.PutBarcode(ctx, b); err != nil {
			t.Fatalf("PutBarcode(%s): %v", b.ID, err)
		}
	}

	got, err := s.ListBarcodesByData(ctx, "00100897774117552794")
	if err != nil {
		t.Fatalf("ListBarcodesByData: %v", err)
	}
	if len(got) != 1 || got[0].ItemUUID != "item-1" {
		t.Errorf("by data: got %d", len(got))
	}

	got, err = s.ListBarcodesByAnyData(ctx, []string{"00100897774117552794", "00100897774116019311"})
	if err != nil {
		t.Fatalf("ListBarcodesByAnyData: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("by any data: got %d", len(got))
	}

	primary, err := s.FindPrimaryBarcode(ctx, "item-1")
	if err != nil {
		t.Fatalf("FindPrimaryBarcode: %v", err)
	}
	if primary == nil || primary.ID != "b1" {
		t.Errorf("primary = %+v, want b1", primary)
	}

	// An item with only non-primary symbologies has no primary barcode.
	if err := s.PutBarcode(ctx, bc("b4", "qr-2", "QR Code", "item-3")); err != nil {
		t.Fatalf("PutBarcode: %v", err)
	}
	primary, err = s.FindPrimaryBarcode(ctx, "item-3")
	if err != nil {
		t.Fatalf("FindPrimaryBarcode: %v", err)
	}
	if primary != nil {
		t.Errorf("expected nil primary, got %+v", primary)
	}

	if err := s.DeleteBarcodesByItem(ctx, "item-1"); err != nil {
		t.Fatalf("DeleteBarcodesByItem: %v", err)
	}
	got, err = s.ListBarcodesByAnyData(ctx, []string{"00100897774117552794", "qr-payload", "00100897774116019311"})
	if err != nil {
		t.Fatalf("ListBarcodesByAnyData: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b3" {
		t.Errorf("after delete by item: got %d", len(got))
	}

	if err := s.DeleteAllBarcodes(ctx); err != nil {
		t.Fatalf("DeleteAllBarcodes: %v", err)
	}
	got, err = s.ListBarcodesByData(ctx, "00100897774116019311")
	if err != nil {
		t.Fatalf("ListBarcodesByData: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("after delete all: got %d", len(got))
	}
}

func testPartials(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	p := func(x float64, conf float64) inventory.PartialItem {
		return inventory.PartialItem{
			Meta: inventory.PartialItemMeta{
				ItemType: inventory.ItemTypeBox, Confidence: conf,
				ScanID: "scan-1", AisleIndex: 1,
			},
			Relative: inventory.PartialItemRelative{
				Dimension: geometry.Vector3{X: 0.4, Y: 0.3},
				Side:      inventory.SideLeft,
			},
			Absolute: inventory.PartialItemAbsolute{
				Position:    geometry.Vector3{X: x, Y: 0.5},
				AlignedAxis: "x",
			},
		}
	}
	// Insert out of order; the list must come back sorted by position.
	for _, part := range []inventory.PartialItem{p(2.0, 0.9), p(0.5, 0.8), p(1.2, 0.3)} {
		if _, err := s.PutPartialItem(ctx, part); err != nil {
			t.Fatalf("PutPartialItem: %v", err)
		}
	}

	got, err := s.ListPartialItems(ctx, inventory.PartialItemQuery{
		ScanID: "scan-1", AisleIndex: 1, Side: inventory.SideLeft, ItemType: inventory.ItemTypeBox,
	})
	if err != nil {
		t.Fatalf("ListPartialItems: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d partials", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Absolute.Position.X > got[i].Absolute.Position.X {
			t.Errorf("partials not sorted by x: %v then %v", got[i-1].Absolute.Position.X, got[i].Absolute.Position.X)
		}
	}

	got, err = s.ListPartialItems(ctx, inventory.PartialItemQuery{
		ScanID: "scan-1", AisleIndex: 1, Side: inventory.SideLeft, MinConfidence: 0.5,
	})
	if err != nil {
		t.Fatalf("ListPartialItems: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("confidence filter: got %d", len(got))
	}

	bc := inventory.Barcode{
		Meta:     inventory.BarcodeMeta{Data: "data", BarcodeType: "GS1-128", ScanID: "scan-1", AisleIndex: 1},
		Relative: inventory.BarcodeRelative{Side: inventory.SideLeft},
	}
	if _, err := s.PutPartialBarcode(ctx, bc); err != nil {
		t.Fatalf("PutPartialBarcode: %v", err)
	}
	gotBC, err := s.ListPartialBarcodes(ctx, "scan-1", 1, inventory.SideLeft)
	if err != nil {
		t.Fatalf("ListPartialBarcodes: %v", err)
	}
	if len(gotBC) != 1 {
		t.Errorf("got %d partial barcodes", len(gotBC))
	}

	aisles, err := s.DistinctPartialAisles(ctx, "scan-1")
	if err != nil {
		t.Fatalf("DistinctPartialAisles: %v", err)
	}
	if len(aisles) != 1 || aisles[0] != 1 {
		t.Errorf("aisles = %v", aisles)
	}

	if err := s.DeletePartials(ctx, "scan-1"); err != nil {
		t.Fatalf("DeletePartials: %v", err)
	}
	got, err = s.ListPartialItems(ctx, inventory.PartialItemQuery{ScanID: "scan-1", AisleIndex: 1, Side: inventory.SideLeft})
	if err != nil {
		t.Fatalf("ListPartialItems: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("partials survive sweep: %d", len(got))
	}
}

func testBatchesAndJobs(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	job := inventory.RobotJob{
		JobID:   "job-1",
		JobType: inventory.JobFetchInventory,
		Item:    Item("item-1", 1, inventory.SideLeft, 1.0, 0.5, 0.4, 0.3),
	}
	batch := inventory.RobotBatch{BatchID: "batch-1", Jobs: []inventory.RobotJob{job}}
	if err := s.PutBatch(ctx, batch); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	gotBatch, err := s.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if gotBatch == nil || len(gotBatch.Jobs) != 1 || gotBatch.Jobs[0].JobID != "job-1" {
		t.Errorf("batch round trip: %+v", gotBatch)
	}

	// Record the outcome and overwrite.
	job.Attempted = inventory.BoolPtr(true)
	job.Success = inventory.BoolPtr(false)
	job.ErrorCode = inventory.IntPtr(7)
	job.ErrorMessage = "gripper fault"
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob update: %v", err)
	}
	gotJob, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if gotJob == nil || gotJob.Success == nil || *gotJob.Success || gotJob.ErrorCode == nil || *gotJob.ErrorCode != 7 {
		t.Errorf("job outcome round trip: %+v", gotJob)
	}

	missing, err := s.GetBatch(ctx, "no-such-batch")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing batch")
	}
}

func testScanImages(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	img := inventory.ScanImage{
		ImageFilename:   "1723357550_left_3.webp",
		ImageBottomLeft: geometry.Vector2{X: 0, Y: 0},
		ImageTopRight:   geometry.Vector2{X: 4, Y: 2},
		ScanID:          "scan-1",
		Side:            inventory.SideLeft,
		AisleIndex:      3,
	}
	id, err := s.PutScanImage(ctx, img)
	if err != nil {
		t.Fatalf("PutScanImage: %v", err)
	}
	if id == "" {
		t.Fatal("PutScanImage returned empty id")
	}

	got, err := s.ListScanImages(ctx, "scan-1", 3, inventory.SideLeft)
	if err != nil {
		t.Fatalf("ListScanImages: %v", err)
	}
	if len(got) != 1 || got[0].ImageFilename != img.ImageFilename {
		t.Errorf("scan image round trip: %+v", got)
	}

	aisles, err := s.DistinctScanImageAisles(ctx, "scan-1")
	if err != nil {
		t.Fatalf("DistinctScanImageAisles: %v", err)
	}
	if len(aisles) != 1 || aisles[0] != 3 {
		t.Errorf("aisles = %v", aisles)
	}
}

func testRenders(t *testing.T, s inventory.Store) {
	defer s.Close()
	ctx := context.Background()

	r := inventory.Render{
		Meta: inventory.RenderMeta{Side: inventory.SideLeft, AisleIndex: 2},
		Data: []inventory.RenderItemData{
			{Item: Item("item-1", 2, inventory.SideLeft, 1.0, 0.5, 0.4, 0.3), X0: 0.8, Y0: 0.35, X1: 1.2, Y1: 0.65},
		},
		CreatedAtUTC: 1723357550,
	}
	if err := s.ReplaceRender(ctx, r); err != nil {
		t.Fatalf("ReplaceRender: %v", err)
	}

	got, err := s.GetRender(ctx, inventory.SideLeft, 2)
	if err != nil {
		t.Fatalf("GetRender: %v", err)
	}
	if got == nil || len(got.Data) != 1 || got.CreatedAtUTC != 1723357550 {
		t.Errorf("render round trip: %+v", got)
	}

	// Replacement drops the previous snapshot for the face.
	r.Data = nil
	r.CreatedAtUTC = 1723357999
	if err := s.ReplaceRender(ctx, r); err != nil {
		t.Fatalf("ReplaceRender: %v", err)
	}
	got, err = s.GetRender(ctx, inventory.SideLeft, 2)
	if err != nil {
		t.Fatalf("GetRender: %v", err)
	}
	if got == nil || len(got.Data) != 0 || got.CreatedAtUTC != 1723357999 {
		t.Errorf("render replace: %+v", got)
	}

	missing, err := s.GetRender(ctx, inventory.SideRight, 2)
	if err != nil {
		t.Fatalf("GetRender: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing render")
	}
}
