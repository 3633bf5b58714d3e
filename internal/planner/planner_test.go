package planner

import (
	"context"
	"errors"
	"math"
	"testing"

	"orbit/internal/geometry"
	"orbit/internal/inventory"
	"orbit/internal/inventory/memory"
	"orbit/internal/jobtype"
)

const (
	boxUUID      = "c4440f6a-7638-4872-91a2-7be10db915aa"
	boxBarcode   = "00100897774117552794"
	targetUUID   = "3ebae2d5-2f27-4150-abee-12e62511dbe5"
	targetBC     = "00100897774116019311"
	stackedUUID  = "4a6f4a2a-610c-436f-96fa-230597d59815"
	stackedBC    = "00100897774116447297"
	conveyorUUID = "5d62cadd-764a-4bb7-9839-739211ae1863"
	robotUUID    = "c6b452d3-7388-4716-a261-b1a0b6ec9268"
	robotBC      = "00100897774118155667"
	destUUID     = "aa451fb0-50fe-4d45-896b-776d80d07c51"
)

func testTypes() jobtype.Source {
	return jobtype.NewStatic([]jobtype.Type{
		{Vendor: "RUBIC", JobType: "FETCH_INVENTORY", GenericType: inventory.JobFetchInventory},
		{Vendor: "RUBIC", JobType: "STORE_INVENTORY", GenericType: inventory.JobStoreInventory},
		{Vendor: "NLS", JobType: "INT1", GenericType: inventory.JobFetchDesignated, Predetermined: true, ItemUUID: conveyorUUID},
		{Vendor: "NLS", JobType: "INT2", GenericType: inventory.JobStoreDesignated, Predetermined: true, ItemUUID: conveyorUUID},
	})
}

func newPlanner(store inventory.Store) *Planner {
	return New(Config{Store: store, Types: testTypes()})
}

func shelfItem(uuid, itemType string, aisle int, x, y, w, h float64) inventory.Item {
	return inventory.Item{
		UUID: uuid,
		Meta: inventory.ItemMeta{
			ItemType:   itemType,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: aisle,
		},
		Absolute: inventory.ItemAbsolute{
			Position:    geometry.Vector3{X: x, Y: y, Z: 0.4},
			AlignedAxis: "x",
		},
		Relative: inventory.ItemRelative{
			Dimension: geometry.Vector3{X: w, Y: h},
			Side:      inventory.SideLeft,
		},
	}
}

func primary(data, itemUUID string) inventory.Barcode {
	return inventory.Barcode{
		Meta:     inventory.BarcodeMeta{BarcodeType: "Code 128", Data: data},
		ItemUUID: itemUUID,
	}
}

func seed(t *testing.T, store inventory.Store, items []inventory.Item, barcodes []inventory.Barcode) {
	t.Helper()
	ctx := context.Background()
	for _, it := range items {
		if err := store.PutItem(ctx, it); err != nil {
			t.Fatalf("seed item %s: %v", it.UUID, err)
		}
	}
	for _, bc := range barcodes {
		if err := store.PutBarcode(ctx, bc); err != nil {
			t.Fatalf("seed barcode %s: %v", bc.Meta.Data, err)
		}
	}
}

func TestPlanSimpleFetch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	seed(t, store,
		[]inventory.Item{shelfItem(boxUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.5, 0.5)},
		[]inventory.Barcode{primary(boxBarcode, boxUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: boxBarcode},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batch.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d", len(batch.Jobs))
	}
	job := batch.Jobs[0]
	if job.JobType != inventory.JobFetchInventory || job.Item.UUID != boxUUID {
		t.Fatalf("job wrong: %+v", job)
	}
	if job.FutureUUID != "" {
		t.Fatalf("unstacked fetch has future uuid %q", job.FutureUUID)
	}
	if job.Item.PrimaryBarcode == nil || job.Item.PrimaryBarcode.Meta.Data != boxBarcode {
		t.Fatalf("primary barcode not attached: %+v", job.Item.PrimaryBarcode)
	}

	// Batch and jobs are persisted.
	stored, err := store.GetBatch(ctx, batch.BatchID)
	if err != nil || stored == nil {
		t.Fatalf("batch not persisted: %v", err)
	}
	if got, err := store.GetJob(ctx, job.JobID); err != nil || got == nil {
		t.Fatalf("job not persisted: %v", err)
	}
}

func TestPlanStackedFetch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	target := shelfItem(targetUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.6, 0.6)
	target.Meta.Stack = []string{stackedUUID}
	stacked := shelfItem(stackedUUID, inventory.ItemTypeBox, 1, 2.0, 0.6, 0.5, 0.5)
	seed(t, store,
		[]inventory.Item{target, stacked},
		[]inventory.Barcode{primary(targetBC, targetUUID), primary(stackedBC, stackedUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: targetBC},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batch.Jobs) != 3 {
		t.Fatalf("want 3 jobs, got %d", len(batch.Jobs))
	}

	// Clear the stack first, fetch the target, then store the stacked item
	// back into the empty the target leaves behind.
	if batch.Jobs[0].JobType != inventory.JobFetchInventory || batch.Jobs[0].Item.UUID != stackedUUID {
		t.Fatalf("job 0 wrong: %+v", batch.Jobs[0])
	}
	if batch.Jobs[1].JobType != inventory.JobFetchInventory || batch.Jobs[1].Item.UUID != targetUUID {
		t.Fatalf("job 1 wrong: %+v", batch.Jobs[1])
	}
	future := batch.Jobs[1].FutureUUID
	if future == "" {
		t.Fatal("target fetch has no future uuid")
	}
	store2 := batch.Jobs[2]
	if store2.JobType != inventory.JobStoreInventory || store2.Item.UUID != stackedUUID {
		t.Fatalf("job 2 wrong: %+v", store2)
	}
	if store2.Destination == nil || store2.Destination.UUID != future {
		t.Fatalf("store-back destination wrong: %+v", store2.Destination)
	}
	dest := store2.Destination
	if dest.Meta.ItemType != inventory.ItemTypeEmpty || !dest.Meta.Available ||
		dest.Meta.Location != inventory.LocationInventory {
		t.Fatalf("future empty meta wrong: %+v", dest.Meta)
	}
	if dest.Absolute.Position != target.Absolute.Position {
		t.Fatalf("future empty not at target footprint: %+v", dest.Absolute.Position)
	}
}

func TestPlanStackedEmptySkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	target := shelfItem(targetUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.6, 0.6)
	target.Meta.Stack = []string{stackedUUID}
	stackedEmpty := shelfItem(stackedUUID, inventory.ItemTypeEmpty, 1, 2.0, 0.6, 0.5, 0.5)
	seed(t, store,
		[]inventory.Item{target, stackedEmpty},
		[]inventory.Barcode{primary(targetBC, targetUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: targetBC},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// The stacked empty is skipped without a redundant fetch/store pair.
	if len(batch.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d", len(batch.Jobs))
	}
	if batch.Jobs[0].FutureUUID != "" {
		t.Fatalf("future uuid set without store-backs: %q", batch.Jobs[0].FutureUUID)
	}
}

func TestPlanStackRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	target := shelfItem(targetUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.6, 0.6)
	target.Meta.Stack = []string{"a-1", "a-2"}
	seed(t, store, []inventory.Item{target}, []inventory.Barcode{primary(targetBC, targetUUID)})

	_, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: targetBC},
	})
	if !errors.Is(err, ErrMultipleStacked) {
		t.Fatalf("want ErrMultipleStacked, got %v", err)
	}

	// One stacked item, but it carries its own stack.
	target.Meta.Stack = []string{stackedUUID}
	stacked := shelfItem(stackedUUID, inventory.ItemTypeBox, 1, 2.0, 0.6, 0.5, 0.5)
	stacked.Meta.Stack = []string{"deeper"}
	seed(t, store, []inventory.Item{target, stacked}, nil)

	_, err = newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: targetBC},
	})
	if !errors.Is(err, ErrDoubleStacked) {
		t.Fatalf("want ErrDoubleStacked, got %v", err)
	}
}

func TestPlanFetchDesignated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()
	conveyor := shelfItem(conveyorUUID, inventory.ItemTypeConveyor, 0, 0, 0, 1.0, 1.0)
	seed(t, store, []inventory.Item{conveyor}, nil)

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "INT1", Vendor: "NLS", UID: "00100897774117552794"},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batch.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d", len(batch.Jobs))
	}
	job := batch.Jobs[0]
	if job.JobType != inventory.JobFetchDesignated || job.Item.UUID != conveyorUUID {
		t.Fatalf("job wrong: %+v", job)
	}
	if job.Item.Meta.ItemType != inventory.ItemTypeConveyor {
		t.Fatalf("item type wrong: %q", job.Item.Meta.ItemType)
	}
}

func TestPlanStoreExplicitDestination(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	onRobot := shelfItem(robotUUID, inventory.ItemTypeBox, 1, 0, 0, 0.5, 0.5)
	onRobot.Meta.Location = inventory.LocationRobot
	onRobot.Meta.Available = false
	dest := shelfItem(destUUID, inventory.ItemTypeEmpty, 1, 2.0, 0, 2.0, 1.0)
	seed(t, store, []inventory.Item{onRobot, dest}, []inventory.Barcode{primary(robotBC, robotUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: robotBC, DestinationUUID: destUUID},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batch.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d", len(batch.Jobs))
	}
	job := batch.Jobs[0]
	if job.JobType != inventory.JobStoreInventory || job.Item.UUID != robotUUID {
		t.Fatalf("job wrong: %+v", job)
	}
	if job.Destination == nil || job.Destination.UUID != destUUID {
		t.Fatalf("destination wrong: %+v", job.Destination)
	}
}

func TestPlanStoreRejectsBadDestination(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	onRobot := shelfItem(robotUUID, inventory.ItemTypeBox, 1, 0, 0, 0.5, 0.5)
	onRobot.Meta.Location = inventory.LocationRobot
	onRobot.Meta.Available = false
	occupied := shelfItem(destUUID, inventory.ItemTypeBox, 1, 2.0, 0, 2.0, 1.0)
	seed(t, store, []inventory.Item{onRobot, occupied}, []inventory.Barcode{primary(robotBC, robotUUID)})

	_, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: robotBC, DestinationUUID: destUUID},
	})
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("want ErrInvalidDestination, got %v", err)
	}
}

func TestPlanStoreRejectsItemNotOnRobot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	shelved := shelfItem(robotUUID, inventory.ItemTypeBox, 1, 0, 0, 0.5, 0.5)
	dest := shelfItem(destUUID, inventory.ItemTypeEmpty, 1, 2.0, 0, 2.0, 1.0)
	seed(t, store, []inventory.Item{shelved, dest}, []inventory.Barcode{primary(robotBC, robotUUID)})

	_, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: robotBC, DestinationUUID: destUUID},
	})
	if err == nil {
		t.Fatal("want error for item still in inventory")
	}
}

func TestPlanFetchThenStore(t *testing.T) {
	// A store may follow a fetch of the same item inside one batch: the
	// item is still shelved when planning, but the fetch makes it pending.
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	box := shelfItem(boxUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.5, 0.5)
	spare := shelfItem(destUUID, inventory.ItemTypeEmpty, 1, 5.0, 0, 2.0, 1.0)
	seed(t, store, []inventory.Item{box, spare}, []inventory.Barcode{primary(boxBarcode, boxUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: boxBarcode},
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: boxBarcode},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batch.Jobs) != 2 {
		t.Fatalf("want 2 jobs, got %d", len(batch.Jobs))
	}
	if batch.Jobs[1].Destination == nil || batch.Jobs[1].Destination.UUID != destUUID {
		t.Fatalf("store destination wrong: %+v", batch.Jobs[1].Destination)
	}
}

func TestFindEmptyForStoreSidePreference(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	onRobot := shelfItem(robotUUID, inventory.ItemTypeBox, 1, 9.0, 0, 0.5, 0.5)
	onRobot.Meta.Location = inventory.LocationRobot
	onRobot.Meta.Available = false
	// Empty spans [1,3]; a box sits flush against its left edge.
	empty := shelfItem(destUUID, inventory.ItemTypeEmpty, 1, 2.0, 0, 2.0, 1.0)
	neighbor := shelfItem("box-left", inventory.ItemTypeBox, 1, 0.5, 0, 1.0, 1.0)
	seed(t, store, []inventory.Item{onRobot, empty, neighbor}, []inventory.Barcode{primary(robotBC, robotUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: robotBC},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	dest := batch.Jobs[0].Destination
	if dest == nil || dest.UUID != destUUID {
		t.Fatalf("destination should keep the empty's uuid: %+v", dest)
	}
	// Width 0.5 plus margins, flush against the left edge of the empty.
	wantWidth := 0.5 + 2*StoreMargin
	box, err := dest.BoundingBox()
	if err != nil {
		t.Fatalf("bbox: %v", err)
	}
	if math.Abs(box.BottomLeft.X-1.0) > 1e-9 || math.Abs(box.TopRight.X-(1.0+wantWidth)) > 1e-9 {
		t.Fatalf("destination not flush left: %+v", box)
	}
	if math.Abs(dest.Relative.Dimension.X-wantWidth) > 1e-9 || math.Abs(dest.Relative.Dimension.Y-1.0) > 1e-9 {
		t.Fatalf("destination dimensions wrong: %+v", dest.Relative.Dimension)
	}
	if dest.Absolute.Position.Z != 0.4 {
		t.Fatalf("z not preserved: %v", dest.Absolute.Position.Z)
	}
}

func TestFindEmptyForStoreCenteredOverBox(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	onRobot := shelfItem(robotUUID, inventory.ItemTypeBox, 1, 9.0, 0, 0.5, 0.5)
	onRobot.Meta.Location = inventory.LocationRobot
	onRobot.Meta.Available = false
	// The empty rides on a box: a stacked store keeps the whole empty.
	empty := shelfItem(destUUID, inventory.ItemTypeEmpty, 1, 2.0, 0.8, 2.0, 1.0)
	carrier := shelfItem("box-below", inventory.ItemTypeBox, 1, 2.0, 0, 1.6, 0.8)
	seed(t, store, []inventory.Item{onRobot, empty, carrier}, []inventory.Barcode{primary(robotBC, robotUUID)})

	batch, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "STORE_INVENTORY", Vendor: "RUBIC", UID: robotBC},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	dest := batch.Jobs[0].Destination
	if dest.UUID != destUUID || dest.Relative.Dimension.X != 2.0 {
		t.Fatalf("empty should be returned unchanged: %+v", dest)
	}
}

func TestPlanDeterminism(t *testing.T) {
	ctx := context.Background()
	req := BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: targetBC},
	}

	plan := func() inventory.RobotBatch {
		store := memory.New()
		defer store.Close()
		target := shelfItem(targetUUID, inventory.ItemTypeBox, 1, 2.0, 0, 0.6, 0.6)
		target.Meta.Stack = []string{stackedUUID}
		stacked := shelfItem(stackedUUID, inventory.ItemTypeBox, 1, 2.0, 0.6, 0.5, 0.5)
		seed(t, store,
			[]inventory.Item{target, stacked},
			[]inventory.Barcode{primary(targetBC, targetUUID), primary(stackedBC, stackedUUID)})
		batch, err := newPlanner(store).PlanBatch(ctx, req)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		return batch
	}

	a, b := plan(), plan()
	if len(a.Jobs) != len(b.Jobs) {
		t.Fatalf("job counts differ: %d vs %d", len(a.Jobs), len(b.Jobs))
	}
	for i := range a.Jobs {
		if a.Jobs[i].JobType != b.Jobs[i].JobType || a.Jobs[i].Item.UUID != b.Jobs[i].Item.UUID {
			t.Fatalf("job %d differs: %+v vs %+v", i, a.Jobs[i], b.Jobs[i])
		}
	}
}

func TestPlanUnknownJobType(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	_, err := newPlanner(store).PlanBatch(ctx, BatchRequest{
		{JobType: "NOPE", Vendor: "RUBIC", UID: boxBarcode},
	})
	if !errors.Is(err, inventory.ErrMissingEntity) {
		t.Fatalf("want ErrMissingEntity, got %v", err)
	}
}
