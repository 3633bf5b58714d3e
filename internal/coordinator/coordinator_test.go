package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"orbit/internal/blobstore"
	"orbit/internal/broker"
	brokermem "orbit/internal/broker/memory"
	"orbit/internal/geometry"
	"orbit/internal/inventory"
	"orbit/internal/inventory/memory"
	"orbit/internal/jobtype"
	"orbit/internal/planner"
	"orbit/internal/reconcile"
	"orbit/internal/render"
	"orbit/internal/scan"
)

const (
	boxUUID    = "c4440f6a-7638-4872-91a2-7be10db915aa"
	boxBarcode = "00100897774117552794"
)

type fixture struct {
	conn  *brokermem.Broker
	store *memory.Store
	coord *Coordinator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	conn := brokermem.New(nil)
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	types := jobtype.NewStatic([]jobtype.Type{
		{Vendor: "RUBIC", JobType: "FETCH_INVENTORY", GenericType: inventory.JobFetchInventory},
		{Vendor: "RUBIC", JobType: "STORE_INVENTORY", GenericType: inventory.JobStoreInventory},
	})
	coord, err := New(cfg, Deps{
		Conn:       conn,
		Store:      store,
		Planner:    planner.New(planner.Config{Store: store, Types: types}),
		Reconciler: reconcile.New(reconcile.Config{Store: store}),
		Ingester:   scan.NewIngester(scan.IngesterConfig{Store: store, Blobs: blobstore.NewMemory()}),
		Compiler:   scan.NewCompiler(scan.CompilerConfig{Store: store}),
		Renders:    render.New(render.Config{Store: store}),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return &fixture{conn: conn, store: store, coord: coord}
}

// start runs the coordinator and returns once its subscriptions are live.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coord.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("coordinator did not stop")
		}
	})

	select {
	case <-f.coord.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator subscriptions never came up")
	}
}

func seedShelf(t *testing.T, store inventory.Store) {
	t.Helper()
	ctx := context.Background()
	item := inventory.Item{
		UUID: boxUUID,
		Meta: inventory.ItemMeta{
			ItemType:   inventory.ItemTypeBox,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: 1,
		},
		Absolute: inventory.ItemAbsolute{
			Position:    geometry.Vector3{X: 2.0, Y: 0, Z: 0.4},
			AlignedAxis: "x",
		},
		Relative: inventory.ItemRelative{
			Dimension: geometry.Vector3{X: 0.5, Y: 0.5},
			Side:      inventory.SideLeft,
		},
	}
	if err := store.PutItem(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	bc := inventory.Barcode{
		Meta:     inventory.BarcodeMeta{BarcodeType: "Code 128", Data: boxBarcode},
		ItemUUID: boxUUID,
	}
	if err := store.PutBarcode(ctx, bc); err != nil {
		t.Fatalf("seed barcode: %v", err)
	}
}

func recv(t *testing.T, ch <-chan broker.Message) broker.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return broker.Message{}
}

func TestBatchRequestRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	seedShelf(t, f.store)
	ctx := context.Background()

	out, err := f.conn.Subscribe(ctx, QueueRobotBatch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.start(t)

	body, err := json.Marshal(planner.BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: boxBarcode},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.conn.Publish(ctx, broker.Message{Topic: QueueBatchRequest, Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := recv(t, out)
	if msg.ContentType != broker.ContentTypeJSON {
		t.Fatalf("content type = %q", msg.ContentType)
	}
	var batch inventory.RobotBatch
	if err := broker.Decode(msg, &batch); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if batch.BatchID == "" || len(batch.Jobs) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if batch.Jobs[0].Item.UUID != boxUUID {
		t.Fatalf("job item = %s", batch.Jobs[0].Item.UUID)
	}
}

func TestBatchResponsePublishesUpdates(t *testing.T) {
	f := newFixture(t, Config{})
	seedShelf(t, f.store)
	ctx := context.Background()

	out, err := f.conn.Subscribe(ctx, QueueInventoryUpdates)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.start(t)

	item, err := inventory.FindItemByBarcode(ctx, f.store, boxBarcode)
	if err != nil {
		t.Fatalf("find item: %v", err)
	}
	resp := reconcile.RobotBatchResponse{
		BatchID: "batch-1",
		Jobs: []inventory.RobotJob{{
			JobID:   "job-1",
			JobType: inventory.JobFetchInventory,
			Item:    *item,
			Success: inventory.BoolPtr(true),
		}},
		Header: inventory.ResultHeader{Success: true},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.conn.Publish(ctx, broker.Message{Topic: QueueBatchResponse, Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var updates []inventory.ItemUpdate
	if err := broker.Decode(recv(t, out), &updates); err != nil {
		t.Fatalf("decode updates: %v", err)
	}
	sawFetched := false
	for _, u := range updates {
		if u.Item.UUID == boxUUID {
			sawFetched = true
			if u.Change != inventory.ChangeUpdated || u.Item.Meta.Location != inventory.LocationRobot {
				t.Fatalf("fetched item update wrong: %+v", u)
			}
		}
	}
	if !sawFetched {
		t.Fatalf("no update for fetched item: %+v", updates)
	}
}

func TestScanRequestForwarded(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	out, err := f.conn.Subscribe(ctx, QueueRobotScan)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.start(t)

	req := scan.Request{
		Vendor:      "RUBIC",
		UserID:      "user-1",
		StartHeight: 0.2,
		EndHeight:   2.4,
		HeightStep:  0.4,
		AisleIndex:  3,
		ScanID:      "scan-1",
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.conn.Publish(ctx, broker.Message{Topic: QueueScanRequest, Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var robot scan.RobotRequest
	if err := broker.Decode(recv(t, out), &robot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if robot.ScanID != "scan-1" || robot.AisleIndex != 3 {
		t.Fatalf("robot request wrong: %+v", robot)
	}
	if robot.WaypointIndices == nil || len(robot.WaypointIndices) != 0 {
		t.Fatalf("waypoint indices = %#v", robot.WaypointIndices)
	}
}

func TestMalformedBatchRequestDropped(t *testing.T) {
	f := newFixture(t, Config{})
	seedShelf(t, f.store)
	ctx := context.Background()

	out, err := f.conn.Subscribe(ctx, QueueRobotBatch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.start(t)

	if err := f.conn.Publish(ctx, broker.Message{Topic: QueueBatchRequest, Body: []byte(`{"not":"an array"}`)}); err != nil {
		t.Fatalf("publish malformed: %v", err)
	}
	// The worker must survive and serve the next request.
	body, err := json.Marshal(planner.BatchRequest{
		{JobType: "FETCH_INVENTORY", Vendor: "RUBIC", UID: boxBarcode},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.conn.Publish(ctx, broker.Message{Topic: QueueBatchRequest, Body: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var batch inventory.RobotBatch
	if err := broker.Decode(recv(t, out), &batch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batch.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d", len(batch.Jobs))
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("new with empty deps succeeded")
	}
}

func TestSweepPartials(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	item := inventory.Item{
		UUID: boxUUID,
		Meta: inventory.ItemMeta{
			ItemType: inventory.ItemTypeBox,
			Stack:    []string{},
			Location: inventory.LocationInventory,
			ScanID:   "scan-1",
		},
		Absolute: inventory.ItemAbsolute{Position: geometry.Vector3{X: 1}, AlignedAxis: "x"},
		Relative: inventory.ItemRelative{Dimension: geometry.Vector3{X: 0.4, Y: 0.4}, Side: inventory.SideLeft},
	}
	if err := f.store.PutItem(ctx, item); err != nil {
		t.Fatalf("put item: %v", err)
	}
	partial := inventory.PartialItem{
		Meta: inventory.PartialItemMeta{ItemType: inventory.ItemTypeBox, ScanID: "scan-1", AisleIndex: 1},
		Absolute: inventory.PartialItemAbsolute{
			Position:    geometry.Vector3{X: 1},
			AlignedAxis: "x",
		},
		Relative: inventory.PartialItemRelative{
			Dimension: geometry.Vector3{X: 0.4, Y: 0.4},
			Side:      inventory.SideLeft,
		},
	}
	if _, err := f.store.PutPartialItem(ctx, partial); err != nil {
		t.Fatalf("put partial: %v", err)
	}

	f.coord.sweepPartials(ctx)

	left, err := f.store.ListPartialItems(ctx, inventory.PartialItemQuery{ScanID: "scan-1", AisleIndex: 1, Side: inventory.SideLeft})
	if err != nil {
		t.Fatalf("list partials: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("sweep left %d partials", len(left))
	}
}
