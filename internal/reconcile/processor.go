// Package reconcile applies robot batch responses to the inventory model.
// Every handler mirrors one planned job type; together with the planner it
// closes the fetch/store loop.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"orbit/internal/geometry"
	"orbit/internal/inventory"
	"orbit/internal/logging"
)

// MergeMargin bounds edge and shelf alignments during empty merging.
const MergeMargin = 0.1

var (
	// ErrMissingPrimaryBarcode indicates a response job arrived without the
	// barcode that identifies its item.
	ErrMissingPrimaryBarcode = errors.New("response job has no primary barcode")

	// ErrDuplicateItem indicates a designated fetch delivered an item whose
	// barcode already exists in inventory.
	ErrDuplicateItem = errors.New("item already exists in inventory")
)

// RobotBatchResponse is the batch/response wire payload.
type RobotBatchResponse struct {
	BatchID string                 `json:"batch_id"`
	Jobs    []inventory.RobotJob   `json:"jobs"`
	Header  inventory.ResultHeader `json:"header"`
}

// Config configures a Processor.
type Config struct {
	Store  inventory.Store
	Logger *slog.Logger
}

// Processor reconciles batch responses against the inventory store.
type Processor struct {
	store  inventory.Store
	logger *slog.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	return &Processor{
		store:  cfg.Store,
		logger: logging.Default(cfg.Logger).With("component", "reconcile"),
	}
}

// Process applies one batch response. Jobs are isolated: a failing job is
// logged and dropped from the aggregate while the rest still run, and
// inventory mutations it already made are not rolled back. The returned
// updates are the inventory/updates reply payload.
func (p *Processor) Process(ctx context.Context, resp RobotBatchResponse) ([]inventory.ItemUpdate, error) {
	if resp.Header.Success {
		p.logger.Info("robot completed batch", "batch_id", resp.BatchID, "jobs", len(resp.Jobs))
	} else {
		p.logger.Error("robot failed batch",
			"batch_id", resp.BatchID,
			"error_code", resp.Header.ErrorCode,
			"error_message", resp.Header.ErrorMessage)
		for _, job := range resp.Jobs {
			p.logger.Error("job outcome",
				"job_id", job.JobID, "success", job.Success, "error_message", job.ErrorMessage)
		}
	}

	if err := p.store.PutBatch(ctx, inventory.RobotBatch{BatchID: resp.BatchID, Jobs: resp.Jobs}); err != nil {
		return nil, fmt.Errorf("replace batch %s: %w", resp.BatchID, err)
	}

	var updates []inventory.ItemUpdate
	for _, job := range resp.Jobs {
		jobUpdates, err := p.processJob(ctx, job)
		if err != nil {
			p.logger.Error("job reconciliation failed",
				"batch_id", resp.BatchID, "job_id", job.JobID, "job_type", job.JobType, "error", err)
			continue
		}
		updates = append(updates, jobUpdates...)
	}
	p.logger.Info("processed batch", "batch_id", resp.BatchID, "updates", len(updates))
	return updates, nil
}

func (p *Processor) processJob(ctx context.Context, job inventory.RobotJob) ([]inventory.ItemUpdate, error) {
	if job.Item.PrimaryBarcode == nil {
		return nil, fmt.Errorf("job %s: %w", job.JobID, ErrMissingPrimaryBarcode)
	}
	if job.Success == nil || !*job.Success {
		p.logger.Error("robot failed job",
			"job_id", job.JobID,
			"job_type", job.JobType,
			"barcode", job.Item.PrimaryBarcode.Meta.Data,
			"error_message", job.ErrorMessage)
		return nil, nil
	}
	p.logger.Info("robot completed job",
		"job_id", job.JobID, "job_type", job.JobType, "barcode", job.Item.PrimaryBarcode.Meta.Data)

	if err := p.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("replace job %s: %w", job.JobID, err)
	}

	switch job.JobType {
	case inventory.JobFetchInventory:
		return p.fetchInventory(ctx, job)
	case inventory.JobStoreInventory:
		return p.storeInventory(ctx, job)
	case inventory.JobFetchDesignated:
		return p.fetchDesignated(ctx, job)
	case inventory.JobStoreDesignated:
		return p.storeDesignated(ctx, job)
	default:
		return nil, fmt.Errorf("unsupported job type %q", job.JobType)
	}
}

// fetchInventory moves the fetched item onto the robot and leaves an empty
// at its old footprint. The stored copy of the item is authoritative.
func (p *Processor) fetchInventory(ctx context.Context, job inventory.RobotJob) ([]inventory.ItemUpdate, error) {
	stored, err := p.store.GetItem(ctx, job.Item.UUID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Meta.Location != inventory.LocationInventory {
		return nil, fmt.Errorf("inventory item %s: %w", job.Item.UUID, inventory.ErrMissingEntity)
	}

	var updates []inventory.ItemUpdate
	item := stored.Clone()
	item.Meta.Available = false
	item.Meta.Location = inventory.LocationRobot
	if err := p.store.PutItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item %s: %w", item.UUID, err)
	}
	updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeUpdated, Item: item})

	empty := inventory.Item{
		Meta: inventory.ItemMeta{
			ItemType:   inventory.ItemTypeEmpty,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: item.Meta.AisleIndex,
		},
		Absolute: item.Absolute,
		Relative: item.Relative,
		UUID:     uuid.Must(uuid.NewV7()).String(),
	}
	empty = empty.Clone()
	if job.FutureUUID != "" {
		// The planner promised this uuid to a later store; keep the
		// footprint as-is so the promise holds.
		empty.UUID = job.FutureUUID
	} else {
		empty, err = p.mergeEmpty(ctx, empty, &updates)
		if err != nil {
			return nil, err
		}
	}
	if err := p.store.PutItem(ctx, empty); err != nil {
		return nil, fmt.Errorf("insert empty %s: %w", empty.UUID, err)
	}
	p.logger.Info("created empty at fetched footprint", "uuid", empty.UUID)
	updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeCreated, Item: empty})

	affected, err := p.store.FindItemsWithInStack(ctx, item.UUID)
	if err != nil {
		return nil, err
	}
	for _, holder := range affected {
		holder.Meta.Stack = removeString(holder.Meta.Stack, item.UUID)
		if err := p.store.PutItem(ctx, holder); err != nil {
			return nil, fmt.Errorf("update stack of %s: %w", holder.UUID, err)
		}
		updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeUpdated, Item: holder})
	}
	return updates, nil
}

// mergeEmpty grows a freshly created empty into the free space around it:
// over the box below it, against flanking boxes, into flanking empties
// (which it absorbs), and finally into the empty directly above.
func (p *Processor) mergeEmpty(ctx context.Context, empty inventory.Item, updates *[]inventory.ItemUpdate) (inventory.Item, error) {
	nearby, err := p.store.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: empty.Meta.AisleIndex,
		Side:       empty.Relative.Side,
		CX:         empty.Absolute.Position.X,
		CY:         empty.Absolute.Position.Y,
		Location:   inventory.LocationInventory,
	})
	if err != nil {
		return inventory.Item{}, err
	}
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, fmt.Errorf("empty %s: %w", empty.UUID, err)
	}

	below, err := inventory.BoxesBelow(nearby, emptyBox, empty.Absolute.Position.Y, MergeMargin)
	if err != nil {
		return inventory.Item{}, err
	}
	if len(below) > 0 {
		empty, err = p.expandOverBelow(empty, below, nearby)
	} else {
		empty, err = p.expandSideways(ctx, empty, nearby, updates)
	}
	if err != nil {
		return inventory.Item{}, err
	}
	return p.mergeAbove(ctx, empty, nearby, updates)
}

// expandOverBelow widens the empty to the footprint of the box carrying it,
// clamped by flanking boxes.
func (p *Processor) expandOverBelow(empty inventory.Item, below, nearby []inventory.Item) (inventory.Item, error) {
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	carrier, err := inventory.MaxHorizontalOverlap(below, emptyBox)
	if err != nil {
		return inventory.Item{}, err
	}
	carrierBox, err := carrier.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}

	leftLimit := carrierBox.BottomLeft.X
	leftEdge, err := inventory.LeftEdge(empty, emptyBox, nearby, MergeMargin)
	if err != nil {
		return inventory.Item{}, err
	}
	if leftEdge != nil && leftEdge.Meta.ItemType == inventory.ItemTypeBox {
		lb, err := leftEdge.BoundingBox()
		if err != nil {
			return inventory.Item{}, err
		}
		leftLimit = math.Max(lb.TopRight.X, carrierBox.BottomLeft.X)
	}

	rightLimit := carrierBox.TopRight.X
	rightEdge, err := inventory.RightEdge(empty, emptyBox, nearby, MergeMargin)
	if err != nil {
		return inventory.Item{}, err
	}
	if rightEdge != nil && rightEdge.Meta.ItemType == inventory.ItemTypeBox {
		rb, err := rightEdge.BoundingBox()
		if err != nil {
			return inventory.Item{}, err
		}
		rightLimit = math.Min(rb.BottomLeft.X, carrierBox.TopRight.X)
	}
	return p.constructFresh(empty, leftLimit, rightLimit)
}

// expandSideways pushes the empty's edges out to flanking boxes and absorbs
// flanking empties. The right edge is evaluated against the extents the
// left pass produced.
func (p *Processor) expandSideways(ctx context.Context, empty inventory.Item, nearby []inventory.Item, updates *[]inventory.ItemUpdate) (inventory.Item, error) {
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	leftEdge, err := inventory.LeftEdge(empty, emptyBox, nearby, MergeMargin)
	if err != nil {
		return inventory.Item{}, err
	}
	if leftEdge != nil {
		switch leftEdge.Meta.ItemType {
		case inventory.ItemTypeBox:
			lb, err := leftEdge.BoundingBox()
			if err != nil {
				return inventory.Item{}, err
			}
			empty, err = p.constructFresh(empty, lb.TopRight.X, emptyBox.TopRight.X)
			if err != nil {
				return inventory.Item{}, err
			}
		case inventory.ItemTypeEmpty:
			empty, err = p.absorbEmpty(ctx, empty, *leftEdge, updates)
			if err != nil {
				return inventory.Item{}, err
			}
		}
	}

	emptyBox, err = empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	rightEdge, err := inventory.RightEdge(empty, emptyBox, nearby, MergeMargin)
	if err != nil {
		return inventory.Item{}, err
	}
	if rightEdge != nil {
		switch rightEdge.Meta.ItemType {
		case inventory.ItemTypeBox:
			rb, err := rightEdge.BoundingBox()
			if err != nil {
				return inventory.Item{}, err
			}
			empty, err = p.constructFresh(empty, emptyBox.BottomLeft.X, rb.BottomLeft.X)
			if err != nil {
				return inventory.Item{}, err
			}
		case inventory.ItemTypeEmpty:
			empty, err = p.absorbEmpty(ctx, empty, *rightEdge, updates)
			if err != nil {
				return inventory.Item{}, err
			}
		}
	}
	return empty, nil
}

// absorbEmpty extends the empty over its neighbor and deletes the neighbor.
func (p *Processor) absorbEmpty(ctx context.Context, empty, neighbor inventory.Item, updates *[]inventory.ItemUpdate) (inventory.Item, error) {
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	neighborBox, err := neighbor.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	out, err := p.constructFresh(empty,
		math.Min(emptyBox.BottomLeft.X, neighborBox.BottomLeft.X),
		math.Max(emptyBox.TopRight.X, neighborBox.TopRight.X))
	if err != nil {
		return inventory.Item{}, err
	}
	if err := p.store.DeleteItem(ctx, neighbor.UUID); err != nil {
		return inventory.Item{}, fmt.Errorf("delete absorbed empty %s: %w", neighbor.UUID, err)
	}
	*updates = append(*updates, inventory.ItemUpdate{Change: inventory.ChangeDeleted, Item: neighbor})
	return out, nil
}

// mergeAbove folds the empty directly above into this one.
func (p *Processor) mergeAbove(ctx context.Context, empty inventory.Item, nearby []inventory.Item, updates *[]inventory.ItemUpdate) (inventory.Item, error) {
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	var above []inventory.Item
	for _, it := range nearby {
		box, err := it.BoundingBox()
		if err != nil {
			return inventory.Item{}, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		if math.Abs(it.Absolute.Position.Y-emptyBox.TopRight.Y) < MergeMargin &&
			box.TopRight.X > emptyBox.BottomLeft.X &&
			box.BottomLeft.X < emptyBox.TopRight.X &&
			it.Meta.ItemType == inventory.ItemTypeEmpty {
			above = append(above, it)
		}
	}
	if len(above) == 0 {
		return empty, nil
	}

	best, err := inventory.MaxHorizontalOverlap(above, emptyBox)
	if err != nil {
		return inventory.Item{}, err
	}
	bestBox, err := best.BoundingBox()
	if err != nil {
		return inventory.Item{}, err
	}
	empty.Relative.Dimension.Y += bestBox.TopRight.Y - emptyBox.TopRight.Y

	if err := p.store.DeleteItem(ctx, best.UUID); err != nil {
		return inventory.Item{}, fmt.Errorf("delete merged empty %s: %w", best.UUID, err)
	}
	*updates = append(*updates, inventory.ItemUpdate{Change: inventory.ChangeDeleted, Item: best})
	return empty, nil
}

// constructFresh rebuilds the empty over [left, right] with a fresh uuid.
func (p *Processor) constructFresh(empty inventory.Item, left, right float64) (inventory.Item, error) {
	out, err := inventory.ConstructEmpty(empty, left, right)
	if err != nil {
		return inventory.Item{}, err
	}
	out.UUID = uuid.Must(uuid.NewV7()).String()
	return out, nil
}

// storeInventory records the stored item at its destination, carves the
// leftover destination space into new empties, and recomputes the stacks
// around the stored item.
func (p *Processor) storeInventory(ctx context.Context, job inventory.RobotJob) ([]inventory.ItemUpdate, error) {
	if job.Destination == nil {
		return nil, fmt.Errorf("store job %s has no destination: %w", job.JobID, inventory.ErrMissingEntity)
	}
	destination, err := p.store.GetItem(ctx, job.Destination.UUID)
	if err != nil {
		return nil, err
	}
	if destination == nil {
		return nil, fmt.Errorf("destination %s: %w", job.Destination.UUID, inventory.ErrMissingEntity)
	}

	var updates []inventory.ItemUpdate
	item := job.Item.Clone()
	item.Meta.ItemType = inventory.ItemTypeBox
	item.Meta.Available = true
	item.Meta.Location = inventory.LocationInventory
	item.Meta.Destination = nil
	for i := range item.Barcodes {
		item.Barcodes[i].Meta.AisleIndex = item.Meta.AisleIndex
	}
	if err := p.store.PutItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item %s: %w", item.UUID, err)
	}
	updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeUpdated, Item: item})

	destBox, err := destination.BoundingBox()
	if err != nil {
		return nil, fmt.Errorf("destination %s: %w", destination.UUID, err)
	}
	itemBox, err := item.BoundingBox()
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", item.UUID, err)
	}
	strips, err := geometry.SliceRectangle(destBox, itemBox)
	if err != nil {
		return nil, fmt.Errorf("slice destination %s: %w", destination.UUID, err)
	}
	for _, strip := range strips {
		leftover := stripEmpty(*destination, strip)
		if err := p.store.PutItem(ctx, leftover); err != nil {
			return nil, fmt.Errorf("insert leftover empty %s: %w", leftover.UUID, err)
		}
		updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeCreated, Item: leftover})
	}

	if err := p.store.DeleteItem(ctx, destination.UUID); err != nil {
		return nil, fmt.Errorf("delete destination %s: %w", destination.UUID, err)
	}
	p.logger.Info("deleted destination empty", "uuid", destination.UUID)
	updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeDeleted, Item: *destination})

	stackUpdates, err := p.restack(ctx, item, destination.Relative.Side)
	if err != nil {
		return nil, err
	}
	return append(updates, stackUpdates...), nil
}

// stripEmpty turns one leftover strip of a sliced destination into an empty
// inheriting the destination's shelf placement.
func stripEmpty(destination inventory.Item, strip geometry.Rectangle) inventory.Item {
	bottomCenter := strip.BottomCenter()
	position := geometry.Vector3{Y: bottomCenter.Y}
	if destination.Absolute.AlignedAxis == "z" {
		position.Z = bottomCenter.X
		position.X = destination.Absolute.Position.Z
	} else {
		position.X = bottomCenter.X
		position.Z = destination.Absolute.Position.Z
	}
	out := inventory.Item{
		Meta: destination.Meta,
		Absolute: inventory.ItemAbsolute{
			DepthIndex:  destination.Absolute.DepthIndex,
			StackIndex:  destination.Absolute.StackIndex,
			Position:    position,
			Waypoint:    destination.Absolute.Waypoint,
			AlignedAxis: destination.Absolute.AlignedAxis,
		},
		Relative: inventory.ItemRelative{
			Header:    destination.Relative.Header,
			Dimension: geometry.Vector3{X: strip.Width(), Y: strip.Height(), Z: destination.Relative.Dimension.Z},
			Side:      destination.Relative.Side,
		},
		UUID: uuid.Must(uuid.NewV7()).String(),
	}
	return out.Clone()
}

// restack recomputes stack membership among the available boxes around the
// stored item.
func (p *Processor) restack(ctx context.Context, item inventory.Item, side string) ([]inventory.ItemUpdate, error) {
	available := true
	nearby, err := p.store.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: item.Meta.AisleIndex,
		Side:       side,
		CX:         item.Absolute.Position.X,
		CY:         item.Absolute.Position.Y,
		DX:         1.0,
		DY:         1.0,
		ItemType:   inventory.ItemTypeBox,
		Location:   inventory.LocationInventory,
		Available:  &available,
	})
	if err != nil {
		return nil, err
	}

	stacks, err := stackMap(nearby)
	if err != nil {
		return nil, err
	}
	var updates []inventory.ItemUpdate
	for _, box := range nearby {
		added := stacks[box.UUID]
		if len(added) == 0 {
			continue
		}
		box.Meta.Stack = dedupe(append(box.Meta.Stack, added...))
		if err := p.store.PutItem(ctx, box); err != nil {
			return nil, fmt.Errorf("update stack of %s: %w", box.UUID, err)
		}
		updates = append(updates, inventory.ItemUpdate{Change: inventory.ChangeUpdated, Item: box})
	}
	return updates, nil
}

// stackMap computes, for every item, the uuids of the items resting
// directly on top of it.
func stackMap(items []inventory.Item) (map[string][]string, error) {
	boxes := make([]geometry.Rectangle, len(items))
	for i, it := range items {
		box, err := it.BoundingBox()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.UUID, err)
		}
		boxes[i] = box
	}
	out := make(map[string][]string)
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if geometry.IsStackedOn(boxes[i], boxes[j]) {
				out[items[j].UUID] = append(out[items[j].UUID], items[i].UUID)
			} else if geometry.IsStackedOn(boxes[j], boxes[i]) {
				out[items[i].UUID] = append(out[items[i].UUID], items[j].UUID)
			}
		}
	}
	return out, nil
}

// fetchDesignated registers an item delivered from outside inventory, such
// as a conveyor pick-up.
func (p *Processor) fetchDesignated(ctx context.Context, job inventory.RobotJob) ([]inventory.ItemUpdate, error) {
	item := job.Item.Clone()
	if item.UUID == "" {
		item.UUID = uuid.Must(uuid.NewV7()).String()
		p.logger.Info("assigned uuid to designated item", "uuid", item.UUID)
	}
	item.Meta.Location = inventory.LocationRobot
	item.Meta.Destination = nil
	item.Meta.Available = false

	var primaryData []string
	for _, bc := range item.Barcodes {
		if inventory.IsPrimaryBarcodeType(bc.Meta.BarcodeType) {
			primaryData = append(primaryData, bc.Meta.Data)
		}
	}
	if len(primaryData) == 0 {
		return nil, fmt.Errorf("designated item %s: %w", item.UUID, ErrMissingPrimaryBarcode)
	}

	existing, err := p.store.ListBarcodesByAnyData(ctx, primaryData)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		matched := make([]string, 0, len(existing))
		for _, bc := range existing {
			matched = append(matched, bc.Meta.Data)
		}
		return nil, fmt.Errorf("barcodes %v: %w", matched, ErrDuplicateItem)
	}

	if err := p.store.PutItem(ctx, item); err != nil {
		return nil, fmt.Errorf("insert item %s: %w", item.UUID, err)
	}
	for _, bc := range item.Barcodes {
		bc.ItemUUID = item.UUID
		if err := p.store.PutBarcode(ctx, bc); err != nil {
			return nil, fmt.Errorf("insert barcode %s: %w", bc.Meta.Data, err)
		}
	}
	p.logger.Info("registered designated item", "uuid", item.UUID, "barcodes", len(item.Barcodes))
	return []inventory.ItemUpdate{{Change: inventory.ChangeUpdated, Item: item}}, nil
}

// storeDesignated removes an item delivered out of inventory, such as a
// conveyor drop-off.
func (p *Processor) storeDesignated(ctx context.Context, job inventory.RobotJob) ([]inventory.ItemUpdate, error) {
	stored, err := p.store.GetItem(ctx, job.Item.UUID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("item %s: %w", job.Item.UUID, inventory.ErrMissingEntity)
	}
	if err := p.store.DeleteItem(ctx, job.Item.UUID); err != nil {
		return nil, fmt.Errorf("delete item %s: %w", job.Item.UUID, err)
	}
	if err := p.store.DeleteBarcodesByItem(ctx, job.Item.UUID); err != nil {
		return nil, fmt.Errorf("delete barcodes of %s: %w", job.Item.UUID, err)
	}
	p.logger.Info("deleted designated item and barcodes", "uuid", job.Item.UUID)
	return []inventory.ItemUpdate{{Change: inventory.ChangeDeleted, Item: job.Item}}, nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func dedupe(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, x := range s {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	sort.Strings(out)
	return out
}
