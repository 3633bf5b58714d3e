// Package planner turns client job requests into ordered robot batches.
// Planning only reads inventory; the reconcile package applies the
// mutations once the robot reports back.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"orbit/internal/inventory"
	"orbit/internal/jobtype"
	"orbit/internal/logging"
)

// StoreMargin is the clearance added around an item when searching for an
// empty to store it in, in meters.
const StoreMargin = 0.03

// AlignmentMargin bounds edge and shelf alignments during empty selection.
const AlignmentMargin = 0.1

var (
	// ErrMultipleStacked rejects a fetch whose target carries more than one
	// item.
	ErrMultipleStacked = errors.New("multiple items stacked on target")

	// ErrDoubleStacked rejects a fetch whose stacked item carries its own
	// stack.
	ErrDoubleStacked = errors.New("double stacked item")

	// ErrInvalidDestination rejects a store whose destination is not an
	// available inventory empty.
	ErrInvalidDestination = errors.New("destination is not an available inventory empty")
)

// JobRequest is one client-level request inside a batch.
type JobRequest struct {
	JobType         string `json:"job_type"`
	Vendor          string `json:"vendor"`
	UID             string `json:"uid"`
	DestinationUUID string `json:"destination_uuid,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

// BatchRequest is the batch/request wire payload.
type BatchRequest []JobRequest

// RobotBatchRequest is the planned batch sent to the robot.
type RobotBatchRequest = inventory.RobotBatch

// Config configures a Planner.
type Config struct {
	Store  inventory.Store
	Types  jobtype.Source
	Logger *slog.Logger
}

// Planner expands client job requests into robot jobs.
type Planner struct {
	store  inventory.Store
	types  jobtype.Source
	logger *slog.Logger
}

// New creates a Planner.
func New(cfg Config) *Planner {
	return &Planner{
		store:  cfg.Store,
		types:  cfg.Types,
		logger: logging.Default(cfg.Logger).With("component", "planner"),
	}
}

// PlanBatch builds the robot batch for one client request. Any failure
// aborts the whole batch; the batch and its jobs are persisted only after
// every request planned successfully.
func (p *Planner) PlanBatch(ctx context.Context, req BatchRequest) (RobotBatchRequest, error) {
	batch := RobotBatchRequest{BatchID: uuid.Must(uuid.NewV7()).String()}

	// Earlier fetches influence later jobs of the same batch: a store can
	// target the empty a fetch is about to leave behind.
	fetched := make(map[string]string)

	for _, jr := range req {
		jt, err := p.types.Lookup(ctx, jr.Vendor, jr.JobType)
		if err != nil {
			return RobotBatchRequest{}, fmt.Errorf("job type %s/%s: %w", jr.Vendor, jr.JobType, err)
		}
		if jt == nil {
			return RobotBatchRequest{}, fmt.Errorf("job type %s/%s: %w", jr.Vendor, jr.JobType, inventory.ErrMissingEntity)
		}

		var jobs []inventory.RobotJob
		switch jt.GenericType {
		case inventory.JobFetchInventory:
			jobs, err = p.buildFetchInventory(ctx, jr, fetched)
		case inventory.JobStoreInventory:
			jobs, err = p.buildStoreInventory(ctx, jr, fetched)
		case inventory.JobFetchDesignated:
			jobs, err = p.buildFetchDesignated(ctx, jt)
		case inventory.JobStoreDesignated:
			jobs, err = p.buildStoreDesignated(ctx, jr, jt)
		default:
			err = fmt.Errorf("unsupported generic job type %q", jt.GenericType)
		}
		if err != nil {
			return RobotBatchRequest{}, fmt.Errorf("request %s (%s): %w", jr.RequestID, jr.JobType, err)
		}
		if jt.GenericType == inventory.JobFetchInventory {
			fetched[jr.UID] = jr.DestinationUUID
		}
		batch.Jobs = append(batch.Jobs, jobs...)
	}

	if err := p.store.PutBatch(ctx, batch); err != nil {
		return RobotBatchRequest{}, fmt.Errorf("persist batch %s: %w", batch.BatchID, err)
	}
	for _, job := range batch.Jobs {
		if err := p.store.PutJob(ctx, job); err != nil {
			return RobotBatchRequest{}, fmt.Errorf("persist job %s: %w", job.JobID, err)
		}
	}
	p.logger.Info("planned batch", "batch_id", batch.BatchID, "requests", len(req), "jobs", len(batch.Jobs))
	return batch, nil
}

func newJob(jobType string, item inventory.Item) inventory.RobotJob {
	return inventory.RobotJob{
		JobID:   uuid.Must(uuid.NewV7()).String(),
		JobType: jobType,
		Item:    item,
	}
}

// futureEmpty is the empty that a fetch will leave behind at item's
// footprint, referenced before it exists.
func futureEmpty(futureUUID string, item inventory.Item) inventory.Item {
	out := inventory.Item{
		Meta: inventory.ItemMeta{
			ItemType:   inventory.ItemTypeEmpty,
			Stack:      []string{},
			Location:   inventory.LocationInventory,
			Available:  true,
			AisleIndex: item.Meta.AisleIndex,
		},
		Absolute: item.Absolute,
		Relative: item.Relative,
		UUID:     futureUUID,
	}
	return out.Clone()
}

// buildFetchInventory plans a fetch: clear the stack on top of the target,
// fetch the target, then store the stacked items back into the empty the
// target leaves behind.
func (p *Planner) buildFetchInventory(ctx context.Context, jr JobRequest, fetched map[string]string) ([]inventory.RobotJob, error) {
	target, err := inventory.FindItemByBarcode(ctx, p.store, jr.UID)
	if err != nil {
		return nil, err
	}
	if len(target.Meta.Stack) > 1 {
		return nil, fmt.Errorf("item %s: %w", target.UUID, ErrMultipleStacked)
	}

	var above []inventory.Item
	for _, stackedUUID := range target.Meta.Stack {
		item, err := p.store.GetItem(ctx, stackedUUID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, fmt.Errorf("stacked item %s: %w", stackedUUID, inventory.ErrMissingEntity)
		}
		if len(item.Meta.Stack) > 0 {
			return nil, fmt.Errorf("item %s: %w", stackedUUID, ErrDoubleStacked)
		}
		if item.Meta.ItemType == inventory.ItemTypeEmpty {
			p.logger.Info("skipping stacked empty", "uuid", stackedUUID)
			continue
		}
		pb, err := p.store.FindPrimaryBarcode(ctx, stackedUUID)
		if err != nil {
			return nil, err
		}
		if pb == nil {
			return nil, fmt.Errorf("primary barcode for stacked item %s: %w", stackedUUID, inventory.ErrMissingEntity)
		}
		item.PrimaryBarcode = pb
		above = append(above, *item)
	}

	futureUUID := jr.DestinationUUID
	if futureUUID == "" {
		futureUUID = uuid.Must(uuid.NewV7()).String()
	}
	targetJob := newJob(inventory.JobFetchInventory, *target)
	if len(above) > 0 {
		targetJob.FutureUUID = futureUUID
	} else {
		targetJob.FutureUUID = jr.DestinationUUID
	}

	var fetches, storeBacks []inventory.RobotJob
	for _, item := range above {
		if _, ok := fetched[item.PrimaryBarcode.Meta.Data]; ok {
			if len(item.Meta.Stack) == 0 {
				continue
			}
			return nil, fmt.Errorf("item %s already fetched but carries a stack: %w", item.UUID, ErrDoubleStacked)
		}
		fetches = append(fetches, newJob(inventory.JobFetchInventory, item))
		storeBack := newJob(inventory.JobStoreInventory, item)
		dest := futureEmpty(futureUUID, *target)
		storeBack.Destination = &dest
		storeBacks = append(storeBacks, storeBack)
	}

	jobs := make([]inventory.RobotJob, 0, len(fetches)+len(storeBacks)+1)
	jobs = append(jobs, fetches...)
	jobs = append(jobs, targetJob)
	jobs = append(jobs, storeBacks...)
	return jobs, nil
}

// buildStoreInventory plans a store: the target must be on the robot, or
// scheduled to be there by an earlier fetch of this batch.
func (p *Planner) buildStoreInventory(ctx context.Context, jr JobRequest, fetched map[string]string) ([]inventory.RobotJob, error) {
	target, err := inventory.FindItemByBarcode(ctx, p.store, jr.UID)
	if err != nil {
		return nil, err
	}
	_, pending := fetched[target.PrimaryBarcode.Meta.Data]
	onRobot := target.Meta.Location == inventory.LocationRobot &&
		target.Meta.Destination == nil && !target.Meta.Available
	if !onRobot && !pending {
		return nil, fmt.Errorf("item %s is not on the robot", jr.UID)
	}

	var destination *inventory.Item
	switch {
	case jr.DestinationUUID == "":
		destination, err = p.findEmptyForStore(ctx, *target)
		if err != nil {
			return nil, err
		}
	case fetched[jr.DestinationUUID] != "":
		// The destination names an item an earlier fetch is removing; store
		// into the empty that fetch will leave behind.
		item, err := inventory.FindItemByBarcode(ctx, p.store, jr.DestinationUUID)
		if err != nil {
			return nil, err
		}
		dest := futureEmpty(fetched[jr.DestinationUUID], *item)
		destination = &dest
	default:
		destination, err = p.store.GetItem(ctx, jr.DestinationUUID)
		if err != nil {
			return nil, err
		}
		if destination == nil {
			return nil, fmt.Errorf("destination %s: %w", jr.DestinationUUID, inventory.ErrMissingEntity)
		}
	}

	valid := destination.Meta.Available &&
		destination.Meta.Location == inventory.LocationInventory &&
		destination.Meta.Destination == nil &&
		destination.Meta.ItemType == inventory.ItemTypeEmpty
	if !valid {
		return nil, fmt.Errorf("destination %s: %w", destination.UUID, ErrInvalidDestination)
	}

	job := newJob(inventory.JobStoreInventory, *target)
	job.Destination = destination
	return []inventory.RobotJob{job}, nil
}

// findEmptyForStore picks the smallest empty the item fits into with
// clearance and positions the item's footprint inside it.
func (p *Planner) findEmptyForStore(ctx context.Context, target inventory.Item) (*inventory.Item, error) {
	width := target.Relative.Dimension.X + 2*StoreMargin
	height := target.Relative.Dimension.Y + StoreMargin
	empty, err := p.store.FindBestEmpty(ctx, target.Meta.AisleIndex, target.Relative.Side, width, height)
	if err != nil {
		return nil, err
	}
	if empty == nil {
		return nil, fmt.Errorf("no empty fits %.2fx%.2f on aisle %d %s: %w",
			width, height, target.Meta.AisleIndex, target.Relative.Side, inventory.ErrMissingEntity)
	}

	side, err := p.chooseSideInEmpty(ctx, *empty)
	if err != nil {
		return nil, err
	}
	if side == "" {
		return empty, nil
	}

	box, err := empty.BoundingBox()
	if err != nil {
		return nil, fmt.Errorf("empty %s: %w", empty.UUID, err)
	}
	var left, right float64
	if side == inventory.SideLeft {
		left = box.BottomLeft.X
		right = box.BottomLeft.X + width
	} else {
		left = box.TopRight.X - width
		right = box.TopRight.X
	}
	out, err := inventory.ConstructEmpty(*empty, left, right)
	if err != nil {
		return nil, err
	}
	out.UUID = empty.UUID
	return &out, nil
}

// chooseSideInEmpty decides which end of the empty to store against. A box
// directly below means a stacked store, which goes in the middle; otherwise
// the nearest flanking box wins. An empty string means no preference.
func (p *Planner) chooseSideInEmpty(ctx context.Context, empty inventory.Item) (string, error) {
	nearby, err := p.store.FindNearby(ctx, inventory.NearbyQuery{
		AisleIndex: empty.Meta.AisleIndex,
		Side:       empty.Relative.Side,
		CX:         empty.Absolute.Position.X,
		CY:         empty.Absolute.Position.Y,
		Location:   inventory.LocationInventory,
	})
	if err != nil {
		return "", err
	}
	emptyBox, err := empty.BoundingBox()
	if err != nil {
		return "", fmt.Errorf("empty %s: %w", empty.UUID, err)
	}

	below, err := inventory.BoxesBelow(nearby, emptyBox, empty.Absolute.Position.Y, AlignmentMargin)
	if err != nil {
		return "", err
	}
	if len(below) > 0 {
		return "", nil
	}

	leftEdge, err := inventory.LeftEdge(empty, emptyBox, nearby, AlignmentMargin)
	if err != nil {
		return "", err
	}
	rightEdge, err := inventory.RightEdge(empty, emptyBox, nearby, AlignmentMargin)
	if err != nil {
		return "", err
	}
	leftDist, rightDist := math.Inf(1), math.Inf(1)
	if leftEdge != nil && leftEdge.Meta.ItemType == inventory.ItemTypeBox {
		lb, err := leftEdge.BoundingBox()
		if err != nil {
			return "", err
		}
		leftDist = math.Abs(emptyBox.BottomLeft.X - lb.TopRight.X)
	}
	if rightEdge != nil && rightEdge.Meta.ItemType == inventory.ItemTypeBox {
		rb, err := rightEdge.BoundingBox()
		if err != nil {
			return "", err
		}
		rightDist = math.Abs(emptyBox.TopRight.X - rb.BottomLeft.X)
	}
	if math.IsInf(leftDist, 1) && math.IsInf(rightDist, 1) {
		return "", nil
	}
	if leftDist < rightDist {
		return inventory.SideLeft, nil
	}
	return inventory.SideRight, nil
}

func (p *Planner) buildFetchDesignated(ctx context.Context, jt *jobtype.Type) ([]inventory.RobotJob, error) {
	if jt.ItemUUID == "" {
		return nil, fmt.Errorf("job type %s has no designated pick-up item: %w", jt.JobType, inventory.ErrMissingEntity)
	}
	item, err := p.store.GetItem(ctx, jt.ItemUUID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("designated item %s: %w", jt.ItemUUID, inventory.ErrMissingEntity)
	}
	return []inventory.RobotJob{newJob(inventory.JobFetchDesignated, *item)}, nil
}

func (p *Planner) buildStoreDesignated(ctx context.Context, jr JobRequest, jt *jobtype.Type) ([]inventory.RobotJob, error) {
	item, err := inventory.FindItemByBarcode(ctx, p.store, jr.UID)
	if err != nil {
		return nil, err
	}
	if jt.ItemUUID == "" {
		return nil, fmt.Errorf("job type %s has no designated destination: %w", jt.JobType, inventory.ErrMissingEntity)
	}
	destination, err := p.store.GetItem(ctx, jt.ItemUUID)
	if err != nil {
		return nil, err
	}
	if destination == nil {
		return nil, fmt.Errorf("designated destination %s: %w", jt.ItemUUID, inventory.ErrMissingEntity)
	}
	job := newJob(inventory.JobStoreDesignated, *item)
	job.Destination = destination
	return []inventory.RobotJob{job}, nil
}
