// Package inventory defines the domain entities of the warehouse model and
// the Store interface that persists them.
//
// The model is uuid-keyed: items reference other items by uuid in their
// stack, and barcodes reference their owning item by item_uuid. Nothing in
// this package holds direct pointers between entities; lookups always go
// through the store.
package inventory

import (
	"errors"
	"fmt"

	"orbit/internal/geometry"
)

// Item types.
const (
	ItemTypeBox      = "box"
	ItemTypeEmpty    = "empty"
	ItemTypeConveyor = "conveyor"
)

// Item locations. An item is in inventory or on the robot, never both.
const (
	LocationInventory = "inventory"
	LocationRobot     = "robot"
)

// Shelf sides as presented to the robot.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Robot job types.
const (
	JobFetchInventory  = "FETCH_INVENTORY"
	JobStoreInventory  = "STORE_INVENTORY"
	JobFetchDesignated = "FETCH_DESIGNATED"
	JobStoreDesignated = "STORE_DESIGNATED"
)

// Inventory change kinds carried by ItemUpdate.
const (
	ChangeCreated = "CREATED"
	ChangeUpdated = "UPDATED"
	ChangeDeleted = "DELETED"
)

// PrimaryBarcodeTypes are the barcode symbologies a client may use to refer
// to an item. Every box must carry at least one before it can be fetched.
var PrimaryBarcodeTypes = []string{"GS1-128", "Code 128"}

// IsPrimaryBarcodeType reports whether t is a primary symbology.
func IsPrimaryBarcodeType(t string) bool {
	for _, p := range PrimaryBarcodeTypes {
		if t == p {
			return true
		}
	}
	return false
}

var (
	// ErrMissingEntity indicates a required barcode, item, or job-type
	// lookup came back empty.
	ErrMissingEntity = errors.New("entity not found")

	// ErrAmbiguous indicates multiple barcodes share the same data.
	ErrAmbiguous = errors.New("ambiguous barcode data")

	// ErrMissingAlignedAxis indicates an entity has no aligned axis, so its
	// bounding box cannot be computed.
	ErrMissingAlignedAxis = errors.New("missing aligned axis")
)

// Timestamp is a sensor timestamp.
type Timestamp struct {
	Sec     int64 `json:"sec"`
	Nanosec int64 `json:"nanosec"`
}

// Header carries a timestamp and the frame the coordinates are expressed in.
type Header struct {
	Stamp   Timestamp `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// boundingBox computes the bbox shared by items, barcodes, and partials:
// position is the bottom-center on the shelf plane, so the box spans
// [p_a - w/2, p_a + w/2] x [p_y, p_y + h] where a is the aligned axis.
func boundingBox(position geometry.Vector3, dimension geometry.Vector3, alignedAxis string) (geometry.Rectangle, error) {
	center, ok := position.Component(alignedAxis)
	if !ok {
		return geometry.Rectangle{}, ErrMissingAlignedAxis
	}
	width, height := dimension.X, dimension.Y
	return geometry.Rectangle{
		BottomLeft: geometry.Vector2{X: center - width/2, Y: position.Y},
		TopRight:   geometry.Vector2{X: center + width/2, Y: position.Y + height},
	}, nil
}

// PartialItemMeta identifies the scan a partial detection came from.
type PartialItemMeta struct {
	ItemType   string  `json:"item_type"`
	Confidence float64 `json:"confidence"`
	ImageID    string  `json:"image_id,omitempty"`
	ScanID     string  `json:"scan_id"`
	AisleIndex int     `json:"aisle_index"`
}

// PartialItemAbsolute is a detection's placement in the world frame.
type PartialItemAbsolute struct {
	Position    geometry.Vector3 `json:"position"`
	Dimension   geometry.Vector3 `json:"dimension"`
	AlignedAxis string           `json:"aligned_axis"`
}

// PartialItemRelative is a detection's placement relative to its image.
type PartialItemRelative struct {
	Header    Header           `json:"header"`
	Position  geometry.Vector3 `json:"position"`
	Dimension geometry.Vector3 `json:"dimension"`
	Side      string           `json:"side"`
}

// PartialItem is one uncertain detection from one image. Many partials of
// the same physical object exist across scans; the compiler merges them.
type PartialItem struct {
	ID       string              `json:"-"`
	Meta     PartialItemMeta     `json:"meta"`
	Relative PartialItemRelative `json:"relative"`
	Absolute PartialItemAbsolute `json:"absolute"`
}

// BoundingBox returns the detection's bbox on the shelf plane.
func (p PartialItem) BoundingBox() (geometry.Rectangle, error) {
	return boundingBox(p.Absolute.Position, p.Relative.Dimension, p.Absolute.AlignedAxis)
}

// BarcodeMeta holds the decoded symbology and payload.
type BarcodeMeta struct {
	BarcodeType string `json:"barcode_type"`
	Data        string `json:"data"`
	ScanID      string `json:"scan_id,omitempty"`
	ImageID     string `json:"-"`
	AisleIndex  int    `json:"aisle_index"`
}

// BarcodeAbsolute is a barcode's placement in the world frame. Dimension and
// aligned axis are unset on partial detections fresh off the robot.
type BarcodeAbsolute struct {
	Position    geometry.Vector3  `json:"position"`
	Dimension   *geometry.Vector3 `json:"dimension,omitempty"`
	AlignedAxis string            `json:"aligned_axis,omitempty"`
}

// BarcodeRelative is a barcode's placement relative to its image, or to its
// owning item once assigned (frame_id "parent_item").
type BarcodeRelative struct {
	Header    Header           `json:"header"`
	Position  geometry.Vector3 `json:"position"`
	Dimension geometry.Vector3 `json:"dimension"`
	Side      string           `json:"side"`
}

// Barcode serves both partial detections and canonical barcodes; canonical
// ones carry the uuid of the item they are attached to.
type Barcode struct {
	ID       string          `json:"-"`
	Meta     BarcodeMeta     `json:"meta"`
	Absolute BarcodeAbsolute `json:"absolute"`
	Relative BarcodeRelative `json:"relative"`
	ItemUUID string          `json:"item_uuid,omitempty"`
}

// BoundingBox returns the barcode's bbox on the shelf plane.
func (b Barcode) BoundingBox() (geometry.Rectangle, error) {
	return boundingBox(b.Absolute.Position, b.Relative.Dimension, b.Absolute.AlignedAxis)
}

// ItemMeta is the mutable bookkeeping state of an item.
type ItemMeta struct {
	ItemType    string   `json:"item_type,omitempty"`
	Stack       []string `json:"stack"`
	Location    string   `json:"location,omitempty"`
	Destination *string  `json:"destination,omitempty"`
	Available   bool     `json:"available"`
	AisleIndex  int      `json:"aisle_index"`
	ScanID      string   `json:"scan_id,omitempty"`
}

// ItemAbsolute is an item's address in the world frame. Position is the
// bottom-center of the item on the shelf plane.
type ItemAbsolute struct {
	DepthIndex  *int              `json:"depth_index,omitempty"`
	StackIndex  *int              `json:"stack_index,omitempty"`
	Position    geometry.Vector3  `json:"position"`
	Dimension   *geometry.Vector3 `json:"-"`
	Waypoint    *string           `json:"waypoint,omitempty"`
	AlignedAxis string            `json:"aligned_axis,omitempty"`
}

// ItemRelative is an item's extent on the shelf face.
type ItemRelative struct {
	Header    *Header           `json:"-"`
	Position  *geometry.Vector3 `json:"-"`
	Dimension geometry.Vector3  `json:"dimension"`
	Side      string            `json:"side"`
}

// Item is a canonical inventory entity: a box, an empty shelf region, or a
// conveyor endpoint.
type Item struct {
	Barcodes []Barcode    `json:"barcodes"`
	Meta     ItemMeta     `json:"meta"`
	Absolute ItemAbsolute `json:"absolute"`
	Relative ItemRelative `json:"relative"`
	UUID     string       `json:"uuid"`

	// PrimaryBarcode is populated only on items sent to or received from
	// the robot; it is never persisted on the inventory document.
	PrimaryBarcode *Barcode `json:"primary_barcode,omitempty"`
}

// BoundingBox returns the item's bbox on the shelf plane.
func (it Item) BoundingBox() (geometry.Rectangle, error) {
	return boundingBox(it.Absolute.Position, it.Relative.Dimension, it.Absolute.AlignedAxis)
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	out.Barcodes = append([]Barcode(nil), it.Barcodes...)
	out.Meta.Stack = append([]string(nil), it.Meta.Stack...)
	out.Meta.Destination = clonePtr(it.Meta.Destination)
	out.Absolute.DepthIndex = clonePtr(it.Absolute.DepthIndex)
	out.Absolute.StackIndex = clonePtr(it.Absolute.StackIndex)
	out.Absolute.Dimension = clonePtr(it.Absolute.Dimension)
	out.Absolute.Waypoint = clonePtr(it.Absolute.Waypoint)
	out.Relative.Header = clonePtr(it.Relative.Header)
	out.Relative.Position = clonePtr(it.Relative.Position)
	if it.PrimaryBarcode != nil {
		pb := *it.PrimaryBarcode
		out.PrimaryBarcode = &pb
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RobotJob is one low-level robot manipulation, planned by the batch planner
// and reported back by the robot with the outcome fields filled in.
type RobotJob struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type"`
	Item         Item   `json:"item"`
	Destination  *Item  `json:"destination,omitempty"`
	FutureUUID   string `json:"future_uuid,omitempty"`
	Attempted    *bool  `json:"attempted,omitempty"`
	Success      *bool  `json:"success,omitempty"`
	ErrorCode    *int   `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Clone returns a deep copy of the job.
func (j RobotJob) Clone() RobotJob {
	out := j
	out.Item = j.Item.Clone()
	if j.Destination != nil {
		d := j.Destination.Clone()
		out.Destination = &d
	}
	out.Attempted = clonePtr(j.Attempted)
	out.Success = clonePtr(j.Success)
	out.ErrorCode = clonePtr(j.ErrorCode)
	return out
}

// RobotBatch is an ordered sequence of robot jobs; the robot executes them
// in order and responses preserve the order.
type RobotBatch struct {
	BatchID string     `json:"batch_id"`
	Jobs    []RobotJob `json:"jobs"`
}

// Clone returns a deep copy of the batch.
func (b RobotBatch) Clone() RobotBatch {
	out := b
	out.Jobs = make([]RobotJob, len(b.Jobs))
	for i, j := range b.Jobs {
		out.Jobs[i] = j.Clone()
	}
	return out
}

// ResultHeader is the aggregate outcome of a robot batch or scan.
type ResultHeader struct {
	Success        bool   `json:"success"`
	ErrorCode      int    `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	SafeToContinue bool   `json:"safe_to_continue"`
}

// ItemUpdate is one entry of the change log broadcast on inventory/updates.
type ItemUpdate struct {
	Change string `json:"change"`
	Item   Item   `json:"item"`
}

// ScanImage is the raster a set of partial detections was extracted from.
// The image payload itself is base64; raw bytes live in blob storage.
type ScanImage struct {
	ID              string           `json:"-"`
	Image           string           `json:"image,omitempty"`
	ImageFilename   string           `json:"image_filename,omitempty"`
	ImageBottomLeft geometry.Vector2 `json:"image_bottom_left"`
	ImageTopRight   geometry.Vector2 `json:"image_top_right"`
	Stamp           Timestamp        `json:"stamp"`
	ScanID          string           `json:"scan_id"`
	Side            string           `json:"side,omitempty"`
	AisleIndex      int              `json:"aisle_index"`
}

// RenderScanRequest asks for a refresh of the stored inventory renders.
type RenderScanRequest struct {
	Vendor   string `json:"vendor"`
	UserID   string `json:"user_id"`
	ItemType string `json:"item_type,omitempty"`
	Debug    bool   `json:"debug"`
}

// RenderItemData is one rectangle trace of a render.
type RenderItemData struct {
	Item Item    `json:"item"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// RenderMeta identifies which shelf face a render covers.
type RenderMeta struct {
	Side       string `json:"side"`
	AisleIndex int    `json:"aisle_index"`
}

// RenderImageMeta locates the composited backdrop image in blob storage.
type RenderImageMeta struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	ContainerName string  `json:"container_name,omitempty"`
	BlobName      string  `json:"blob_name,omitempty"`
}

// Render is the stored snapshot of one shelf face.
type Render struct {
	Request      RenderScanRequest `json:"request"`
	Meta         RenderMeta        `json:"meta"`
	Data         []RenderItemData  `json:"data"`
	ImgMeta      *RenderImageMeta  `json:"img_meta,omitempty"`
	CreatedAtUTC float64           `json:"created_at_utc"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// wrapMissing tags a lookup failure with the entity description.
func wrapMissing(what string) error {
	return fmt.Errorf("%s: %w", what, ErrMissingEntity)
}
