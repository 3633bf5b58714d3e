// Package scan turns raw robot scan traffic into canonical inventory: it
// ingests per-image detections, and compiles accumulated partials into
// merged items, barcodes, and stacks.
package scan

import (
	"orbit/internal/geometry"
	"orbit/internal/inventory"
)

// Request is a client request to drive a shelf scan.
type Request struct {
	Vendor             string  `json:"vendor"`
	UserID             string  `json:"user_id"`
	StartHeight        float64 `json:"start_height"`
	EndHeight          float64 `json:"end_height"`
	HeightStep         float64 `json:"height_step"`
	AisleIndex         int     `json:"aisle_index"`
	WaypointStartIndex *int    `json:"waypoint_start_index,omitempty"`
	WaypointEndIndex   *int    `json:"waypoint_end_index,omitempty"`
	WaypointIndices    []int   `json:"waypoint_indices,omitempty"`
	OverwriteScanID    string  `json:"overwrite_scan_id,omitempty"`
	ScanID             string  `json:"scan_id"`
}

// RobotRequest is the scan command forwarded to the robot.
type RobotRequest struct {
	ScanID             string  `json:"scan_id"`
	StartHeight        float64 `json:"start_height"`
	EndHeight          float64 `json:"end_height"`
	HeightStep         float64 `json:"height_step"`
	AisleIndex         int     `json:"aisle_index"`
	WaypointStartIndex int     `json:"waypoint_start_index"`
	WaypointEndIndex   int     `json:"waypoint_end_index"`
	WaypointIndices    []int   `json:"waypoint_indices"`
}

// RobotRequest converts the client request into the robot command. An
// overwrite scan id replaces the generated one, so a rescan can extend an
// earlier scan's partial set.
func (r Request) RobotRequest() RobotRequest {
	scanID := r.ScanID
	if r.OverwriteScanID != "" {
		scanID = r.OverwriteScanID
	}
	out := RobotRequest{
		ScanID:          scanID,
		StartHeight:     r.StartHeight,
		EndHeight:       r.EndHeight,
		HeightStep:      r.HeightStep,
		AisleIndex:      r.AisleIndex,
		WaypointIndices: []int{},
	}
	if r.WaypointStartIndex != nil {
		out.WaypointStartIndex = *r.WaypointStartIndex
	}
	if r.WaypointEndIndex != nil {
		out.WaypointEndIndex = *r.WaypointEndIndex
	}
	if r.WaypointIndices != nil {
		out.WaypointIndices = r.WaypointIndices
	}
	return out
}

// RobotResponse is the robot's scan completion callback.
type RobotResponse struct {
	Header inventory.ResultHeader `json:"header"`
}

// Data is one scan image worth of detections reported by the robot.
type Data struct {
	Stamp           inventory.Timestamp     `json:"stamp"`
	ScanID          string                  `json:"scan_id"`
	Side            string                  `json:"side"`
	Image           string                  `json:"image"`
	AisleIndex      int                     `json:"aisle_index"`
	ImageBottomLeft geometry.Vector2        `json:"image_bottom_left"`
	ImageTopRight   geometry.Vector2        `json:"image_top_right"`
	ImageFilename   string                  `json:"image_filename"`
	PartialItems    []inventory.PartialItem `json:"partial_items"`
	Barcodes        []inventory.Barcode     `json:"barcodes"`
}

// CompileRequest asks for accumulated partials to be compiled into
// canonical inventory. Nil ItemType, Side, or AisleIndex compile all.
type CompileRequest struct {
	Vendor              string  `json:"vendor"`
	UserID              string  `json:"user_id"`
	ItemType            *string `json:"item_type,omitempty"`
	Side                *string `json:"side,omitempty"`
	AisleIndex          *int    `json:"aisle_index,omitempty"`
	ScanID              string  `json:"scan_id"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Force               bool    `json:"force"`
	Overwrite           bool    `json:"overwrite"`
}
