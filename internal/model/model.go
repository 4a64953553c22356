package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&DatasetInfo{},
	&Run{},
	&Frame{},
	&Placement{},
	&Annotation{},
	&FailureEvent{},
}

// DatabaseModelsSQLite is the schema list for the local fallback database.
var DatabaseModelsSQLite = []interface{}{
	&DatasetInfo{},
	&Run{},
	&Frame{},
	&Placement{},
	&Annotation{},
	&FailureEvent{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// DatasetInfo carries the identity block stamped into every COCO export
// produced from this database.
type DatasetInfo struct {
	gorm.Model
	Description string `json:"description" gorm:"size:255"`
	Version     string `json:"version" gorm:"size:32"`
	Year        int    `json:"year"`
	Contributor string `json:"contributor" gorm:"size:127"`
}

func (*DatasetInfo) TableName() string {
	return "dataset_infos"
}

////////////////////////
// RUN MODELS
////////////////////////

// Run is one dataset generation run.
//
// Dispatcher event: :RUN:START: opens the row, :RUN:END: closes it with
// totals and a final status.
type Run struct {
	gorm.Model
	RunName        string         `json:"runName" gorm:"size:200"`
	AssetID        string         `json:"assetId" gorm:"size:127"`                               // Scene asset the zone manifest belongs to
	Seed           int64          `json:"seed"`                                                  // Base RNG seed for the run
	TargetFrames   uint           `json:"targetFrames"`                                          // Accepted-frame goal
	ImageWidth     int            `json:"imageWidth"`
	ImageHeight    int            `json:"imageHeight"`
	StartTime      time.Time      `json:"startTime" gorm:"type:timestamptz;index:idx_run_start"` // Wall-clock run start
	EndTime        sql.NullTime   `json:"endTime" gorm:"type:timestamptz;default:NULL"`          // Null while the run is live
	Status         string         `json:"status" gorm:"size:32;default:running"`                 // running, completed, aborted
	OutputDir      string         `json:"outputDir" gorm:"size:255"`
	EngineVersion  string         `json:"engineVersion" gorm:"size:64;default:2.0.0"`
	ConfigSnapshot datatypes.JSON `json:"configSnapshot" gorm:"type:jsonb;default:'{}'"` // Effective settings at run start

	Totals           RunTotals      `json:"totals" gorm:"embedded;embeddedPrefix:total_"`
	RejectionReasons datatypes.JSON `json:"rejectionReasons" gorm:"type:jsonb;default:'{}'"` // check name -> rejected frame count
	ClassCounts      datatypes.JSON `json:"classCounts" gorm:"type:jsonb;default:'{}'"`      // vehicle class -> instances placed

	Frames   []Frame
	Failures []FailureEvent
}

func (*Run) TableName() string {
	return "runs"
}

// Get fills r with the most recent run matching its set fields.
func (r *Run) Get(db *gorm.DB) (err error) {
	err = db.Where(r).Order(
		"start_time DESC",
	).First(r).Error
	return err
}

// RunTotals aggregates a finished run. Written once when the run ends.
type RunTotals struct {
	FramesGenerated uint    `json:"framesGenerated"` // Accepted frames
	FramesFailed    uint    `json:"framesFailed"`    // Rejected or aborted frames
	Vehicles        uint    `json:"vehicles"`        // Vehicles placed across accepted frames
	Annotations     uint    `json:"annotations"`     // Valid instances exported
	AvgVehicles     float64 `json:"avgVehicles"`     // Mean vehicles per accepted frame
	AvgFrameMillis  float64 `json:"avgFrameMillis"`  // Mean wall-clock per attempted frame
}

// Frame is one attempted frame and its validation verdict.
// Accepted and rejected frames both land here so rejection analysis can
// run against the same table.
//
// Dispatcher events: :FRAME:ACCEPT:, :FRAME:REJECT:
type Frame struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;"` // Server time when the frame finished
	RunID uint      `json:"runId" gorm:"index:idx_frame_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	FrameIndex     uint           `json:"frameIndex" gorm:"index:idx_frame_index"`  // Zero-based index in the run timeline
	ImageID        int            `json:"imageId"`                                  // COCO image id (frame index + 1)
	ImageFile      string         `json:"imageFile" gorm:"size:255"`                // Relative capture path, e.g. images/frame_000042.png
	ImageWidth     int            `json:"imageWidth"`
	ImageHeight    int            `json:"imageHeight"`
	Accepted       bool           `json:"accepted" gorm:"index:idx_frame_accepted"` // Whether the frame entered the dataset
	Verdict        string         `json:"verdict" gorm:"size:8"`                    // PASS, WARN, FAIL
	VehicleCount   int            `json:"vehicleCount"`                             // Vehicles placed in the frame
	ValidCount     int            `json:"validCount"`                               // Instances that passed annotation checks
	Seed           int64          `json:"seed"`                                     // Effective seed after retry offsets
	CameraAttempts int            `json:"cameraAttempts"`                           // FOV search iterations used
	Camera         CameraPose     `json:"camera" gorm:"embedded;embeddedPrefix:camera_"`
	GenerationMs   float64        `json:"generationMs"`                             // Wall-clock for the whole attempt
	Issues         datatypes.JSON `json:"issues" gorm:"type:jsonb;default:'[]'"`    // Validator issues as JSON array

	Placements  []Placement  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Annotations []Annotation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Frame) TableName() string {
	return "frames"
}

// CameraPose is the resolved camera for a frame.
type CameraPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
	Fov   float64 `json:"fov"` // Final horizontal FOV in degrees
}

// Placement is one vehicle spawned into a frame.
type Placement struct {
	ID      uint  `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID   uint  `json:"runId" gorm:"index:idx_placement_run_id"`
	FrameID uint  `json:"frameId" gorm:"index:idx_placement_frame_id"`
	Frame   Frame `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FrameID;"`

	InstanceID  string         `json:"instanceId" gorm:"size:64;index:idx_placement_instance_id"` // Per-frame instance identifier
	Class       string         `json:"class" gorm:"size:32"`                                      // car, truck, bus, motorcycle, bicycle
	Actor       string         `json:"actor" gorm:"size:64"`                                      // Scene-host actor handle
	ZoneID      string         `json:"zoneId" gorm:"size:127"`                                    // Zone the vehicle was placed in
	ZoneType    string         `json:"zoneType" gorm:"size:32"`                                   // road or parking
	SlotID      string         `json:"slotId" gorm:"size:127;default:NULL"`                       // Parking slot id, empty for lane placements
	Position    geom.Point     `json:"position"`                                                  // Ground-plane position in scene centimeters
	ElevationCm float64        `json:"elevationCm"`                                               // Z coordinate
	Yaw         float64        `json:"yaw"`                                                       // Heading in degrees
	Color       string         `json:"color" gorm:"size:16"`                                      // Paint color as #RRGGBB
	Detail      datatypes.JSON `json:"detail" gorm:"type:jsonb;default:'{}'"`                     // Dimensions and other class metadata
}

func (*Placement) TableName() string {
	return "placements"
}

// Annotation is one instance's 2D grading within a frame. Invalid
// instances are kept with their issues so threshold tuning can query them.
type Annotation struct {
	ID      uint  `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID   uint  `json:"runId" gorm:"index:idx_annotation_run_id"`
	FrameID uint  `json:"frameId" gorm:"index:idx_annotation_frame_id"`
	Frame   Frame `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FrameID;"`

	InstanceID   string         `json:"instanceId" gorm:"size:64;index:idx_annotation_instance_id"`
	CategoryID   int            `json:"categoryId"`                             // 1-based COCO category
	CategoryName string         `json:"categoryName" gorm:"size:32"`
	Bbox         Bbox           `json:"bbox" gorm:"embedded;embeddedPrefix:bbox_"`
	Area         float64        `json:"area"`                                   // Pixel area after clipping
	Truncation   float64        `json:"truncation"`                             // 0.0 fully inside, 1.0 fully clipped
	Occluded     bool           `json:"occluded"`
	Valid        bool           `json:"valid" gorm:"index:idx_annotation_valid"`
	Issues       datatypes.JSON `json:"issues" gorm:"type:jsonb;default:'[]'"`  // Threshold violations as JSON array
}

func (*Annotation) TableName() string {
	return "annotations"
}

// Bbox is a pixel-space bounding box in COCO x/y/width/height form.
type Bbox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FailureEvent is a structured failure recorded during a run: an aborted
// frame, a dropped vehicle, or a stage error with its remedy hint.
type FailureEvent struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;"`
	RunID uint      `json:"runId" gorm:"index:idx_failureevent_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	FrameIndex uint           `json:"frameIndex" gorm:"index:idx_failureevent_frame_index;"` // Frame being attempted when the failure occurred
	Stage      string         `json:"stage" gorm:"size:32"`                                  // allocation, spacing, camera_fit, projection, frame_validation, config
	Reason     string         `json:"reason" gorm:"size:255"`
	Remedy     string         `json:"remedy" gorm:"size:255"`
	Affected   datatypes.JSON `json:"affected" gorm:"type:jsonb;default:'[]'"` // Instance ids the failure touched
}

func (*FailureEvent) TableName() string {
	return "failure_events"
}
