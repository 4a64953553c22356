// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// RunInfo describes a generation run at start time.
type RunInfo struct {
	Name         string
	AssetID      string
	Seed         int64
	TargetFrames int
	ImageWidth   int
	ImageHeight  int
	OutputDir    string
	StartedAt    time.Time
	Settings     map[string]any // effective configuration snapshot
}

// FrameRecord is everything persisted about one attempted frame.
// Accepted and rejected frames are both recorded; the verdict carries
// the distinction.
type FrameRecord struct {
	Annotation   annotation.Frame
	Verdict      annotation.FrameResult
	Vehicles     []core.SpawnedVehicle
	Camera       camera.FitResult
	Seed         int64 // effective seed after retry offsets
	GenerationMs float64
	RecordedAt   time.Time
}

// Accepted reports whether the frame entered the dataset.
func (r *FrameRecord) Accepted() bool {
	return r.Verdict.Accepted()
}

// FailureRecord is a structured failure attributed to a frame attempt.
type FailureRecord struct {
	FrameIndex int
	Failure    core.Failure
	OccurredAt time.Time
}

// RunSummary closes out a run.
type RunSummary struct {
	Status           string // completed or aborted
	EndedAt          time.Time
	FramesGenerated  int
	FramesFailed     int
	Vehicles         int
	Annotations      int
	AvgVehicles      float64
	AvgFrameMillis   float64
	RejectionReasons map[string]int
	ClassCounts      map[string]int
}

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management
	StartRun(info *RunInfo) error
	EndRun(summary *RunSummary) error

	// Artifact recording
	RecordFrame(rec *FrameRecord) error
	RecordFailure(rec *FailureRecord) error
}

// Exporter is an optional interface for backends that can reproduce the
// COCO dataset document from their records.
type Exporter interface {
	Dataset() (annotation.Dataset, error)
	ExportedFilePath() string
}
