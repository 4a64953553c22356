package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const engineVersion = "2.0.0"

// RunExport is the root JSON structure of the run record
type RunExport struct {
	ExperimentName   string         `json:"experimentName"`
	EngineVersion    string         `json:"engineVersion"`
	AssetID          string         `json:"assetId"`
	Seed             int64          `json:"seed"`
	TargetFrames     int            `json:"targetFrames"`
	ImageWidth       int            `json:"imageWidth"`
	ImageHeight      int            `json:"imageHeight"`
	StartedAt        time.Time      `json:"startedAt"`
	EndedAt          time.Time      `json:"endedAt"`
	Status           string         `json:"status"`
	FramesGenerated  int            `json:"framesGenerated"`
	FramesFailed     int            `json:"framesFailed"`
	Vehicles         int            `json:"vehicles"`
	Annotations      int            `json:"annotations"`
	AvgVehicles      float64        `json:"avgVehicles"`
	AvgFrameMillis   float64        `json:"avgFrameMillis"`
	RejectionReasons map[string]int `json:"rejectionReasons,omitempty"`
	ClassCounts      map[string]int `json:"classCounts,omitempty"`
	Frames           []FrameJSON    `json:"frames"`
	Failures         []FailureJSON  `json:"failures"`
}

// FrameJSON is one frame attempt in the run record
type FrameJSON struct {
	FrameIndex   int        `json:"frameIndex"`
	ImageFile    string     `json:"imageFile"`
	Accepted     bool       `json:"accepted"`
	Verdict      string     `json:"verdict"`
	VehicleCount int        `json:"vehicleCount"`
	ValidCount   int        `json:"validCount"`
	Camera       CameraJSON `json:"camera"`
	Seed         int64      `json:"seed"`
	GenerationMs float64    `json:"generationMs"`
}

// CameraJSON is the resolved camera for one frame
type CameraJSON struct {
	Position [3]float64 `json:"position"`
	PitchDeg float64    `json:"pitchDeg"`
	YawDeg   float64    `json:"yawDeg"`
	FovDeg   float64    `json:"fovDeg"`
	Attempts int        `json:"attempts"`
}

// FailureJSON is one structured failure in the run record
type FailureJSON struct {
	FrameIndex int       `json:"frameIndex"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	Affected   []string  `json:"affected,omitempty"`
	Remedy     string    `json:"remedy,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// exportJSON writes the run record to a JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	runName := strings.ReplaceAll(b.run.Name, " ", "_")
	runName = strings.ReplaceAll(runName, ":", "_")
	timestamp := b.run.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", runName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", runName, timestamp)
	}

	outputPath := filepath.Join(b.run.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.run.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() RunExport {
	export := RunExport{
		ExperimentName: b.run.Name,
		EngineVersion:  engineVersion,
		AssetID:        b.run.AssetID,
		Seed:           b.run.Seed,
		TargetFrames:   b.run.TargetFrames,
		ImageWidth:     b.run.ImageWidth,
		ImageHeight:    b.run.ImageHeight,
		StartedAt:      b.run.StartedAt,
		Frames:         make([]FrameJSON, 0, len(b.frames)),
		Failures:       make([]FailureJSON, 0, len(b.failures)),
	}

	if b.summary != nil {
		export.EndedAt = b.summary.EndedAt
		export.Status = b.summary.Status
		export.FramesGenerated = b.summary.FramesGenerated
		export.FramesFailed = b.summary.FramesFailed
		export.Vehicles = b.summary.Vehicles
		export.Annotations = b.summary.Annotations
		export.AvgVehicles = b.summary.AvgVehicles
		export.AvgFrameMillis = b.summary.AvgFrameMillis
		export.RejectionReasons = b.summary.RejectionReasons
		export.ClassCounts = b.summary.ClassCounts
	}

	for _, rec := range b.frames {
		export.Frames = append(export.Frames, FrameJSON{
			FrameIndex:   rec.Annotation.FrameIndex,
			ImageFile:    rec.Annotation.ImageFilename,
			Accepted:     rec.Accepted(),
			Verdict:      string(rec.Verdict.OverallResult),
			VehicleCount: len(rec.Vehicles),
			ValidCount:   rec.Annotation.ValidCount(),
			Camera: CameraJSON{
				Position: [3]float64{
					rec.Camera.Pose.Location.X,
					rec.Camera.Pose.Location.Y,
					rec.Camera.Pose.Location.Z,
				},
				PitchDeg: rec.Camera.Pose.Rotation.Pitch,
				YawDeg:   rec.Camera.Pose.Rotation.Yaw,
				FovDeg:   rec.Camera.FOV,
				Attempts: rec.Camera.Attempts,
			},
			Seed:         rec.Seed,
			GenerationMs: rec.GenerationMs,
		})
	}

	for _, rec := range b.failures {
		export.Failures = append(export.Failures, FailureJSON{
			FrameIndex: rec.FrameIndex,
			Stage:      string(rec.Failure.Kind),
			Reason:     rec.Failure.Message,
			Affected:   rec.Failure.Affected,
			Remedy:     rec.Failure.Remedy,
			OccurredAt: rec.OccurredAt,
		})
	}

	return export
}

func (b *Backend) writeJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
