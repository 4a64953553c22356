// Package convert maps run artifacts between the persistence models and
// the domain types they were recorded from.
package convert

import (
	"database/sql"
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/model"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// positionToPoint converts a core.Vector3 to a geom.Point
func positionToPoint(v core.Vector3) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Y}, Z: v.Z}
	pt, _ := geom.NewPoint(coords)
	return pt
}

// stringsToJSON converts a []string to datatypes.JSON for DB storage.
func stringsToJSON(items []string) datatypes.JSON {
	if len(items) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(items)
	return datatypes.JSON(data)
}

// countsToJSON converts a histogram to datatypes.JSON for DB storage.
func countsToJSON(counts map[string]int) datatypes.JSON {
	if len(counts) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(counts)
	return datatypes.JSON(data)
}

// issuesToJSON converts validator issues to datatypes.JSON for DB storage.
func issuesToJSON(issues []annotation.Issue) datatypes.JSON {
	if len(issues) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(issues)
	return datatypes.JSON(data)
}

// colorHex formats a paint color as #RRGGBB.
func colorHex(c core.Color) string {
	const hexdigits = "0123456789ABCDEF"
	return string([]byte{
		'#',
		hexdigits[c.R>>4], hexdigits[c.R&0x0F],
		hexdigits[c.G>>4], hexdigits[c.G&0x0F],
		hexdigits[c.B>>4], hexdigits[c.B&0x0F],
	})
}

// InfoToRun converts a storage.RunInfo to a GORM model.Run.
// Status and engine version come from column defaults.
func InfoToRun(info storage.RunInfo) model.Run {
	var snapshot datatypes.JSON
	if len(info.Settings) > 0 {
		snapshot, _ = json.Marshal(info.Settings)
	} else {
		snapshot = datatypes.JSON("{}")
	}

	return model.Run{
		RunName:        info.Name,
		AssetID:        info.AssetID,
		Seed:           info.Seed,
		TargetFrames:   uint(info.TargetFrames),
		ImageWidth:     info.ImageWidth,
		ImageHeight:    info.ImageHeight,
		StartTime:      info.StartedAt,
		OutputDir:      info.OutputDir,
		ConfigSnapshot: snapshot,
	}
}

// RecordToFrame converts a storage.FrameRecord to a GORM model.Frame,
// including its Placement and Annotation children. RunID is stamped on
// the frame and every child so the rows can be created in one pass.
func RecordToFrame(runID uint, rec storage.FrameRecord) model.Frame {
	f := rec.Annotation
	frame := model.Frame{
		Time:           rec.RecordedAt,
		RunID:          runID,
		FrameIndex:     uint(f.FrameIndex),
		ImageID:        f.ImageID,
		ImageFile:      f.ImageFilename,
		ImageWidth:     f.ImageWidth,
		ImageHeight:    f.ImageHeight,
		Accepted:       rec.Verdict.Accepted(),
		Verdict:        string(rec.Verdict.OverallResult),
		VehicleCount:   len(rec.Vehicles),
		ValidCount:     f.ValidCount(),
		Seed:           rec.Seed,
		CameraAttempts: rec.Camera.Attempts,
		Camera: model.CameraPose{
			X:     rec.Camera.Pose.Location.X,
			Y:     rec.Camera.Pose.Location.Y,
			Z:     rec.Camera.Pose.Location.Z,
			Pitch: rec.Camera.Pose.Rotation.Pitch,
			Yaw:   rec.Camera.Pose.Rotation.Yaw,
			Roll:  rec.Camera.Pose.Rotation.Roll,
			Fov:   rec.Camera.FOV,
		},
		GenerationMs: rec.GenerationMs,
		Issues:       issuesToJSON(rec.Verdict.Issues),
	}

	for _, v := range rec.Vehicles {
		frame.Placements = append(frame.Placements, VehicleToPlacement(runID, v))
	}
	for _, inst := range f.Instances {
		frame.Annotations = append(frame.Annotations, InstanceToAnnotation(runID, inst))
	}
	return frame
}

// VehicleToPlacement converts a core.SpawnedVehicle to a GORM model.Placement.
func VehicleToPlacement(runID uint, v core.SpawnedVehicle) model.Placement {
	detail, _ := json.Marshal(map[string]any{"dimensions": v.Dimensions})

	return model.Placement{
		RunID:       runID,
		InstanceID:  v.InstanceID,
		Class:       string(v.Class),
		Actor:       string(v.Actor),
		ZoneID:      v.ZoneID,
		ZoneType:    v.ZoneType,
		SlotID:      v.SlotID,
		Position:    positionToPoint(v.Transform.Location),
		ElevationCm: v.Transform.Location.Z,
		Yaw:         v.Transform.Rotation.Yaw,
		Color:       colorHex(v.Color),
		Detail:      datatypes.JSON(detail),
	}
}

// InstanceToAnnotation converts an annotation.Instance to a GORM model.Annotation.
func InstanceToAnnotation(runID uint, inst annotation.Instance) model.Annotation {
	return model.Annotation{
		RunID:        runID,
		InstanceID:   inst.InstanceID,
		CategoryID:   inst.CategoryID,
		CategoryName: inst.CategoryName,
		Bbox: model.Bbox{
			X:      inst.BBox.X,
			Y:      inst.BBox.Y,
			Width:  inst.BBox.Width,
			Height: inst.BBox.Height,
		},
		Area:       inst.Area,
		Truncation: inst.Truncation,
		Occluded:   inst.Occluded,
		Valid:      inst.Valid,
		Issues:     stringsToJSON(inst.Issues),
	}
}

// FailureToEvent converts a storage.FailureRecord to a GORM model.FailureEvent.
func FailureToEvent(runID uint, rec storage.FailureRecord) model.FailureEvent {
	return model.FailureEvent{
		Time:       rec.OccurredAt,
		RunID:      runID,
		FrameIndex: uint(rec.FrameIndex),
		Stage:      string(rec.Failure.Kind),
		Reason:     rec.Failure.Message,
		Remedy:     rec.Failure.Remedy,
		Affected:   stringsToJSON(rec.Failure.Affected),
	}
}

// ApplySummary writes the end-of-run aggregates onto a run row.
func ApplySummary(run *model.Run, s storage.RunSummary) {
	run.Status = s.Status
	run.EndTime = sql.NullTime{Time: s.EndedAt, Valid: true}
	run.Totals = model.RunTotals{
		FramesGenerated: uint(s.FramesGenerated),
		FramesFailed:    uint(s.FramesFailed),
		Vehicles:        uint(s.Vehicles),
		Annotations:     uint(s.Annotations),
		AvgVehicles:     s.AvgVehicles,
		AvgFrameMillis:  s.AvgFrameMillis,
	}
	run.RejectionReasons = countsToJSON(s.RejectionReasons)
	run.ClassCounts = countsToJSON(s.ClassCounts)
}
