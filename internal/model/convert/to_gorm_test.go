package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func TestPositionToPoint(t *testing.T) {
	pos := core.Vector3{X: 1250.5, Y: -340.25, Z: 15.0}
	pt := positionToPoint(pos)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 1250.5, coord.XY.X)
	assert.Equal(t, -340.25, coord.XY.Y)
	assert.Equal(t, 15.0, coord.Z)
}

func TestColorHex(t *testing.T) {
	tests := []struct {
		color core.Color
		want  string
	}{
		{core.Color{R: 255, G: 255, B: 255}, "#FFFFFF"},
		{core.Color{R: 0, G: 0, B: 0}, "#000000"},
		{core.Color{R: 200, G: 30, B: 30}, "#C81E1E"},
		{core.Color{R: 15, G: 160, B: 9}, "#0FA009"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, colorHex(tt.color))
	}
}

func TestStringsToJSON(t *testing.T) {
	assert.Equal(t, "[]", string(stringsToJSON(nil)))

	var decoded []string
	require.NoError(t, json.Unmarshal(stringsToJSON([]string{"a", "b"}), &decoded))
	assert.Equal(t, []string{"a", "b"}, decoded)
}

func TestCountsToJSON(t *testing.T) {
	assert.Equal(t, "{}", string(countsToJSON(nil)))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(countsToJSON(map[string]int{"car": 3}), &decoded))
	assert.Equal(t, map[string]int{"car": 3}, decoded)
}

func TestInfoToRun(t *testing.T) {
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	info := storage.RunInfo{
		Name:         "nightly-sweep",
		AssetID:      "lot_A",
		Seed:         42,
		TargetFrames: 1000,
		ImageWidth:   1920,
		ImageHeight:  1080,
		OutputDir:    "./output",
		StartedAt:    started,
		Settings:     map[string]any{"seed": float64(42)},
	}

	run := InfoToRun(info)

	assert.Equal(t, "nightly-sweep", run.RunName)
	assert.Equal(t, "lot_A", run.AssetID)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, uint(1000), run.TargetFrames)
	assert.Equal(t, 1920, run.ImageWidth)
	assert.Equal(t, 1080, run.ImageHeight)
	assert.Equal(t, started, run.StartTime)
	assert.Equal(t, "./output", run.OutputDir)
	// Status and EngineVersion come from column defaults
	assert.Empty(t, run.Status)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(run.ConfigSnapshot, &snapshot))
	assert.Equal(t, float64(42), snapshot["seed"])
}

func TestInfoToRun_EmptySettings(t *testing.T) {
	run := InfoToRun(storage.RunInfo{Name: "bare"})
	assert.Equal(t, "{}", string(run.ConfigSnapshot))
}

func frameRecordFixture() storage.FrameRecord {
	return storage.FrameRecord{
		Annotation: annotation.Frame{
			FrameIndex:    7,
			ImageID:       8,
			ImageFilename: "frame_000007.png",
			ImageWidth:    1920,
			ImageHeight:   1080,
			Instances: []annotation.Instance{
				{
					InstanceID:   "veh_001",
					CategoryID:   1,
					CategoryName: "car",
					BBox:         camera.Rect{X: 320, Y: 450, Width: 180, Height: 90},
					Area:         16200,
					Truncation:   0.0,
					Valid:        true,
				},
				{
					InstanceID:   "veh_002",
					CategoryID:   3,
					CategoryName: "bus",
					BBox:         camera.Rect{X: 0, Y: 400, Width: 60, Height: 120},
					Area:         7200,
					Truncation:   0.55,
					Valid:        false,
					Issues:       []string{"truncation 0.55 exceeds 0.50"},
				},
			},
		},
		Verdict: annotation.FrameResult{
			FrameIndex:    7,
			OverallResult: annotation.SeverityWarn,
			Issues: []annotation.Issue{
				{Severity: annotation.SeverityWarn, Check: "min_valid_instances", Message: "only 1 valid instance"},
			},
			ChecksPassed: 4,
			ChecksWarned: 1,
		},
		Vehicles: []core.SpawnedVehicle{
			{
				InstanceID: "veh_001",
				Class:      core.ClassCar,
				Actor:      "actor_12",
				Transform: core.Transform{
					Location: core.Vector3{X: 1200, Y: 800, Z: 2},
					Rotation: core.Rotation3{Yaw: 90},
				},
				Dimensions: core.Dimensions{Length: 450, Width: 180, Height: 150},
				Color:      core.Color{R: 200, G: 30, B: 30},
				ZoneID:     "lot_A",
				ZoneType:   "parking",
				SlotID:     "lot_A_slot_03",
			},
		},
		Camera: camera.FitResult{
			Pose: core.Transform{
				Location: core.Vector3{X: 500, Y: -2000, Z: 800},
				Rotation: core.Rotation3{Pitch: -15, Yaw: 45},
			},
			FOV:      70,
			Attempts: 2,
		},
		Seed:         42,
		GenerationMs: 12.5,
		RecordedAt:   time.Date(2024, 6, 1, 12, 0, 3, 0, time.UTC),
	}
}

func TestRecordToFrame(t *testing.T) {
	rec := frameRecordFixture()
	frame := RecordToFrame(9, rec)

	assert.Equal(t, uint(9), frame.RunID)
	assert.Equal(t, uint(7), frame.FrameIndex)
	assert.Equal(t, 8, frame.ImageID)
	assert.Equal(t, "frame_000007.png", frame.ImageFile)
	assert.Equal(t, 1920, frame.ImageWidth)
	assert.Equal(t, 1080, frame.ImageHeight)
	assert.True(t, frame.Accepted)
	assert.Equal(t, "WARN", frame.Verdict)
	assert.Equal(t, 1, frame.VehicleCount)
	assert.Equal(t, 1, frame.ValidCount)
	assert.Equal(t, int64(42), frame.Seed)
	assert.Equal(t, 2, frame.CameraAttempts)
	assert.Equal(t, 500.0, frame.Camera.X)
	assert.Equal(t, -2000.0, frame.Camera.Y)
	assert.Equal(t, 800.0, frame.Camera.Z)
	assert.Equal(t, -15.0, frame.Camera.Pitch)
	assert.Equal(t, 45.0, frame.Camera.Yaw)
	assert.Equal(t, 70.0, frame.Camera.Fov)
	assert.Equal(t, 12.5, frame.GenerationMs)
	assert.Equal(t, rec.RecordedAt, frame.Time)

	require.Len(t, frame.Placements, 1)
	assert.Equal(t, uint(9), frame.Placements[0].RunID)
	require.Len(t, frame.Annotations, 2)
	assert.Equal(t, uint(9), frame.Annotations[0].RunID)

	var issues []annotation.Issue
	require.NoError(t, json.Unmarshal(frame.Issues, &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "min_valid_instances", issues[0].Check)
}

func TestRecordToFrame_Rejected(t *testing.T) {
	rec := frameRecordFixture()
	rec.Verdict.OverallResult = annotation.SeverityFail
	frame := RecordToFrame(9, rec)

	assert.False(t, frame.Accepted)
	assert.Equal(t, "FAIL", frame.Verdict)
}

func TestVehicleToPlacement(t *testing.T) {
	rec := frameRecordFixture()
	placement := VehicleToPlacement(9, rec.Vehicles[0])

	assert.Equal(t, uint(9), placement.RunID)
	assert.Equal(t, "veh_001", placement.InstanceID)
	assert.Equal(t, "car", placement.Class)
	assert.Equal(t, "actor_12", placement.Actor)
	assert.Equal(t, "lot_A", placement.ZoneID)
	assert.Equal(t, "parking", placement.ZoneType)
	assert.Equal(t, "lot_A_slot_03", placement.SlotID)
	assert.Equal(t, 2.0, placement.ElevationCm)
	assert.Equal(t, 90.0, placement.Yaw)
	assert.Equal(t, "#C81E1E", placement.Color)

	coord, ok := placement.Position.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 1200.0, coord.XY.X)
	assert.Equal(t, 800.0, coord.XY.Y)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(placement.Detail, &detail))
	dims, ok := detail["dimensions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(450), dims["length"])
}

func TestInstanceToAnnotation(t *testing.T) {
	rec := frameRecordFixture()
	ann := InstanceToAnnotation(9, rec.Annotation.Instances[1])

	assert.Equal(t, uint(9), ann.RunID)
	assert.Equal(t, "veh_002", ann.InstanceID)
	assert.Equal(t, 3, ann.CategoryID)
	assert.Equal(t, "bus", ann.CategoryName)
	assert.Equal(t, 0.0, ann.Bbox.X)
	assert.Equal(t, 400.0, ann.Bbox.Y)
	assert.Equal(t, 60.0, ann.Bbox.Width)
	assert.Equal(t, 120.0, ann.Bbox.Height)
	assert.Equal(t, 7200.0, ann.Area)
	assert.Equal(t, 0.55, ann.Truncation)
	assert.False(t, ann.Valid)

	var issues []string
	require.NoError(t, json.Unmarshal(ann.Issues, &issues))
	assert.Equal(t, []string{"truncation 0.55 exceeds 0.50"}, issues)
}

func TestFailureToEvent(t *testing.T) {
	occurred := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)
	event := FailureToEvent(9, storage.FailureRecord{
		FrameIndex: 12,
		Failure: core.Failure{
			Kind:     core.FailureCameraFit,
			Message:  "no pose covers all vehicles",
			Affected: []string{"veh_003"},
			Remedy:   "reduce vehicle count or widen max FOV",
		},
		OccurredAt: occurred,
	})

	assert.Equal(t, uint(9), event.RunID)
	assert.Equal(t, uint(12), event.FrameIndex)
	assert.Equal(t, "camera_fit", event.Stage)
	assert.Equal(t, "no pose covers all vehicles", event.Reason)
	assert.Equal(t, "reduce vehicle count or widen max FOV", event.Remedy)
	assert.Equal(t, occurred, event.Time)

	var affected []string
	require.NoError(t, json.Unmarshal(event.Affected, &affected))
	assert.Equal(t, []string{"veh_003"}, affected)
}

func TestApplySummary(t *testing.T) {
	ended := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	run := InfoToRun(storage.RunInfo{Name: "nightly-sweep"})

	ApplySummary(&run, storage.RunSummary{
		Status:           "completed",
		EndedAt:          ended,
		FramesGenerated:  950,
		FramesFailed:     50,
		Vehicles:         5200,
		Annotations:      4980,
		AvgVehicles:      5.47,
		AvgFrameMillis:   14.2,
		RejectionReasons: map[string]int{"frame_validation": 50},
		ClassCounts:      map[string]int{"car": 3000, "truck": 2200},
	})

	assert.Equal(t, "completed", run.Status)
	require.True(t, run.EndTime.Valid)
	assert.Equal(t, ended, run.EndTime.Time)
	assert.Equal(t, uint(950), run.Totals.FramesGenerated)
	assert.Equal(t, uint(50), run.Totals.FramesFailed)
	assert.Equal(t, uint(5200), run.Totals.Vehicles)
	assert.Equal(t, uint(4980), run.Totals.Annotations)
	assert.Equal(t, 5.47, run.Totals.AvgVehicles)
	assert.Equal(t, 14.2, run.Totals.AvgFrameMillis)

	var reasons map[string]int
	require.NoError(t, json.Unmarshal(run.RejectionReasons, &reasons))
	assert.Equal(t, 50, reasons["frame_validation"])

	var classes map[string]int
	require.NoError(t, json.Unmarshal(run.ClassCounts, &classes))
	assert.Equal(t, 3000, classes["car"])
}
