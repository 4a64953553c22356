package annotation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAnnotationConfig() config.AnnotationConfig {
	return config.AnnotationConfig{
		MinBboxAreaPx:      100,
		MinBboxDimensionPx: 10,
		MaxTruncation:      0.8,
	}
}

// testProjector matches the fixed camera pose at 90 degrees FOV.
func testProjector() camera.Projector {
	pose := core.Transform{Location: core.Vector3{Z: 150}}
	return camera.NewProjector(pose, 90, 1920, 1080)
}

func carAt(id string, x, y float64) core.SpawnedVehicle {
	return core.SpawnedVehicle{
		InstanceID: id,
		Class:      core.ClassCar,
		Actor:      core.ActorHandle("BP_" + id),
		Transform:  core.Transform{Location: core.Vector3{X: x, Y: y}},
		Dimensions: core.DefaultDimensions(core.ClassCar),
	}
}

func TestGenerator_FullyVisibleVehicle(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	frame := g.AnnotateFrame(0, 1, "frame_000000.png",
		[]core.SpawnedVehicle{carAt("veh_1", 2000, 0)}, testProjector())

	require.Len(t, frame.Instances, 1)
	inst := frame.Instances[0]

	assert.True(t, inst.Valid)
	assert.Empty(t, inst.Issues)
	assert.Equal(t, "veh_1", inst.InstanceID)
	assert.Equal(t, 1, inst.CategoryID)
	assert.Equal(t, "car", inst.CategoryName)
	assert.False(t, inst.Occluded)
	assert.InDelta(t, 0.0, inst.Truncation, 1e-9)

	// Near face at 1775cm depth bounds the box on all sides.
	assert.InDelta(t, 911.32, inst.BBox.X, 0.01)
	assert.InDelta(t, 540.0, inst.BBox.Y, 0.01)
	assert.InDelta(t, 97.35, inst.BBox.Width, 0.01)
	assert.InDelta(t, 81.13, inst.BBox.Height, 0.01)
	assert.InDelta(t, inst.BBox.Width*inst.BBox.Height, inst.Area, 1e-9)
}

func TestGenerator_BehindCameraIsProjectionFailure(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	frame := g.AnnotateFrame(0, 1, "frame_000000.png",
		[]core.SpawnedVehicle{carAt("veh_1", -2000, 0)}, testProjector())

	require.Len(t, frame.Instances, 1)
	inst := frame.Instances[0]

	assert.False(t, inst.Valid)
	assert.Equal(t, 1.0, inst.Truncation)
	assert.Equal(t, 0.0, inst.Area)
	assert.Equal(t, []string{"projection failed: vehicle not visible"}, inst.Issues)

	stats := g.Stats()
	assert.Equal(t, 1, stats.ProjectionFailures)
	assert.Equal(t, 0, stats.ValidInstances)
}

func TestGenerator_TruncationExceedsMaximum(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	// Far off the left edge: only an 11.8px sliver stays in frame, so
	// the dimension and area rules still pass.
	frame := g.AnnotateFrame(0, 1, "frame_000000.png",
		[]core.SpawnedVehicle{carAt("veh_1", 1000, 1300)}, testProjector())

	require.Len(t, frame.Instances, 1)
	inst := frame.Instances[0]

	assert.False(t, inst.Valid)
	assert.InDelta(t, 0.985, inst.Truncation, 0.001)
	require.Len(t, inst.Issues, 1)
	assert.Contains(t, inst.Issues[0], "truncation")
	assert.InDelta(t, 11.76, inst.BBox.Width, 0.01)
	assert.Equal(t, 0.0, inst.BBox.X)
}

func TestGenerator_TinyBoxFailsAreaAndDimensions(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	frame := g.AnnotateFrame(0, 1, "frame_000000.png",
		[]core.SpawnedVehicle{carAt("veh_1", 20000, 0)}, testProjector())

	require.Len(t, frame.Instances, 1)
	inst := frame.Instances[0]

	assert.False(t, inst.Valid)
	assert.InDelta(t, 0.0, inst.Truncation, 1e-9)
	require.Len(t, inst.Issues, 3)
	assert.Contains(t, inst.Issues[0], "area")
	assert.Contains(t, inst.Issues[1], "width")
	assert.Contains(t, inst.Issues[2], "height")
}

func TestGenerator_FrameMetadataAndStats(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	frame := g.AnnotateFrame(7, 8, "frame_000007.png", []core.SpawnedVehicle{
		carAt("veh_1", 2000, 0),
		carAt("veh_2", -2000, 0),
	}, testProjector())

	assert.Equal(t, 7, frame.FrameIndex)
	assert.Equal(t, 8, frame.ImageID)
	assert.Equal(t, "frame_000007.png", frame.ImageFilename)
	assert.Equal(t, 1920, frame.ImageWidth)
	assert.Equal(t, 1080, frame.ImageHeight)

	require.Len(t, frame.Instances, 2)
	assert.Equal(t, 1, frame.ValidCount())
	valid := frame.ValidInstances()
	require.Len(t, valid, 1)
	assert.Equal(t, "veh_1", valid[0].InstanceID)

	stats := g.Stats()
	assert.Equal(t, 1, stats.TotalFrames)
	assert.Equal(t, 2, stats.TotalInstances)
	assert.Equal(t, 1, stats.ValidInstances)
	assert.Equal(t, 1, stats.ProjectionFailures)
	assert.Equal(t, 1, stats.ClassCounts[core.ClassCar])
	assert.InDelta(t, 0.5, stats.ValidityRate, 1e-9)
}

func TestGenerator_ResetClearsStats(t *testing.T) {
	g := NewGenerator(testAnnotationConfig(), testLogger())

	g.AnnotateFrame(0, 1, "frame_000000.png",
		[]core.SpawnedVehicle{carAt("veh_1", 2000, 0)}, testProjector())
	g.Reset()

	stats := g.Stats()
	assert.Equal(t, 0, stats.TotalFrames)
	assert.Equal(t, 0, stats.TotalInstances)
	assert.Equal(t, 0, stats.ValidInstances)
	assert.Equal(t, 0.0, stats.ValidityRate)
	assert.Empty(t, stats.ClassCounts)
}

func TestCategoryIDsFollowClassOrder(t *testing.T) {
	assert.Equal(t, 1, categoryID(core.ClassCar))
	assert.Equal(t, 2, categoryID(core.ClassTruck))
	assert.Equal(t, 3, categoryID(core.ClassBus))
	assert.Equal(t, 4, categoryID(core.ClassMotorcycle))
	assert.Equal(t, 5, categoryID(core.ClassBicycle))
	assert.Equal(t, 0, categoryID(core.VehicleClass("tank")))
}
