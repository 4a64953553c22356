package camera

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCameraConfig() config.CameraConfig {
	return config.CameraConfig{
		HeightCm:      150,
		BaseFovDeg:    90,
		FovStepDeg:    10,
		FovMinDeg:     60,
		FovMaxDeg:     120,
		MaxRetries:    5,
		MinVisibility: 0.50,
		ImageWidth:    1920,
		ImageHeight:   1080,
	}
}

func vehicleAt(id string, class core.VehicleClass, x, y float64) core.SpawnedVehicle {
	return core.SpawnedVehicle{
		InstanceID: id,
		Class:      class,
		Actor:      core.ActorHandle("BP_" + id),
		Transform:  core.Transform{Location: core.Vector3{X: x, Y: y}},
		Dimensions: core.DefaultDimensions(class),
	}
}

func TestController_SingleVehicleAheadFitsFirstTry(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())

	result, err := c.Fit([]core.SpawnedVehicle{vehicleAt("veh_1", core.ClassCar, 2000, 0)})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 90.0, result.FOV)
	assert.Equal(t, core.Vector3{Z: 150}, result.Pose.Location)
	assert.Equal(t, core.Rotation3{}, result.Pose.Rotation)

	require.Len(t, result.Visibility, 1)
	assert.True(t, result.Visibility[0].Valid)
	assert.GreaterOrEqual(t, result.Visibility[0].Ratio, 0.95)
}

func TestController_VehicleBehindCameraExhaustsRetries(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())

	result, err := c.Fit([]core.SpawnedVehicle{vehicleAt("veh_1", core.ClassCar, -2000, 0)})

	var failure core.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, core.FailureCameraFit, failure.Kind)
	assert.Equal(t, []string{"veh_1"}, failure.Affected)

	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, 120.0, result.FOV, "FOV stepped to the ceiling before giving up")
	require.Len(t, result.Visibility, 1)
	assert.Less(t, result.Visibility[0].Ratio, 0.50)
}

func TestController_EmptyInputFails(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())

	_, err := c.Fit(nil)

	var failure core.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, core.FailureCameraFit, failure.Kind)
	assert.Equal(t, "no vehicles to frame", failure.Message)
}

func TestController_FovExpansionRecoversOffFrameVehicle(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())

	// At 90 degrees this car hangs far off the left image edge; each
	// step pulls it in until the third attempt clears the threshold.
	result, err := c.Fit([]core.SpawnedVehicle{vehicleAt("veh_1", core.ClassCar, 1000, 1300)})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 110.0, result.FOV)
	assert.Greater(t, result.Visibility[0].Ratio, 0.50)
	assert.Less(t, result.Visibility[0].Ratio, 0.60)
}

func TestController_RatioMonotonicInFov(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())
	vehicles := []core.SpawnedVehicle{vehicleAt("veh_1", core.ClassCar, 1000, 1300)}

	prev := -1.0
	for fov := 60.0; fov <= 120.0; fov += 10 {
		vis, _ := c.measure(NewProjector(c.Pose(), fov, 1920, 1080), vehicles)
		require.Len(t, vis, 1)
		assert.GreaterOrEqual(t, vis[0].Ratio, prev, "ratio dropped stepping to %v degrees", fov)
		prev = vis[0].Ratio
	}
}

func TestController_BaseFovClampedToRange(t *testing.T) {
	cfg := testCameraConfig()
	cfg.BaseFovDeg = 50
	c := NewController(cfg, testLogger())

	result, err := c.Fit([]core.SpawnedVehicle{vehicleAt("veh_1", core.ClassCar, 2000, 0)})

	require.NoError(t, err)
	assert.Equal(t, 60.0, result.FOV)
}

func TestController_AllVehiclesMustClear(t *testing.T) {
	c := NewController(testCameraConfig(), testLogger())

	// One easy vehicle does not rescue one impossible one.
	result, err := c.Fit([]core.SpawnedVehicle{
		vehicleAt("veh_1", core.ClassCar, 2000, 0),
		vehicleAt("veh_2", core.ClassCar, -2000, 0),
	})

	var failure core.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, []string{"veh_2"}, failure.Affected)
	assert.Contains(t, failure.Message, "1 of 2 vehicles")

	require.Len(t, result.Visibility, 2)
	assert.True(t, result.Visibility[0].Valid)
	assert.False(t, result.Visibility[1].Valid)
}

func TestEnclosingVolume(t *testing.T) {
	vol := enclosingVolume([]core.SpawnedVehicle{
		vehicleAt("veh_1", core.ClassCar, 1000, 0),
		vehicleAt("veh_2", core.ClassCar, 3000, 400),
	})

	assert.Equal(t, core.Vector3{X: 775, Y: -90, Z: 0}, vol.Min)
	assert.Equal(t, core.Vector3{X: 3225, Y: 490, Z: 150}, vol.Max)
	assert.Equal(t, core.Vector3{X: 2000, Y: 200, Z: 75}, vol.Center())
	assert.Equal(t, core.Vector3{X: 2450, Y: 580, Z: 150}, vol.Size())
}
