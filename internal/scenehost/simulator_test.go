package scenehost

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecv/scenekit/v2/internal/spacing"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

var _ spacing.MarkerSource = (*Simulator)(nil)

func TestSimulator_TracksActorState(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.RegisterActor("BP_Car_1", core.Transform{})

	assert.True(t, sim.Visible("BP_Car_1"))
	assert.True(t, sim.CollisionEnabled("BP_Car_1"))

	loc := core.Vector3{X: 1000, Y: -250, Z: 0}
	rot := core.Rotation3{Yaw: 90}
	require.NoError(t, sim.SetTransform(ctx, "BP_Car_1", loc, rot))

	tr, err := sim.GetTransform(ctx, "BP_Car_1")
	require.NoError(t, err)
	assert.Equal(t, loc, tr.Location)
	assert.Equal(t, rot, tr.Rotation)

	require.NoError(t, sim.SetVisibility(ctx, "BP_Car_1", false))
	require.NoError(t, sim.SetCollision(ctx, "BP_Car_1", false))
	assert.False(t, sim.Visible("BP_Car_1"))
	assert.False(t, sim.CollisionEnabled("BP_Car_1"))
}

func TestSimulator_UnknownActor(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	_, err := sim.GetTransform(ctx, "BP_Ghost")
	require.ErrorIs(t, err, ErrUnknownActor)

	_, err = sim.MarkerLocations(ctx, "BP_Ghost")
	require.ErrorIs(t, err, ErrUnknownActor)

	assert.False(t, sim.Visible("BP_Ghost"))
	assert.False(t, sim.CollisionEnabled("BP_Ghost"))
}

func TestSimulator_MutationsAutoCreate(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	require.NoError(t, sim.SetVisibility(ctx, "BP_Car_7", false))
	assert.False(t, sim.Visible("BP_Car_7"))

	tr, err := sim.GetTransform(ctx, "BP_Car_7")
	require.NoError(t, err)
	assert.Equal(t, core.Transform{}, tr)
}

func TestSimulator_MarkerLocationsFollowPose(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.RegisterActor("BP_Car_1", core.Transform{
		Location: core.Vector3{X: 1000, Y: 500},
		Rotation: core.Rotation3{Yaw: 90},
	})
	sim.SetMarkers("BP_Car_1", map[string]core.Vector3{
		"Cube": {X: 230, Z: 50},
	})

	markers, err := sim.MarkerLocations(ctx, "BP_Car_1")
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.InDelta(t, 1000, markers["Cube"].X, 1e-9)
	assert.InDelta(t, 730, markers["Cube"].Y, 1e-9)
	assert.InDelta(t, 50, markers["Cube"].Z, 1e-9)

	require.NoError(t, sim.SetTransform(ctx, "BP_Car_1", core.Vector3{X: 2000}, core.Rotation3{}))
	markers, err = sim.MarkerLocations(ctx, "BP_Car_1")
	require.NoError(t, err)
	assert.InDelta(t, 2230, markers["Cube"].X, 1e-9)
	assert.InDelta(t, 0, markers["Cube"].Y, 1e-9)
}

func TestSimulator_CommandLog(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.RegisterActor("BP_Car_1", core.Transform{})

	require.NoError(t, sim.SetVisibility(ctx, "BP_Car_1", false))
	require.NoError(t, sim.SetCollision(ctx, "BP_Car_1", false))
	require.NoError(t, sim.SetTransform(ctx, "BP_Car_1", core.Vector3{X: 100}, core.Rotation3{}))

	path := filepath.Join(t.TempDir(), "frame_000001.png")
	require.NoError(t, sim.Capture(ctx, path, 16, 16))

	commands := sim.Commands()
	require.Len(t, commands, 4)
	assert.Equal(t, OpVisibility, commands[0].Op)
	assert.Equal(t, "false", commands[0].Value)
	assert.Equal(t, OpCollision, commands[1].Op)
	assert.Equal(t, OpTransform, commands[2].Op)
	assert.Equal(t, core.ActorHandle("BP_Car_1"), commands[2].Actor)
	assert.Equal(t, OpCapture, commands[3].Op)
	assert.Equal(t, path, commands[3].Value)
}

func TestSimulator_CaptureWritesPNG(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	path := filepath.Join(t.TempDir(), "captures", "frame_000001.png")
	require.NoError(t, sim.Capture(ctx, path, 64, 48))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
	assert.Equal(t, []string{path}, sim.Captures())
}

func TestSimulator_CaptureRejectsInvalidSize(t *testing.T) {
	sim := NewSimulator()
	err := sim.Capture(context.Background(), filepath.Join(t.TempDir(), "frame.png"), 0, 1080)
	require.ErrorIs(t, err, ErrCaptureFailed)
	assert.Empty(t, sim.Captures())
}
