// Package camera fits a fixed measurement camera over a frame's
// vehicles. The camera never moves: it stands at the world origin at a
// configured height, facing +X with zero pitch and roll. Fitting only
// widens the field of view, step by step inside a configured range,
// until every vehicle projects at least half visible — or the retry
// budget runs out and the frame is rejected.
package camera

import (
	"fmt"
	"log/slog"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// Volume is an axis-aligned world-space box enclosing the frame's
// vehicles, in centimeters.
type Volume struct {
	Min core.Vector3 `json:"min"`
	Max core.Vector3 `json:"max"`
}

// Center returns the box center.
func (v Volume) Center() core.Vector3 {
	return core.Vector3{
		X: (v.Min.X + v.Max.X) / 2,
		Y: (v.Min.Y + v.Max.Y) / 2,
		Z: (v.Min.Z + v.Max.Z) / 2,
	}
}

// Size returns the box extents.
func (v Volume) Size() core.Vector3 {
	return core.Vector3{X: v.Max.X - v.Min.X, Y: v.Max.Y - v.Min.Y, Z: v.Max.Z - v.Min.Z}
}

// Visibility is one vehicle's projection outcome for one attempt.
type Visibility struct {
	InstanceID string            `json:"instanceId"`
	Actor      core.ActorHandle  `json:"actor"`
	Class      core.VehicleClass `json:"class"`
	BBox       Rect              `json:"bbox"`
	Ratio      float64           `json:"ratio"`
	Valid      bool              `json:"valid"`
}

// FitResult is the resolved camera for a frame. On failure it carries
// the last attempt's state so the caller can report what was tried.
type FitResult struct {
	Pose       core.Transform `json:"pose"`
	FOV        float64        `json:"fov"`
	Centroid   core.Vector3   `json:"centroid"`
	Bounds     Volume         `json:"bounds"`
	Visibility []Visibility   `json:"visibility"`
	Attempts   int            `json:"attempts"`
}

// Controller searches camera FOV for a frame's vehicles.
type Controller struct {
	logger *slog.Logger
	cfg    config.CameraConfig
}

// NewController builds a controller from the camera settings.
func NewController(cfg config.CameraConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Adaptive camera initialized",
		"height_cm", cfg.HeightCm,
		"base_fov", cfg.BaseFovDeg,
		"fov_min", cfg.FovMinDeg,
		"fov_max", cfg.FovMaxDeg,
		"max_retries", cfg.MaxRetries,
		"min_visibility", cfg.MinVisibility,
		"image_width", cfg.ImageWidth,
		"image_height", cfg.ImageHeight)
	return &Controller{logger: logger, cfg: cfg}
}

// Pose returns the fixed camera pose.
func (c *Controller) Pose() core.Transform {
	return core.Transform{Location: core.Vector3{Z: c.cfg.HeightCm}}
}

// Fit resolves a FOV at which every vehicle is at least the minimum
// ratio visible. The result of a failed fit is the last attempt.
func (c *Controller) Fit(vehicles []core.SpawnedVehicle) (FitResult, error) {
	pose := c.Pose()
	if len(vehicles) == 0 {
		return FitResult{Pose: pose, FOV: c.cfg.BaseFovDeg}, core.Failure{
			Kind:    core.FailureCameraFit,
			Message: "no vehicles to frame",
			Remedy:  "spawn at least one vehicle before fitting the camera",
		}
	}

	bounds := enclosingVolume(vehicles)
	centroid := bounds.Center()
	c.logger.Info("Computing camera fit",
		"vehicle_count", len(vehicles),
		"centroid_x", centroid.X,
		"centroid_y", centroid.Y,
		"centroid_z", centroid.Z,
		"bounds_size_x", bounds.Size().X,
		"bounds_size_y", bounds.Size().Y)

	fov := c.clampFov(c.cfg.BaseFovDeg)
	var visibility []Visibility
	attempts := 0

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts = attempt
		proj := NewProjector(pose, fov, c.cfg.ImageWidth, c.cfg.ImageHeight)

		var allVisible bool
		visibility, allVisible = c.measure(proj, vehicles)

		c.logger.Info("Camera fit attempt",
			"attempt", attempt,
			"fov", fov,
			"camera_x", pose.Location.X,
			"camera_y", pose.Location.Y,
			"camera_z", pose.Location.Z,
			"all_visible", allVisible,
			"visibility_ratios", ratios(visibility))

		if allVisible {
			c.logger.Info("Camera fit succeeded", "fov", fov, "attempts", attempt)
			return FitResult{
				Pose:       pose,
				FOV:        fov,
				Centroid:   centroid,
				Bounds:     bounds,
				Visibility: visibility,
				Attempts:   attempt,
			}, nil
		}

		if attempt < c.cfg.MaxRetries {
			fov = c.clampFov(fov + c.cfg.FovStepDeg)
		}
	}

	var affected []string
	for _, v := range visibility {
		if !v.Valid {
			affected = append(affected, v.InstanceID)
		}
	}
	c.logger.Error("Camera fit failed",
		"attempts", attempts,
		"final_fov", fov,
		"below_threshold", len(affected))

	return FitResult{
			Pose:       pose,
			FOV:        fov,
			Centroid:   centroid,
			Bounds:     bounds,
			Visibility: visibility,
			Attempts:   attempts,
		}, core.Failure{
			Kind:     core.FailureCameraFit,
			Message:  fmt.Sprintf("cannot reach %.0f%% visibility for %d of %d vehicles", c.cfg.MinVisibility*100, len(affected), len(vehicles)),
			Affected: affected,
			Remedy:   "reduce vehicle count or spread, or widen the FOV range",
		}
}

// measure projects every vehicle through proj and grades each against
// the minimum visibility ratio.
func (c *Controller) measure(proj Projector, vehicles []core.SpawnedVehicle) ([]Visibility, bool) {
	out := make([]Visibility, 0, len(vehicles))
	all := true
	for i := range vehicles {
		v := &vehicles[i]
		rect, _ := proj.ProjectBox(BoxCorners(v.Transform.Location, v.Dimensions))
		ratio := proj.VisibleRatio(rect)
		valid := ratio >= c.cfg.MinVisibility
		if !valid {
			all = false
		}
		out = append(out, Visibility{
			InstanceID: v.InstanceID,
			Actor:      v.Actor,
			Class:      v.Class,
			BBox:       rect,
			Ratio:      ratio,
			Valid:      valid,
		})
	}
	return out, all
}

func (c *Controller) clampFov(fov float64) float64 {
	if fov < c.cfg.FovMinDeg {
		return c.cfg.FovMinDeg
	}
	if fov > c.cfg.FovMaxDeg {
		return c.cfg.FovMaxDeg
	}
	return fov
}

// enclosingVolume bounds every vehicle box. The floor is pinned to
// ground level; the ceiling is the tallest vehicle's roof.
func enclosingVolume(vehicles []core.SpawnedVehicle) Volume {
	var vol Volume
	for i := range vehicles {
		v := &vehicles[i]
		halfL := v.Dimensions.Length / 2
		halfW := v.Dimensions.Width / 2
		loc := v.Transform.Location

		if i == 0 {
			vol = Volume{
				Min: core.Vector3{X: loc.X - halfL, Y: loc.Y - halfW, Z: 0},
				Max: core.Vector3{X: loc.X + halfL, Y: loc.Y + halfW, Z: loc.Z + v.Dimensions.Height},
			}
			continue
		}
		if x := loc.X - halfL; x < vol.Min.X {
			vol.Min.X = x
		}
		if x := loc.X + halfL; x > vol.Max.X {
			vol.Max.X = x
		}
		if y := loc.Y - halfW; y < vol.Min.Y {
			vol.Min.Y = y
		}
		if y := loc.Y + halfW; y > vol.Max.Y {
			vol.Max.Y = y
		}
		if z := loc.Z + v.Dimensions.Height; z > vol.Max.Z {
			vol.Max.Z = z
		}
	}
	return vol
}

func ratios(visibility []Visibility) []float64 {
	out := make([]float64, len(visibility))
	for i, v := range visibility {
		out[i] = v.Ratio
	}
	return out
}
