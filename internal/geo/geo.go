package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"

	"github.com/vantagecv/scenekit/v2/internal/util"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// World positions are centimeters throughout the engine. Manifests may anchor
// zones geographically (EPSG:4326); those anchors are projected through Web
// Mercator and re-expressed as local centimeters against the manifest origin.

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const metersToCentimeters = 100.0

// AnchorFromString parses a string in the format "lon,lat" or "lon,lat,elev"
// into geographic anchor components. Extra components are ignored.
func AnchorFromString(coords string) (lon, lat, elev float64, err error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return 0, 0, 0, ErrInvalidCoordinates
	}
	lon, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, 0, ErrInvalidCoordinates
	}
	lat, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, 0, ErrInvalidCoordinates
	}
	if len(parts) > 2 {
		elev, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, 0, 0, ErrInvalidCoordinates
		}
	}
	return lon, lat, elev, nil
}

// LocalFromLonLat projects a geographic anchor (EPSG:4326) into local scene
// centimeters relative to the manifest origin (also EPSG:4326). Both points
// pass through EPSG:3857 so offsets are planar meters before scaling.
func LocalFromLonLat(lon, lat, originLon, originLat float64) core.Vector3 {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(lon, lat, 0)
	ox, oy, _ := f(originLon, originLat, 0)
	return core.Vector3{
		X: (x - ox) * metersToCentimeters,
		Y: (y - oy) * metersToCentimeters,
	}
}

// RotateYaw rotates a local offset around the vertical axis by yaw degrees.
func RotateYaw(offset core.Vector3, yawDeg float64) core.Vector3 {
	rad := util.DegToRad(yawDeg)
	sin, cos := math.Sin(rad), math.Cos(rad)
	return core.Vector3{
		X: offset.X*cos - offset.Y*sin,
		Y: offset.X*sin + offset.Y*cos,
		Z: offset.Z,
	}
}

// WorldFromLocal places a pose-local offset into world space.
func WorldFromLocal(offset core.Vector3, pose core.Transform) core.Vector3 {
	return pose.Location.Add(RotateYaw(offset, pose.Rotation.Yaw))
}

// LocalFromWorld expresses a world point in pose-local space (inverse yaw).
func LocalFromWorld(point core.Vector3, pose core.Transform) core.Vector3 {
	return RotateYaw(point.Sub(pose.Location), -pose.Rotation.Yaw)
}
