package camera

import (
	"math"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// minProjectionDepth replaces non-positive camera-space depth when
// building rectangles, cm. Behind-camera geometry projects to absurd
// pixel coordinates instead of dividing by zero; the annotation stage
// decides true invalidity from the raw depth.
const minProjectionDepth = 0.01

// Rect is an image-space rectangle in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the rectangle area, zero for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Clip intersects the rectangle with an image of the given size. A
// rectangle entirely outside comes back with zero width or height.
func (r Rect) Clip(width, height float64) Rect {
	x1 := math.Max(0, r.X)
	y1 := math.Max(0, r.Y)
	x2 := math.Min(width, r.X+r.Width)
	y2 := math.Min(height, r.Y+r.Height)
	return Rect{X: x1, Y: y1, Width: math.Max(0, x2 - x1), Height: math.Max(0, y2 - y1)}
}

// Projector is a pinhole camera at a fixed forward-facing pose: +X is
// depth, -Y is image right, -Z is image down. Square pixels, principal
// point at the image center.
type Projector struct {
	Pose        core.Transform
	Focal       float64
	CenterX     float64
	CenterY     float64
	ImageWidth  float64
	ImageHeight float64
}

// NewProjector derives the pinhole intrinsics from a horizontal FOV in
// degrees and the image size in pixels.
func NewProjector(pose core.Transform, fovDeg float64, width, height int) Projector {
	w := float64(width)
	h := float64(height)
	return Projector{
		Pose:        pose,
		Focal:       w / (2 * math.Tan(fovDeg*math.Pi/360)),
		CenterX:     w / 2,
		CenterY:     h / 2,
		ImageWidth:  w,
		ImageHeight: h,
	}
}

// Project maps a world point to pixel coordinates. The returned depth
// is the raw camera-space depth in cm; points at or behind the camera
// plane have depth <= 0 and project through the clamped minimum.
func (p Projector) Project(pt core.Vector3) (u, v, depth float64) {
	d := pt.Sub(p.Pose.Location)

	depth = d.X
	right := -d.Y
	down := -d.Z

	z := depth
	if z <= 0 {
		z = minProjectionDepth
	}
	u = p.Focal*(right/z) + p.CenterX
	v = p.Focal*(down/z) + p.CenterY
	return u, v, depth
}

// ProjectBox projects the corner set and returns the enclosing pixel
// rectangle plus the largest raw depth seen. A non-positive max depth
// means every corner sits behind the camera plane.
func (p Projector) ProjectBox(corners [8]core.Vector3) (Rect, float64) {
	var minU, minV, maxU, maxV float64
	maxDepth := math.Inf(-1)

	for i, c := range corners {
		u, v, depth := p.Project(c)
		if i == 0 {
			minU, maxU = u, u
			minV, maxV = v, v
		} else {
			minU = math.Min(minU, u)
			maxU = math.Max(maxU, u)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		maxDepth = math.Max(maxDepth, depth)
	}

	return Rect{X: minU, Y: minV, Width: maxU - minU, Height: maxV - minV}, maxDepth
}

// VisibleRatio is the clipped-to-unclipped area ratio of a rectangle
// against the image, zero when the unclipped area is zero.
func (p Projector) VisibleRatio(r Rect) float64 {
	total := r.Area()
	if total <= 0 {
		return 0
	}
	return r.Clip(p.ImageWidth, p.ImageHeight).Area() / total
}

// BoxCorners returns the eight corners of a vehicle's bounding box:
// footprint centered on the location, rising from ground level to the
// class height. Boxes are axis-aligned; vehicle yaw does not tilt them.
func BoxCorners(location core.Vector3, dims core.Dimensions) [8]core.Vector3 {
	halfL := dims.Length / 2
	halfW := dims.Width / 2

	var corners [8]core.Vector3
	i := 0
	for _, dz := range []float64{0, dims.Height} {
		for _, dx := range []float64{-halfL, halfL} {
			for _, dy := range []float64{-halfW, halfW} {
				corners[i] = core.Vector3{X: location.X + dx, Y: location.Y + dy, Z: location.Z + dz}
				i++
			}
		}
	}
	return corners
}
