package zone

import (
	"github.com/vantagecv/scenekit/v2/internal/geo"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// DefaultPolygonZMax is the vertical extent applied to polygon bounds
// whose manifest omits an explicit z range, in centimeters.
const DefaultPolygonZMax = 1000

// Bounds is the closed set of spatial extents a zone can have. Exactly
// two variants exist: Box and Polygon. Code that needs the concrete
// shape switches on the type; the unexported marker keeps the set
// closed to this package.
type Bounds interface {
	// Contains reports whether the world-space point lies inside the bounds.
	Contains(p core.Vector3) bool
	// Center returns a representative point used to anchor lane placement.
	Center() core.Vector3

	sealedBounds()
}

// Box is an axis-aligned rectangular extent. Rotation is carried for
// scene-host dressing but containment ignores it.
type Box struct {
	BoxCenter core.Vector3
	Size      core.Vector3
	Rotation  core.Rotation3
}

func (b Box) sealedBounds() {}

// Contains reports whether p lies within the half-extent on all three
// axes. A zero size contains nothing.
func (b Box) Contains(p core.Vector3) bool {
	if b.Size == (core.Vector3{}) {
		return false
	}
	d := p.Sub(b.BoxCenter)
	if d.X < -b.Size.X/2 || d.X > b.Size.X/2 {
		return false
	}
	if d.Y < -b.Size.Y/2 || d.Y > b.Size.Y/2 {
		return false
	}
	return d.Z >= -b.Size.Z/2 && d.Z <= b.Size.Z/2
}

// Center returns the box center.
func (b Box) Center() core.Vector3 {
	return b.BoxCenter
}

// Polygon is a ground-plane polygon extruded over a z range. Vertices
// are (x, y) pairs in centimeters. NewPolygon prebuilds the containment
// geometry; literal construction still works and builds it per query.
type Polygon struct {
	Vertices [][2]float64
	ZMin     float64
	ZMax     float64

	region *geo.Region
}

// NewPolygon builds polygon bounds with the containment geometry
// constructed once up front. Vertices must not be mutated afterwards.
func NewPolygon(vertices [][2]float64, zmin, zmax float64) Polygon {
	p := Polygon{Vertices: vertices, ZMin: zmin, ZMax: zmax}
	p.region, _ = geo.NewRegion(vertices)
	return p
}

func (b Polygon) sealedBounds() {}

// Contains gates on the z range first, then tests the ground-plane
// point against the polygon. Fewer than three vertices contain nothing.
func (b Polygon) Contains(p core.Vector3) bool {
	if p.Z < b.ZMin || p.Z > b.ZMax {
		return false
	}
	region := b.region
	if region == nil {
		var err error
		region, err = geo.NewRegion(b.Vertices)
		if err != nil {
			return false
		}
	}
	return region.Contains(p.X, p.Y)
}

// Center returns the vertex centroid at the bottom of the z range.
func (b Polygon) Center() core.Vector3 {
	if len(b.Vertices) == 0 {
		return core.Vector3{}
	}
	var sx, sy float64
	for _, v := range b.Vertices {
		sx += v[0]
		sy += v[1]
	}
	n := float64(len(b.Vertices))
	return core.Vector3{X: sx / n, Y: sy / n, Z: b.ZMin}
}

// XSpan returns the inclusive x extent the bounds cover. Road placement
// uses it as the drivable length of the zone.
func XSpan(b Bounds) (min, max float64) {
	switch v := b.(type) {
	case Box:
		return v.BoxCenter.X - v.Size.X/2, v.BoxCenter.X + v.Size.X/2
	case Polygon:
		if len(v.Vertices) == 0 {
			return 0, 0
		}
		min, max = v.Vertices[0][0], v.Vertices[0][0]
		for _, vert := range v.Vertices[1:] {
			if vert[0] < min {
				min = vert[0]
			}
			if vert[0] > max {
				max = vert[0]
			}
		}
		return min, max
	}
	return 0, 0
}
