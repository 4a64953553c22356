package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Ring builds a closed ground-plane polygon from vertex pairs.
// The ring is closed automatically when the last vertex differs from the first.
func Ring(vertices [][2]float64) (geom.Polygon, error) {
	if len(vertices) < 3 {
		return geom.Polygon{}, fmt.Errorf("polygon must have at least 3 vertices, got %d", len(vertices))
	}

	flat := make([]float64, 0, (len(vertices)+1)*2)
	for _, v := range vertices {
		flat = append(flat, v[0], v[1])
	}
	if vertices[0] != vertices[len(vertices)-1] {
		flat = append(flat, vertices[0][0], vertices[0][1])
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid polygon ring: %w", err)
	}

	poly, err := geom.NewPolygon([]geom.LineString{ls})
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid polygon: %w", err)
	}
	return poly, nil
}

// Region is a prebuilt ground-plane polygon. Containment queries reuse
// the constructed geometry instead of rebuilding the ring each time.
type Region struct {
	poly geom.Polygon
}

// NewRegion builds a region from vertex pairs, closing the ring when needed.
func NewRegion(vertices [][2]float64) (*Region, error) {
	poly, err := Ring(vertices)
	if err != nil {
		return nil, err
	}
	return &Region{poly: poly}, nil
}

// Contains reports whether the ground-plane point lies inside the region.
func (r *Region) Contains(x, y float64) bool {
	return ContainsXY(r.poly, x, y)
}

// ContainsXY reports whether the ground-plane point lies inside the polygon.
func ContainsXY(poly geom.Polygon, x, y float64) bool {
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
	if err != nil {
		return false
	}
	return geom.Intersects(poly.AsGeometry(), pt.AsGeometry())
}
