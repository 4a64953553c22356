package spacing

import (
	"math"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// collide runs a separating-axis test between two footprints on the
// ground plane. Degenerate footprints fall back to a conservative
// center-to-center distance floor. The proposed interval is inflated
// by the safety margin before the separation test.
func (c *Checker) collide(proposed, existing Bounds) bool {
	proposedCorners, pok := footprintCorners(proposed)
	existingCorners, eok := footprintCorners(existing)
	if !pok || !eok {
		return proposed.Location.Distance2D(existing.Location) < c.minCenterDistance
	}

	axes := separatingAxes(proposed)
	axes = append(axes, separatingAxes(existing)...)
	if len(axes) == 0 {
		return proposed.Location.Distance2D(existing.Location) < c.minCenterDistance
	}

	for _, axis := range axes {
		pMin, pMax := projectCorners(proposedCorners, axis)
		eMin, eMax := projectCorners(existingCorners, axis)
		pMin -= c.margin
		pMax += c.margin
		if pMax < eMin || eMax < pMin {
			return false
		}
	}
	return true
}

// separatingAxes returns the footprint's forward axis and its
// perpendicular. A footprint whose front and back coincide contributes
// nothing.
func separatingAxes(b Bounds) [][2]float64 {
	dx := b.Front.X - b.Back.X
	dy := b.Front.Y - b.Back.Y
	length := math.Hypot(dx, dy)
	if length <= 0.01 {
		return nil
	}
	return [][2]float64{
		{dx / length, dy / length},
		{-dy / length, dx / length},
	}
}

// footprintCorners expands a footprint into its four ground-plane
// corners. Two-wheeled footprints take their width from the side
// markers; four-wheeled ones use side markers when present and the
// class half-width table otherwise.
func footprintCorners(b Bounds) ([4][2]float64, bool) {
	fx, fy := b.Front.X, b.Front.Y
	bx, by := b.Back.X, b.Back.Y

	if b.Class.TwoWheeled() && b.Left != nil && b.Right != nil {
		centerX := (fx + bx) / 2
		centerY := (fy + by) / 2
		halfLeft := math.Hypot(b.Left.X-centerX, b.Left.Y-centerY)
		halfRight := math.Hypot(b.Right.X-centerX, b.Right.Y-centerY)
		halfWidth := math.Max(math.Max(halfLeft, halfRight), bikeMinHalfWidth)

		dx := fx - bx
		dy := fy - by
		length := 1.0
		if dx*dx+dy*dy > 0.01 {
			length = math.Sqrt(dx*dx + dy*dy)
		}
		px, py := -dy/length, dx/length
		return [4][2]float64{
			{fx + px*halfWidth, fy + py*halfWidth},
			{fx - px*halfWidth, fy - py*halfWidth},
			{bx + px*halfWidth, by + py*halfWidth},
			{bx - px*halfWidth, by - py*halfWidth},
		}, true
	}

	dx := fx - bx
	dy := fy - by
	length := math.Hypot(dx, dy)
	if length < 0.01 {
		return [4][2]float64{}, false
	}
	dx /= length
	dy /= length
	px, py := -dy, dx

	var halfWidth float64
	if b.Left != nil && b.Right != nil {
		centerX := (fx + bx) / 2
		centerY := (fy + by) / 2
		halfLeft := math.Hypot(b.Left.X-centerX, b.Left.Y-centerY)
		halfRight := math.Hypot(b.Right.X-centerX, b.Right.Y-centerY)
		halfWidth = math.Max(math.Max(halfLeft, halfRight), carMinHalfWidth)
	} else {
		halfWidth = satHalfWidths[b.Class]
		if halfWidth == 0 {
			halfWidth = satHalfWidths[core.ClassCar]
		}
	}

	return [4][2]float64{
		{fx + px*halfWidth, fy + py*halfWidth},
		{fx - px*halfWidth, fy - py*halfWidth},
		{bx + px*halfWidth, by + py*halfWidth},
		{bx - px*halfWidth, by - py*halfWidth},
	}, true
}

// projectCorners projects the corners onto the axis and returns the
// covered interval.
func projectCorners(corners [4][2]float64, axis [2]float64) (min, max float64) {
	min = corners[0][0]*axis[0] + corners[0][1]*axis[1]
	max = min
	for _, corner := range corners[1:] {
		p := corner[0]*axis[0] + corner[1]*axis[1]
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return min, max
}
