// Package spacing prevents vehicle overlaps at placement time. Each
// vehicle's footprint comes from boundary markers attached to its
// actor, discovered once per actor and cached; proposed poses are then
// tested against every vehicle already standing in the frame. Parking
// slot placements bypass the test entirely. When anything about a
// footprint is uncertain the checker rejects the pose.
package spacing

import (
	"context"
	"log/slog"
	"math"

	"github.com/vantagecv/scenekit/v2/internal/cache"
	"github.com/vantagecv/scenekit/v2/internal/geo"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

const (
	// DefaultMargin is the safety gap enforced between footprints, cm.
	DefaultMargin = 50.0
	// DefaultMinCenterDistance is the fallback center-to-center floor
	// used when a footprint is degenerate, cm.
	DefaultMinCenterDistance = 500.0

	// markerMinOffset filters out components sitting on the vehicle
	// origin; real boundary markers stand off at least this far, cm.
	markerMinOffset = 50.0

	bikeMinHalfWidth = 40.0
	carMinHalfWidth  = 90.0
)

// Conservative footprints used when an actor carries no boundary
// markers. Lengths run longer than the render meshes on purpose.
var (
	defaultLengths = map[core.VehicleClass]float64{
		core.ClassCar:        450,
		core.ClassTruck:      700,
		core.ClassBus:        1200,
		core.ClassMotorcycle: 220,
		core.ClassBicycle:    180,
	}
	defaultWidths = map[core.VehicleClass]float64{
		core.ClassCar:        180,
		core.ClassTruck:      250,
		core.ClassBus:        250,
		core.ClassMotorcycle: 80,
		core.ClassBicycle:    60,
	}
	satHalfWidths = map[core.VehicleClass]float64{
		core.ClassCar:   110,
		core.ClassTruck: 140,
		core.ClassBus:   150,
	}
)

// MarkerSource is the slice of the scene host the checker needs:
// the actor's current pose and the world positions of its components.
type MarkerSource interface {
	GetTransform(ctx context.Context, actor core.ActorHandle) (core.Transform, error)
	MarkerLocations(ctx context.Context, actor core.ActorHandle) (map[string]core.Vector3, error)
}

// Offsets are boundary marker positions in the vehicle's local frame,
// +X forward. Front and back are always set after a successful
// discovery; sides exist for two-wheeled actors or marker-equipped
// meshes only.
type Offsets struct {
	Front core.Vector3
	Back  core.Vector3
	Left  *core.Vector3
	Right *core.Vector3
}

// Bounds is a vehicle footprint at a concrete world pose.
type Bounds struct {
	Actor         core.ActorHandle
	Class         core.VehicleClass
	Location      core.Vector3
	Rotation      core.Rotation3
	Front         core.Vector3
	Back          core.Vector3
	Left          *core.Vector3
	Right         *core.Vector3
	InParkingSpot bool
}

// Checker answers whether a vehicle fits at a proposed pose. Safe for
// concurrent use; the offsets cache is shared across frames because
// marker geometry is a property of the actor, not the placement.
type Checker struct {
	logger            *slog.Logger
	source            MarkerSource
	margin            float64
	minCenterDistance float64
	offsets           *cache.Map[core.ActorHandle, Offsets]
}

// NewChecker builds a checker reading marker geometry from source.
// Non-positive margin or distance values fall back to the defaults.
func NewChecker(source MarkerSource, margin, minCenterDistance float64, logger *slog.Logger) *Checker {
	if margin <= 0 {
		margin = DefaultMargin
	}
	if minCenterDistance <= 0 {
		minCenterDistance = DefaultMinCenterDistance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		logger:            logger,
		source:            source,
		margin:            margin,
		minCenterDistance: minCenterDistance,
		offsets:           cache.NewMap[core.ActorHandle, Offsets](),
	}
}

// Discover resolves the actor's boundary marker offsets, querying the
// scene host only on the first call per actor. Actors without markers
// get conservative class-default footprints. Discovery fails only when
// markers exist but front and back cannot both be identified.
func (c *Checker) Discover(ctx context.Context, actor core.ActorHandle, class core.VehicleClass) (Offsets, bool) {
	if off, ok := c.offsets.Get(actor); ok {
		return off, true
	}

	markers := c.localMarkerOffsets(ctx, actor)
	if len(markers) < 2 {
		off := defaultOffsets(class)
		c.offsets.Set(actor, off)
		c.logger.Debug("No boundary markers found, using class defaults",
			"actor", string(actor),
			"class", string(class),
			"markers", len(markers))
		return off, true
	}

	off, ok := classifyMarkers(markers)
	if !ok {
		c.logger.Warn("Incomplete boundary markers",
			"actor", string(actor),
			"class", string(class),
			"markers", len(markers))
		return Offsets{}, false
	}

	c.offsets.Set(actor, off)
	return off, true
}

// Bounds places the offsets at a proposed pose, pure of any scene host
// traffic. Two-wheeled classes need side markers; without them the
// footprint is undefined and the placement must be rejected.
func (c *Checker) Bounds(actor core.ActorHandle, class core.VehicleClass, off Offsets, pose core.Transform, inParkingSpot bool) (Bounds, bool) {
	if class.TwoWheeled() && (off.Left == nil || off.Right == nil) {
		return Bounds{}, false
	}

	b := Bounds{
		Actor:         actor,
		Class:         class,
		Location:      pose.Location,
		Rotation:      pose.Rotation,
		Front:         geo.WorldFromLocal(off.Front, pose),
		Back:          geo.WorldFromLocal(off.Back, pose),
		InParkingSpot: inParkingSpot,
	}
	if off.Left != nil {
		left := geo.WorldFromLocal(*off.Left, pose)
		b.Left = &left
	}
	if off.Right != nil {
		right := geo.WorldFromLocal(*off.Right, pose)
		b.Right = &right
	}
	return b, true
}

// CanPlace reports whether the actor fits at the pose without
// overlapping any existing non-parking footprint. Parking placements
// always fit; undeterminable footprints never do.
func (c *Checker) CanPlace(ctx context.Context, actor core.ActorHandle, class core.VehicleClass, pose core.Transform, existing []Bounds, inParkingSpot bool) bool {
	if inParkingSpot {
		return true
	}

	off, ok := c.Discover(ctx, actor, class)
	if !ok {
		return false
	}
	proposed, ok := c.Bounds(actor, class, off, pose, inParkingSpot)
	if !ok {
		return false
	}

	for i := range existing {
		if existing[i].InParkingSpot {
			continue
		}
		if c.collide(proposed, existing[i]) {
			c.logger.Debug("Placement rejected by footprint overlap",
				"actor", string(actor),
				"against", string(existing[i].Actor))
			return false
		}
	}
	return true
}

// localMarkerOffsets queries component world positions and rotates
// them into the actor's local frame. Any host error yields an empty
// set, which degrades to class defaults.
func (c *Checker) localMarkerOffsets(ctx context.Context, actor core.ActorHandle) map[string]core.Vector3 {
	pose, err := c.source.GetTransform(ctx, actor)
	if err != nil {
		c.logger.Debug("Marker discovery: actor transform unavailable",
			"actor", string(actor), "error", err)
		return nil
	}
	locations, err := c.source.MarkerLocations(ctx, actor)
	if err != nil {
		c.logger.Debug("Marker discovery: component query failed",
			"actor", string(actor), "error", err)
		return nil
	}

	offsets := make(map[string]core.Vector3)
	for name, loc := range locations {
		delta := loc.Sub(pose.Location)
		if math.Abs(delta.X) <= markerMinOffset && math.Abs(delta.Y) <= markerMinOffset {
			continue
		}
		offsets[name] = geo.RotateYaw(delta, -pose.Rotation.Yaw)
	}
	return offsets
}

// classifyMarkers assigns each marker to the side it stands off
// toward. Axis-dominant markers win their slot by extremity; mixed
// markers go to their larger component. Front and back are mandatory.
func classifyMarkers(markers map[string]core.Vector3) (Offsets, bool) {
	var front, back, left, right *core.Vector3

	for name := range markers {
		m := markers[name]
		x, y := m.X, m.Y
		switch {
		case math.Abs(x) > math.Abs(y)*2:
			if x > 0 {
				if front == nil || x > front.X {
					front = &m
				}
			} else if back == nil || x < back.X {
				back = &m
			}
		case math.Abs(y) > math.Abs(x)*2:
			if y > 0 {
				if right == nil || y > right.Y {
					right = &m
				}
			} else if left == nil || y < left.Y {
				left = &m
			}
		default:
			if math.Abs(x) >= math.Abs(y) {
				if x > 0 && (front == nil || x > front.X) {
					front = &m
				} else if x < 0 && (back == nil || x < back.X) {
					back = &m
				}
			} else {
				if y > 0 && (right == nil || y > right.Y) {
					right = &m
				} else if y < 0 && (left == nil || y < left.Y) {
					left = &m
				}
			}
		}
	}

	if front == nil || back == nil {
		return Offsets{}, false
	}
	return Offsets{Front: *front, Back: *back, Left: left, Right: right}, true
}

// defaultOffsets builds a symmetric footprint from the class tables.
func defaultOffsets(class core.VehicleClass) Offsets {
	length, ok := defaultLengths[class]
	if !ok {
		length = defaultLengths[core.ClassCar]
	}
	width, ok := defaultWidths[class]
	if !ok {
		width = defaultWidths[core.ClassCar]
	}

	off := Offsets{
		Front: core.Vector3{X: length / 2},
		Back:  core.Vector3{X: -length / 2},
	}
	if class.TwoWheeled() {
		off.Left = &core.Vector3{Y: -width / 2}
		off.Right = &core.Vector3{Y: width / 2}
	}
	return off
}
