// Package zone models the spatial placement zones of a scene asset and
// the registry that allocates spawn points from them. Zones come in
// three variants forming a closed set: roads place vehicles along
// lanes, parking zones hand out discrete slots, exclusion zones only
// reject. Registration order is allocation order.
package zone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vantagecv/scenekit/v2/internal/util"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

var (
	ErrInvalidZoneType      = errors.New("invalid zone type")
	ErrInvalidLaneDirection = errors.New("invalid lane direction")
	ErrInvalidSlotState     = errors.New("invalid slot state")
)

// ZoneType names a zone variant. The empty value acts as "any type" in
// allocation requests.
type ZoneType string

const (
	TypeRoad      ZoneType = "road"
	TypeParking   ZoneType = "parking"
	TypeExclusion ZoneType = "exclusion"
)

// ParseZoneType parses a zone type case-insensitively.
func ParseZoneType(s string) (ZoneType, error) {
	switch t := ZoneType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeRoad, TypeParking, TypeExclusion:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidZoneType, s)
	}
}

// LaneDirection is the travel direction of a road zone's lanes.
type LaneDirection string

const (
	DirectionForward       LaneDirection = "forward"
	DirectionBackward      LaneDirection = "backward"
	DirectionBidirectional LaneDirection = "bidirectional"
)

// ParseLaneDirection parses a lane direction case-insensitively.
func ParseLaneDirection(s string) (LaneDirection, error) {
	switch d := LaneDirection(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionForward, DirectionBackward, DirectionBidirectional:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLaneDirection, s)
	}
}

// SlotState is the occupancy state of a parking slot. The zero value is
// available.
type SlotState int

const (
	SlotAvailable SlotState = iota
	SlotOccupied
	SlotDisabled
)

func (s SlotState) String() string {
	switch s {
	case SlotAvailable:
		return "available"
	case SlotOccupied:
		return "occupied"
	case SlotDisabled:
		return "disabled"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// ParseSlotState parses a slot state case-insensitively.
func ParseSlotState(s string) (SlotState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available":
		return SlotAvailable, nil
	case "occupied":
		return SlotOccupied, nil
	case "disabled":
		return SlotDisabled, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlotState, s)
	}
}

// Lane is one travel lane of a road zone, offset laterally from the
// zone centerline along +Y. Capacity is the lane's abstract space
// budget consumed by per-class space values; zero means unbounded.
type Lane struct {
	LateralOffset float64
	Width         float64
	Capacity      int
}

// ParkingSlot is a single discrete parking position. An empty allowed
// class list admits every class.
type ParkingSlot struct {
	ID             string
	Transform      core.Transform
	AllowedClasses []core.VehicleClass
	State          SlotState
	OccupiedBy     string
}

// CanAccept reports whether the slot is free and admits the class.
func (s *ParkingSlot) CanAccept(class core.VehicleClass) bool {
	if s.State != SlotAvailable {
		return false
	}
	return len(s.AllowedClasses) == 0 || util.Contains(s.AllowedClasses, class)
}

// Occupy marks the slot taken by the instance. It fails when the slot
// is not available.
func (s *ParkingSlot) Occupy(instanceID string) bool {
	if s.State != SlotAvailable {
		return false
	}
	s.State = SlotOccupied
	s.OccupiedBy = instanceID
	return true
}

// Release frees the slot. Disabled slots stay disabled.
func (s *ParkingSlot) Release() {
	if s.State == SlotOccupied {
		s.State = SlotAvailable
	}
	s.OccupiedBy = ""
}

// ZoneMeta carries the fields every zone variant shares. Capacity zero
// means unbounded; an empty allowed class list admits nothing, so
// spawn zones must list their classes explicitly.
type ZoneMeta struct {
	ID             string
	AssetID        string
	Bounds         Bounds
	AllowedClasses []core.VehicleClass
	Capacity       int
	Enabled        bool

	vehicleCount int
}

// VehicleCount returns the number of live allocations in the zone.
func (m *ZoneMeta) VehicleCount() int {
	return m.vehicleCount
}

func (m *ZoneMeta) allowsClass(class core.VehicleClass) bool {
	return util.Contains(m.AllowedClasses, class)
}

func (m *ZoneMeta) hasCapacity() bool {
	return m.Capacity <= 0 || m.vehicleCount < m.Capacity
}

func (m *ZoneMeta) canSpawn(class core.VehicleClass) bool {
	return m.Enabled && m.allowsClass(class) && m.hasCapacity()
}

// Zone is the closed set of placement zone variants. Allocation
// switches exhaustively on the concrete type; the unexported marker
// keeps the set closed to this package.
type Zone interface {
	Meta() *ZoneMeta
	Type() ZoneType
	// CanSpawn reports whether the zone accepts one more vehicle of the class.
	CanSpawn(class core.VehicleClass) bool

	sealedZone()
}

// RoadZone places vehicles along lanes running the zone's x extent.
type RoadZone struct {
	ZoneMeta
	Lanes     []Lane
	Direction LaneDirection
}

func (z *RoadZone) sealedZone() {}

// Meta returns the shared zone fields.
func (z *RoadZone) Meta() *ZoneMeta { return &z.ZoneMeta }

// Type returns TypeRoad.
func (z *RoadZone) Type() ZoneType { return TypeRoad }

// CanSpawn reports whether the zone accepts one more vehicle of the class.
func (z *RoadZone) CanSpawn(class core.VehicleClass) bool {
	return z.canSpawn(class)
}

// LaneYaw returns the travel heading in degrees for a lane index.
// Bidirectional roads alternate per lane: even indexes face forward,
// odd indexes face backward.
func (z *RoadZone) LaneYaw(index int) float64 {
	switch z.Direction {
	case DirectionBackward:
		return 180
	case DirectionBidirectional:
		if index%2 == 1 {
			return 180
		}
		return 0
	default:
		return 0
	}
}

// ParkingZone hands out discrete slots. Slot exhaustion bounds the
// zone even when Capacity is unbounded.
type ParkingZone struct {
	ZoneMeta
	Slots                []*ParkingSlot
	AllowRandomPlacement bool
}

func (z *ParkingZone) sealedZone() {}

// Meta returns the shared zone fields.
func (z *ParkingZone) Meta() *ZoneMeta { return &z.ZoneMeta }

// Type returns TypeParking.
func (z *ParkingZone) Type() ZoneType { return TypeParking }

// CanSpawn reports whether the zone accepts one more vehicle of the class.
func (z *ParkingZone) CanSpawn(class core.VehicleClass) bool {
	return z.canSpawn(class)
}

// AvailableSlots counts the slots that would accept the class right now.
func (z *ParkingZone) AvailableSlots(class core.VehicleClass) int {
	n := 0
	for _, s := range z.Slots {
		if s.CanAccept(class) {
			n++
		}
	}
	return n
}

func (z *ParkingZone) firstAvailable(class core.VehicleClass) *ParkingSlot {
	for _, s := range z.Slots {
		if s.CanAccept(class) {
			return s
		}
	}
	return nil
}

// ExclusionZone marks ground no vehicle may occupy. It never spawns.
type ExclusionZone struct {
	ZoneMeta
	Reason string
}

func (z *ExclusionZone) sealedZone() {}

// Meta returns the shared zone fields.
func (z *ExclusionZone) Meta() *ZoneMeta { return &z.ZoneMeta }

// Type returns TypeExclusion.
func (z *ExclusionZone) Type() ZoneType { return TypeExclusion }

// CanSpawn always reports false.
func (z *ExclusionZone) CanSpawn(core.VehicleClass) bool { return false }

// ExclusionReason returns the configured reason, or a generic one.
func (z *ExclusionZone) ExclusionReason() string {
	if z.Reason == "" {
		return "No vehicles allowed"
	}
	return z.Reason
}
