package zone

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// SpawnRequest asks the registry for a spawn point. Zero values widen
// the search: an empty ZoneType matches every type and an empty
// PreferredZoneID skips the preference pass. An empty InstanceID makes
// the registry mint one.
type SpawnRequest struct {
	Class           core.VehicleClass
	ZoneType        ZoneType
	PreferredZoneID string
	InstanceID      string
}

// Allocation is a granted spawn point. Slot is set for parking zones
// only. The InstanceID echoes the request's id, or the minted one.
type Allocation struct {
	Zone       Zone
	Slot       *ParkingSlot
	Transform  core.Transform
	InstanceID string
}

// Registry holds every zone of the loaded assets and allocates spawn
// points from them. Zones are tried in registration order, which makes
// allocation deterministic for a fixed manifest. All methods are safe
// for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu           sync.RWMutex
	zones        map[string]Zone
	order        []string
	validated    bool
	nextInstance uint64
}

// NewRegistry returns an empty registry logging through logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		zones:  make(map[string]Zone),
	}
}

// Register adds a zone. A zone id already registered is rejected with
// a warning and the registry keeps the first registration.
func (r *Registry) Register(z Zone) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := z.Meta()
	if existing, ok := r.zones[m.ID]; ok {
		r.logger.Warn("Duplicate zone id rejected",
			"zone_id", m.ID,
			"existing_asset", existing.Meta().AssetID,
			"new_asset", m.AssetID)
		return false
	}

	r.zones[m.ID] = z
	r.order = append(r.order, m.ID)
	r.validated = false
	r.logger.Debug("Zone registered",
		"zone_id", m.ID,
		"zone_type", string(z.Type()),
		"asset_id", m.AssetID)
	return true
}

// Unregister removes a zone by id.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.zones[id]; !ok {
		return false
	}
	delete(r.zones, id)
	for i, zid := range r.order {
		if zid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.validated = false
	return true
}

// Clear removes every zone and returns how many were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	r.zones = make(map[string]Zone)
	r.order = nil
	r.validated = false
	return n
}

// Zone returns the zone registered under id.
func (r *Registry) Zone(id string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	z, ok := r.zones[id]
	return z, ok
}

// Zones returns every zone in registration order.
func (r *Registry) Zones() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Zone, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.zones[id])
	}
	return out
}

// ZonesByType returns the zones of one type in registration order.
func (r *Registry) ZonesByType(t ZoneType) []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Zone
	for _, id := range r.order {
		if z := r.zones[id]; z.Type() == t {
			out = append(out, z)
		}
	}
	return out
}

// ZonesByAsset returns the zones belonging to one asset in
// registration order.
func (r *Registry) ZonesByAsset(assetID string) []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Zone
	for _, id := range r.order {
		if z := r.zones[id]; z.Meta().AssetID == assetID {
			out = append(out, z)
		}
	}
	return out
}

// ZonesForClass returns the zones that would accept one more vehicle
// of the class right now, in registration order. An empty zone type
// matches every type.
func (r *Registry) ZonesForClass(class core.VehicleClass, t ZoneType) []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.zonesForClass(class, t)
}

func (r *Registry) zonesForClass(class core.VehicleClass, t ZoneType) []Zone {
	var out []Zone
	for _, id := range r.order {
		z := r.zones[id]
		if t != "" && z.Type() != t {
			continue
		}
		if z.CanSpawn(class) {
			out = append(out, z)
		}
	}
	return out
}

// anyZoneAllows reports whether some enabled zone admits the class at
// all, ignoring capacity. It splits "at capacity" from "no zones".
func (r *Registry) anyZoneAllows(class core.VehicleClass, t ZoneType) bool {
	for _, id := range r.order {
		z := r.zones[id]
		if t != "" && z.Type() != t {
			continue
		}
		if _, excluded := z.(*ExclusionZone); excluded {
			continue
		}
		m := z.Meta()
		if m.Enabled && m.allowsClass(class) {
			return true
		}
	}
	return false
}

// AllocateSpawn grants a spawn point for the requested class. The
// preferred zone, when set and willing, is decided first, including
// its failure. Otherwise suitable zones are tried in registration
// order and the first zone-level failure is returned when all of them
// refuse. Errors are core.Failure values carrying a remedy.
func (r *Registry) AllocateSpawn(req SpawnRequest) (Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instanceID := req.InstanceID
	if instanceID == "" {
		r.nextInstance++
		instanceID = fmt.Sprintf("vehicle_%08x", r.nextInstance)
	}

	if req.PreferredZoneID != "" {
		if z, ok := r.zones[req.PreferredZoneID]; ok && z.CanSpawn(req.Class) {
			return r.allocateInZone(z, req.Class, instanceID)
		}
	}

	suitable := r.zonesForClass(req.Class, req.ZoneType)
	if len(suitable) == 0 {
		if r.anyZoneAllows(req.Class, req.ZoneType) {
			return Allocation{}, core.Failure{
				Kind:     core.FailureAllocation,
				Message:  fmt.Sprintf("all suitable zones at capacity for %s", req.Class),
				Affected: []string{string(req.Class)},
				Remedy:   "increase zone capacity or reduce vehicle count",
			}
		}
		return Allocation{}, core.Failure{
			Kind:     core.FailureAllocation,
			Message:  fmt.Sprintf("no zones available for %s", req.Class),
			Affected: []string{string(req.Class)},
			Remedy:   fmt.Sprintf("add zones that allow %s or check zone capacity", req.Class),
		}
	}

	var firstErr error
	for _, z := range suitable {
		alloc, err := r.allocateInZone(z, req.Class, instanceID)
		if err == nil {
			return alloc, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Allocation{}, firstErr
}

func (r *Registry) allocateInZone(z Zone, class core.VehicleClass, instanceID string) (Allocation, error) {
	switch v := z.(type) {
	case *ParkingZone:
		slot := v.firstAvailable(class)
		if slot == nil {
			return Allocation{}, core.Failure{
				Kind:     core.FailureAllocation,
				Message:  fmt.Sprintf("no available parking slots in %s for %s", v.ID, class),
				Affected: []string{v.ID},
				Remedy:   fmt.Sprintf("increase slot count or allow %s in existing slots", class),
			}
		}
		slot.Occupy(instanceID)
		v.vehicleCount++
		r.logger.Debug("Parking slot allocated",
			"zone_id", v.ID,
			"slot_id", slot.ID,
			"instance_id", instanceID,
			"class", string(class))
		return Allocation{Zone: v, Slot: slot, Transform: slot.Transform, InstanceID: instanceID}, nil

	case *RoadZone:
		if len(v.Lanes) == 0 {
			return Allocation{}, core.Failure{
				Kind:     core.FailureAllocation,
				Message:  fmt.Sprintf("road zone %s has no lanes defined", v.ID),
				Affected: []string{v.ID},
				Remedy:   "add lane definitions to road zone",
			}
		}
		var center core.Vector3
		if v.Bounds != nil {
			center = v.Bounds.Center()
		}
		lane := v.Lanes[0]
		transform := core.Transform{
			Location: core.Vector3{X: center.X, Y: center.Y + lane.LateralOffset, Z: 0},
			Rotation: core.Rotation3{Yaw: v.LaneYaw(0)},
		}
		v.vehicleCount++
		r.logger.Debug("Road spawn allocated",
			"zone_id", v.ID,
			"instance_id", instanceID,
			"class", string(class))
		return Allocation{Zone: v, Transform: transform, InstanceID: instanceID}, nil

	default:
		return Allocation{}, core.Failure{
			Kind:     core.FailureAllocation,
			Message:  fmt.Sprintf("zone type %s does not support spawning", z.Type()),
			Affected: []string{z.Meta().ID},
		}
	}
}

// ReleaseAllocation frees a single allocation. For parking zones the
// slot id names the slot to release; road zones just decrement their
// counter.
func (r *Registry) ReleaseAllocation(zoneID, slotID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[zoneID]
	if !ok {
		return false
	}
	m := z.Meta()

	if p, isParking := z.(*ParkingZone); isParking && slotID != "" {
		for _, s := range p.Slots {
			if s.ID == slotID && s.State == SlotOccupied {
				s.Release()
				if m.vehicleCount > 0 {
					m.vehicleCount--
				}
				return true
			}
		}
		return false
	}

	if m.vehicleCount == 0 {
		return false
	}
	m.vehicleCount--
	return true
}

// ReleaseAll frees every allocation in every zone and returns the
// number released. Calling it on an empty registry or twice in a row
// is harmless.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for _, id := range r.order {
		z := r.zones[id]
		m := z.Meta()
		if p, isParking := z.(*ParkingZone); isParking {
			for _, s := range p.Slots {
				if s.State == SlotOccupied {
					s.Release()
					released++
				}
			}
			m.vehicleCount = 0
			continue
		}
		released += m.vehicleCount
		m.vehicleCount = 0
	}
	if released > 0 {
		r.logger.Debug("Released all zone allocations", "released", released)
	}
	return released
}

// Validate checks structural integrity and returns every violation
// found. An empty result marks the registry validated.
func (r *Registry) Validate() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var violations []string
	for _, id := range r.order {
		z := r.zones[id]
		m := z.Meta()
		if m.ID == "" {
			violations = append(violations, fmt.Sprintf("zone has empty id (asset %s)", m.AssetID))
		}
		if m.Bounds == nil {
			violations = append(violations, fmt.Sprintf("zone %s has no bounds", m.ID))
		}
		switch v := z.(type) {
		case *ParkingZone:
			if len(v.Slots) == 0 && !v.AllowRandomPlacement {
				violations = append(violations, fmt.Sprintf("parking zone %s has no slots and random placement is disabled", m.ID))
			}
		case *RoadZone:
			if len(v.Lanes) == 0 {
				violations = append(violations, fmt.Sprintf("road zone %s has no lanes defined", m.ID))
			}
		}
	}

	r.validated = len(violations) == 0
	if !r.validated {
		r.logger.Warn("Zone validation failed", "violations", len(violations))
	}
	return violations
}

// ZoneAt returns the first registered zone whose bounds contain the
// point.
func (r *Registry) ZoneAt(p core.Vector3) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		z := r.zones[id]
		if b := z.Meta().Bounds; b != nil && b.Contains(p) {
			return z, true
		}
	}
	return nil, false
}

// InExclusion reports whether any enabled exclusion zone contains the
// point.
func (r *Registry) InExclusion(p core.Vector3) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		z, isExclusion := r.zones[id].(*ExclusionZone)
		if !isExclusion || !z.Enabled {
			continue
		}
		if z.Bounds != nil && z.Bounds.Contains(p) {
			return true
		}
	}
	return false
}

// Stats summarizes the registry for logs and run reports.
type Stats struct {
	TotalZones     int      `json:"totalZones"`
	RoadZones      int      `json:"roadZones"`
	ParkingZones   int      `json:"parkingZones"`
	ExclusionZones int      `json:"exclusionZones"`
	TotalSlots     int      `json:"totalSlots"`
	AvailableSlots int      `json:"availableSlots"`
	Assets         []string `json:"assets"`
	Validated      bool     `json:"validated"`
}

// Stats returns a snapshot of the registry contents.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{TotalZones: len(r.order), Validated: r.validated}
	seen := make(map[string]bool)
	for _, id := range r.order {
		z := r.zones[id]
		switch v := z.(type) {
		case *RoadZone:
			st.RoadZones++
		case *ParkingZone:
			st.ParkingZones++
			st.TotalSlots += len(v.Slots)
			for _, s := range v.Slots {
				if s.State == SlotAvailable {
					st.AvailableSlots++
				}
			}
		case *ExclusionZone:
			st.ExclusionZones++
		}
		if asset := z.Meta().AssetID; !seen[asset] {
			seen[asset] = true
			st.Assets = append(st.Assets, asset)
		}
	}
	return st
}
