// Package spawner turns spawn requests into staged vehicles. Vehicles
// may stand only inside zones handed out by the registry: a failed
// allocation is recorded and skipped, never retried with different
// parameters and never placed at an unzoned position. Road positions
// are additionally negotiated with the spacing checker under a lane
// space budget; parking positions come straight from the slot.
package spawner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/pool"
	"github.com/vantagecv/scenekit/v2/internal/spacing"
	"github.com/vantagecv/scenekit/v2/internal/zone"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// SpawnFailure records one vehicle that could not be placed.
type SpawnFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result is the outcome of one spawn request. Success means at least
// one vehicle stands; a zero-placement frame is unusable.
type Result struct {
	Success        bool                  `json:"success"`
	RequestedCount int                   `json:"requestedCount"`
	ActualCount    int                   `json:"actualCount"`
	Vehicles       []core.SpawnedVehicle `json:"vehicles"`
	Failures       []SpawnFailure        `json:"failures"`
}

// Stats accumulates spawn outcomes across frames.
type Stats struct {
	TotalSpawned  int                       `json:"totalSpawned"`
	ClassCounts   map[core.VehicleClass]int `json:"classCounts"`
	SpawnFailures int                       `json:"spawnFailures"`
	ZoneFailures  map[string]int            `json:"zoneFailures"`
}

// Spawner places vehicles into zones for one frame at a time.
type Spawner struct {
	logger   *slog.Logger
	cfg      config.SpawnerConfig
	registry *zone.Registry
	pool     *pool.Pool
	checker  *spacing.Checker
	rng      *rand.Rand

	mu          sync.Mutex
	frameBounds []spacing.Bounds
	laneSpace   map[string]int
	stats       Stats
}

// New creates a spawner over a loaded registry, an actor pool and a
// spacing checker. The RNG starts unseeded; call SetSeed before the
// first frame of a run.
func New(registry *zone.Registry, actors *pool.Pool, checker *spacing.Checker, cfg config.SpawnerConfig, logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Spawner{
		logger:    logger,
		cfg:       cfg,
		registry:  registry,
		pool:      actors,
		checker:   checker,
		rng:       rand.New(rand.NewSource(1)),
		laneSpace: make(map[string]int),
		stats: Stats{
			ClassCounts:  make(map[core.VehicleClass]int),
			ZoneFailures: make(map[string]int),
		},
	}
	rs := registry.Stats()
	logger.Info("Zone spawner initialized",
		"zones", rs.TotalZones,
		"road_zones", rs.RoadZones,
		"parking_zones", rs.ParkingZones,
		"class_weights", cfg.ClassWeights)
	return s
}

// SetSeed reseeds the spawner RNG. Same seed, same spawn sequence.
func (s *Spawner) SetSeed(seed int64) {
	s.rng = rand.New(rand.NewSource(seed))
	s.logger.Debug("Random seed set", "seed", seed)
}

// ValidateConfig checks the spawner and its registry before a run.
func (s *Spawner) ValidateConfig() error {
	total := 0.0
	for _, class := range core.Classes() {
		total += s.cfg.ClassWeights[class]
	}
	if math.Abs(total-1.0) > 0.01 {
		return core.Failure{
			Kind:    core.FailureConfig,
			Message: fmt.Sprintf("class weights sum to %.3f, want 1.0", total),
			Remedy:  "fix spawn.classWeights so the weights sum to 1.0",
		}
	}
	if s.cfg.PlacementAttempts <= 0 {
		return core.Failure{
			Kind:    core.FailureConfig,
			Message: "placement attempt budget must be positive",
			Remedy:  "set spawn.lane.placementAttempts to at least 1",
		}
	}

	rs := s.registry.Stats()
	if rs.TotalZones == 0 {
		return core.Failure{
			Kind:    core.FailureConfig,
			Message: "no zones registered",
			Remedy:  "load a zone manifest before spawning",
		}
	}
	if problems := s.registry.Validate(); len(problems) > 0 {
		for _, p := range problems {
			s.logger.Error("Zone validation error", "error", p)
		}
		return core.Failure{
			Kind:     core.FailureValidation,
			Message:  fmt.Sprintf("zone validation found %d problems", len(problems)),
			Affected: problems,
			Remedy:   "fix the zone manifest",
		}
	}
	if rs.RoadZones+rs.ParkingZones == 0 {
		return core.Failure{
			Kind:    core.FailureConfig,
			Message: "no spawn zones registered (road or parking)",
			Remedy:  "add road or parking zones to manifest",
		}
	}

	s.logger.Info("Spawner configuration validated")
	return nil
}

// SampleCount draws the vehicle count for a frame from the configured
// categorical distribution.
func (s *Spawner) SampleCount() int {
	r := s.rng.Float64()
	var count int
	switch {
	case r < s.cfg.Count.SingleWeight:
		count = 1
	case r < s.cfg.Count.SingleWeight+s.cfg.Count.SmallWeight:
		count = s.randInt(s.cfg.Count.SmallMin, s.cfg.Count.SmallMax)
	default:
		count = s.randInt(s.cfg.Count.LargeMin, s.cfg.Count.LargeMax)
	}
	s.logger.Debug("Vehicle count sampled", "count", count, "random_value", r)
	return count
}

// SampleClass draws a vehicle class from the configured weights.
func (s *Spawner) SampleClass() core.VehicleClass {
	classes := core.Classes()
	total := 0.0
	for _, c := range classes {
		total += s.cfg.ClassWeights[c]
	}
	if total <= 0 {
		return classes[s.rng.Intn(len(classes))]
	}

	r := s.rng.Float64() * total
	for _, c := range classes {
		r -= s.cfg.ClassWeights[c]
		if r < 0 {
			return c
		}
	}
	return classes[len(classes)-1]
}

// SpawnVehicles places count vehicles (sampled when count <= 0) into
// zones of the given type ("" for any). Per-vehicle failures are
// recorded and skipped; the frame fails only when nothing placed.
func (s *Spawner) SpawnVehicles(ctx context.Context, count int, zoneType zone.ZoneType, preferredZoneID string) Result {
	if count <= 0 {
		count = s.SampleCount()
	}
	s.logger.Info("Spawn request received",
		"requested_count", count,
		"zone_type", string(zoneType),
		"preferred_zone", preferredZoneID)

	result := Result{Success: true, RequestedCount: count}
	for i := 0; i < count; i++ {
		vehicle, err := s.spawnSingle(ctx, zoneType, preferredZoneID)
		if err != nil {
			result.Failures = append(result.Failures, SpawnFailure{Index: i, Reason: err.Error()})
			continue
		}
		result.Vehicles = append(result.Vehicles, vehicle)
		result.ActualCount++
	}

	switch {
	case result.ActualCount == 0:
		result.Success = false
		s.logger.Error("All spawn attempts failed",
			"requested_count", count,
			"failures", len(result.Failures))
	case result.ActualCount < count:
		s.logger.Warn("Partial spawn success",
			"requested_count", count,
			"actual_count", result.ActualCount,
			"failures", len(result.Failures))
	default:
		s.logger.Info("Spawn completed",
			"requested", count,
			"spawned", result.ActualCount)
	}
	return result
}

// ResetFrame clears per-frame placement state: tracked footprints and
// lane budgets are dropped, zone allocations are released, and every
// pooled actor is swept back to the graveyard.
func (s *Spawner) ResetFrame(ctx context.Context) pool.CleanupResult {
	s.mu.Lock()
	s.frameBounds = nil
	s.laneSpace = make(map[string]int)
	s.mu.Unlock()

	s.registry.ReleaseAll()
	return s.pool.ReleaseAll(ctx)
}

// Stats returns a copy of the accumulated spawn statistics.
func (s *Spawner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{
		TotalSpawned:  s.stats.TotalSpawned,
		SpawnFailures: s.stats.SpawnFailures,
		ClassCounts:   make(map[core.VehicleClass]int, len(s.stats.ClassCounts)),
		ZoneFailures:  make(map[string]int, len(s.stats.ZoneFailures)),
	}
	for k, v := range s.stats.ClassCounts {
		out.ClassCounts[k] = v
	}
	for k, v := range s.stats.ZoneFailures {
		out.ZoneFailures[k] = v
	}
	return out
}

// ResetStats zeroes the accumulated statistics for a new run.
func (s *Spawner) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{
		ClassCounts:  make(map[core.VehicleClass]int),
		ZoneFailures: make(map[string]int),
	}
}

func (s *Spawner) spawnSingle(ctx context.Context, zoneType zone.ZoneType, preferredZoneID string) (core.SpawnedVehicle, error) {
	class := s.SampleClass()

	actor, ok := s.pool.Acquire(class, s.rng)
	if !ok {
		err := core.Failure{
			Kind:    core.FailureAllocation,
			Message: "no available actors for " + string(class),
			Remedy:  "add more actors or reduce vehicle count",
		}
		s.recordFailure(err.Message)
		s.logger.Error("No actor available", "class", string(class))
		return core.SpawnedVehicle{}, err
	}

	instanceID := fmt.Sprintf("vehicle_%08x", s.rng.Uint32())
	alloc, err := s.registry.AllocateSpawn(zone.SpawnRequest{
		Class:           class,
		ZoneType:        zoneType,
		PreferredZoneID: preferredZoneID,
		InstanceID:      instanceID,
	})
	if err != nil {
		s.recordFailure(failureMessage(err))
		s.logger.Error("Zone allocation failed", "class", string(class), "reason", err)
		return core.SpawnedVehicle{}, err
	}

	meta := alloc.Zone.Meta()
	slotID := ""
	if alloc.Slot != nil {
		slotID = alloc.Slot.ID
	}

	pose := alloc.Transform
	inParking := false
	switch z := alloc.Zone.(type) {
	case *zone.RoadZone:
		pose, err = s.placeOnRoad(ctx, actor, class, z)
		if err != nil {
			s.registry.ReleaseAllocation(meta.ID, slotID)
			s.recordFailure(failureMessage(err))
			return core.SpawnedVehicle{}, err
		}
	case *zone.ParkingZone:
		pose = s.parkingPose(alloc.Transform)
		inParking = true
	}

	if err := s.pool.Prepare(ctx, actor, pose); err != nil {
		s.registry.ReleaseAllocation(meta.ID, slotID)
		s.recordFailure("actor staging failed")
		s.logger.Error("Failed to stage actor", "actor", string(actor), "error", err)
		return core.SpawnedVehicle{}, core.Failure{
			Kind:     core.FailureAllocation,
			Message:  fmt.Sprintf("failed to stage actor %s", actor),
			Affected: []string{string(actor)},
			Remedy:   "check the scene host connection",
		}
	}

	s.trackBounds(ctx, actor, class, pose, inParking)

	vehicle := core.SpawnedVehicle{
		InstanceID: instanceID,
		Class:      class,
		Actor:      actor,
		Transform:  pose,
		Dimensions: core.DefaultDimensions(class),
		Color:      s.sampleColor(),
		ZoneID:     meta.ID,
		ZoneType:   string(alloc.Zone.Type()),
		SlotID:     slotID,
	}

	s.mu.Lock()
	s.stats.TotalSpawned++
	s.stats.ClassCounts[class]++
	s.mu.Unlock()

	s.logger.Debug("Vehicle spawned",
		"instance_id", instanceID,
		"class", string(class),
		"actor", string(actor),
		"zone_id", vehicle.ZoneID,
		"zone_type", vehicle.ZoneType,
		"slot_id", slotID)
	return vehicle, nil
}

// placeOnRoad searches a random lane for a clear pose: parametric
// position along the lane span, lateral jitter bounded by the physical
// half-width, yaw jitter around the lane heading. A pose is accepted
// only when the class's space value fits the lane budget and the
// spacing checker clears it against everything placed this frame.
func (s *Spawner) placeOnRoad(ctx context.Context, actor core.ActorHandle, class core.VehicleClass, road *zone.RoadZone) (core.Transform, error) {
	meta := road.Meta()
	laneIdx := s.rng.Intn(len(road.Lanes))
	lane := road.Lanes[laneIdx]
	laneKey := fmt.Sprintf("%s/%d", meta.ID, laneIdx)

	space := s.cfg.SpaceValues[class]
	s.mu.Lock()
	used := s.laneSpace[laneKey]
	s.mu.Unlock()
	if lane.Capacity > 0 && used+space > lane.Capacity {
		return core.Transform{}, core.Failure{
			Kind:     core.FailureSpacing,
			Message:  fmt.Sprintf("lane %d of %s is at capacity", laneIdx, meta.ID),
			Affected: []string{meta.ID},
			Remedy:   "raise lane capacity or reduce vehicle count",
		}
	}

	xMin, xMax := zone.XSpan(meta.Bounds)
	center := meta.Bounds.Center()
	baseYaw := road.LaneYaw(laneIdx)

	jitterBound := s.cfg.LateralJitterCm
	if half := lane.Width / 2; half < jitterBound {
		jitterBound = half
	}

	existing := s.snapshotBounds()
	for attempt := 1; attempt <= s.cfg.PlacementAttempts; attempt++ {
		t := s.uniform(s.cfg.LanePositionMin, s.cfg.LanePositionMax)
		pose := core.Transform{
			Location: core.Vector3{
				X: xMin + t*(xMax-xMin),
				Y: center.Y + lane.LateralOffset + s.uniform(-jitterBound, jitterBound),
			},
			Rotation: core.Rotation3{Yaw: baseYaw + s.uniform(-s.cfg.YawJitterDeg, s.cfg.YawJitterDeg)},
		}

		if s.checker.CanPlace(ctx, actor, class, pose, existing, false) {
			s.mu.Lock()
			s.laneSpace[laneKey] += space
			s.mu.Unlock()
			s.logger.Debug("Road position accepted",
				"actor", string(actor),
				"zone_id", meta.ID,
				"lane", laneIdx,
				"attempt", attempt)
			return pose, nil
		}
	}

	return core.Transform{}, core.Failure{
		Kind:     core.FailureSpacing,
		Message:  fmt.Sprintf("no clear position on %s after %d attempts", meta.ID, s.cfg.PlacementAttempts),
		Affected: []string{string(actor)},
		Remedy:   "reduce vehicle count or widen the zone",
	}
}

// parkingPose applies the optional slot jitter and reverse-in flip.
// Both default off, leaving the slot transform untouched.
func (s *Spawner) parkingPose(t core.Transform) core.Transform {
	p := s.cfg.Parking
	if p.JitterEnabled {
		t.Location.X += s.uniform(-p.JitterCm, p.JitterCm)
		t.Location.Y += s.uniform(-p.JitterCm, p.JitterCm)
		t.Rotation.Yaw += s.uniform(-p.JitterDeg, p.JitterDeg)
	}
	if p.ReverseEnabled && s.rng.Float64() < p.ReverseProbability {
		t.Rotation.Yaw += 180
	}
	return t
}

// trackBounds records the placed footprint for later collision checks.
// Footprints that cannot be determined are simply not tracked.
func (s *Spawner) trackBounds(ctx context.Context, actor core.ActorHandle, class core.VehicleClass, pose core.Transform, inParking bool) {
	off, ok := s.checker.Discover(ctx, actor, class)
	if !ok {
		return
	}
	b, ok := s.checker.Bounds(actor, class, off, pose, inParking)
	if !ok {
		return
	}
	s.mu.Lock()
	s.frameBounds = append(s.frameBounds, b)
	s.mu.Unlock()
}

func (s *Spawner) snapshotBounds() []spacing.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]spacing.Bounds, len(s.frameBounds))
	copy(out, s.frameBounds)
	return out
}

func (s *Spawner) recordFailure(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SpawnFailures++
	s.stats.ZoneFailures[reason]++
}

func (s *Spawner) sampleColor() core.Color {
	palette := core.Palette()
	return palette[s.rng.Intn(len(palette))]
}

func (s *Spawner) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func (s *Spawner) randInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

// failureMessage extracts the bare message from a structured failure
// so statistics group by cause rather than by formatted error text.
func failureMessage(err error) string {
	if f, ok := err.(core.Failure); ok {
		return f.Message
	}
	return err.Error()
}
