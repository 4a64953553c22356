// Package pool manages the fixed set of pre-placed vehicle actors in
// the scene. Actors are never created or destroyed; a frame borrows
// handles from per-class pools and every release parks the actor in a
// graveyard far below the map, hidden and with collision off. Nothing
// may survive into the next frame, so sweeps cover the whole pool
// rather than just the handles this process drew.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/scenehost"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// GraveyardZ is the resting height of released actors, cm.
const GraveyardZ = -100000.0

// CleanupResult summarizes one release sweep over the pools.
type CleanupResult struct {
	Cleaned int
	Failed  int
	Reasons []string
}

// Success reports whether every actor parked cleanly.
func (r CleanupResult) Success() bool { return r.Failed == 0 }

// Pool hands out pre-placed actor handles per vehicle class and parks
// them again after use.
type Pool struct {
	logger *slog.Logger
	host   scenehost.Host

	mu     sync.Mutex
	actors map[core.VehicleClass][]core.ActorHandle
	used   map[core.ActorHandle]bool
}

// New creates a pool over the configured per-class actor names.
func New(host scenehost.Host, actors map[core.VehicleClass][]string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	pools := make(map[core.VehicleClass][]core.ActorHandle, len(actors))
	total := 0
	for class, names := range actors {
		handles := make([]core.ActorHandle, 0, len(names))
		for _, name := range names {
			handles = append(handles, core.ActorHandle(name))
		}
		pools[class] = handles
		total += len(handles)
	}
	logger.Info("Actor pool initialized",
		"classes", len(pools),
		"total_actors", total,
		"graveyard_z", GraveyardZ)
	return &Pool{
		logger: logger,
		host:   host,
		actors: pools,
		used:   make(map[core.ActorHandle]bool),
	}
}

// Acquire draws a random unused actor of the class. The draw comes
// from the caller's RNG so runs replay deterministically per seed.
func (p *Pool) Acquire(class core.VehicleClass, rng *rand.Rand) (core.ActorHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var free []core.ActorHandle
	for _, actor := range p.actors[class] {
		if !p.used[actor] {
			free = append(free, actor)
		}
	}
	if len(free) == 0 {
		return "", false
	}

	actor := free[rng.Intn(len(free))]
	p.used[actor] = true
	p.logger.Debug("Actor acquired", "actor", string(actor), "class", string(class))
	return actor, true
}

// Prepare stages an acquired actor at a pose: collision on, teleport,
// then visible, in that order.
func (p *Pool) Prepare(ctx context.Context, actor core.ActorHandle, t core.Transform) error {
	if err := p.host.SetCollision(ctx, actor, true); err != nil {
		return fmt.Errorf("failed to prepare actor %s: %w", actor, err)
	}
	if err := p.host.SetTransform(ctx, actor, t.Location, t.Rotation); err != nil {
		return fmt.Errorf("failed to prepare actor %s: %w", actor, err)
	}
	if err := p.host.SetVisibility(ctx, actor, true); err != nil {
		return fmt.Errorf("failed to prepare actor %s: %w", actor, err)
	}
	return nil
}

// Release parks one actor in the graveyard and frees its handle. The
// handle is freed even when a host call fails; the next sweep retries
// the park.
func (p *Pool) Release(ctx context.Context, actor core.ActorHandle) error {
	err := p.park(ctx, actor)
	p.mu.Lock()
	delete(p.used, actor)
	p.mu.Unlock()
	return err
}

// ReleaseAll sweeps every pooled actor into the graveyard, used or
// not, and clears the used set.
func (p *Pool) ReleaseAll(ctx context.Context) CleanupResult {
	p.mu.Lock()
	var all []core.ActorHandle
	for _, class := range core.Classes() {
		all = append(all, p.actors[class]...)
	}
	p.used = make(map[core.ActorHandle]bool)
	p.mu.Unlock()

	p.logger.Info("Actor cleanup started", "actors", len(all), "graveyard_z", GraveyardZ)

	var result CleanupResult
	for _, actor := range all {
		if err := p.park(ctx, actor); err != nil {
			result.Failed++
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %v", actor, err))
			continue
		}
		result.Cleaned++
	}

	if result.Success() {
		p.logger.Info("Actor cleanup completed", "actors_parked", result.Cleaned)
	} else {
		p.logger.Error("Actor cleanup incomplete",
			"actors_parked", result.Cleaned,
			"failed", result.Failed,
			"reasons", result.Reasons)
	}
	return result
}

// InUse reports whether a handle is currently drawn.
func (p *Pool) InUse(actor core.ActorHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used[actor]
}

// Available returns how many handles of a class remain free.
func (p *Pool) Available(class core.VehicleClass) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, actor := range p.actors[class] {
		if !p.used[actor] {
			n++
		}
	}
	return n
}

// Size returns the total number of pooled handles.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, handles := range p.actors {
		n += len(handles)
	}
	return n
}

func (p *Pool) park(ctx context.Context, actor core.ActorHandle) error {
	if err := p.host.SetVisibility(ctx, actor, false); err != nil {
		return err
	}
	if err := p.host.SetTransform(ctx, actor, core.Vector3{Z: GraveyardZ}, core.Rotation3{}); err != nil {
		return err
	}
	return p.host.SetCollision(ctx, actor, false)
}
