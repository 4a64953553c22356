package scenehost

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/geo"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// Command ops recorded by the simulator.
const (
	OpVisibility = "visibility"
	OpCollision  = "collision"
	OpTransform  = "transform"
	OpCapture    = "capture"
)

// Command is one recorded host mutation, kept in arrival order.
type Command struct {
	Op    string
	Actor core.ActorHandle
	Value string
}

// Simulator is an in-memory Host for tests and demo runs. It tracks
// per-actor state, records every command in order, and writes real PNG
// files on capture so downstream tooling has images to open.
type Simulator struct {
	mu       sync.Mutex
	actors   map[core.ActorHandle]*simActor
	commands []Command
	captures []string
}

type simActor struct {
	transform core.Transform
	visible   bool
	collision bool
	markers   map[string]core.Vector3
}

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{actors: make(map[core.ActorHandle]*simActor)}
}

// RegisterActor adds an actor at a starting pose, visible and with
// collision enabled. Re-registering resets the actor.
func (s *Simulator) RegisterActor(actor core.ActorHandle, t core.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actor] = &simActor{transform: t, visible: true, collision: true}
}

// SetMarkers attaches boundary marker components to an actor as local
// offsets from its origin. MarkerLocations reports them in world space
// at the actor's current pose.
func (s *Simulator) SetMarkers(actor core.ActorHandle, offsets map[string]core.Vector3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensure(actor)
	a.markers = make(map[string]core.Vector3, len(offsets))
	for name, off := range offsets {
		a.markers[name] = off
	}
}

// SetVisibility shows or hides an actor.
func (s *Simulator) SetVisibility(ctx context.Context, actor core.ActorHandle, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(actor).visible = visible
	s.commands = append(s.commands, Command{Op: OpVisibility, Actor: actor, Value: strconv.FormatBool(visible)})
	return nil
}

// SetCollision turns actor collision on or off.
func (s *Simulator) SetCollision(ctx context.Context, actor core.ActorHandle, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(actor).collision = enabled
	s.commands = append(s.commands, Command{Op: OpCollision, Actor: actor, Value: strconv.FormatBool(enabled)})
	return nil
}

// SetTransform teleports an actor to a new pose.
func (s *Simulator) SetTransform(ctx context.Context, actor core.ActorHandle, location core.Vector3, rotation core.Rotation3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(actor).transform = core.Transform{Location: location, Rotation: rotation}
	s.commands = append(s.commands, Command{
		Op:    OpTransform,
		Actor: actor,
		Value: fmt.Sprintf("%.0f,%.0f,%.0f yaw %.0f", location.X, location.Y, location.Z, rotation.Yaw),
	})
	return nil
}

// GetTransform reads an actor's current pose.
func (s *Simulator) GetTransform(ctx context.Context, actor core.ActorHandle) (core.Transform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actor]
	if !ok {
		return core.Transform{}, fmt.Errorf("%w: %s", ErrUnknownActor, actor)
	}
	return a.transform, nil
}

// MarkerLocations returns the actor's markers in world space.
func (s *Simulator) MarkerLocations(ctx context.Context, actor core.ActorHandle) (map[string]core.Vector3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, actor)
	}
	world := make(map[string]core.Vector3, len(a.markers))
	for name, off := range a.markers {
		world[name] = geo.WorldFromLocal(off, a.transform)
	}
	return world, nil
}

// Capture writes a uniform PNG of the requested size, creating parent
// directories as needed.
func (s *Simulator) Capture(ctx context.Context, path string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrCaptureFailed, width, height)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 88, G: 96, B: 104, A: 255}), image.Point{}, draw.Src)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Op: OpCapture, Value: path})
	s.captures = append(s.captures, path)
	return nil
}

// Commands returns a copy of the recorded command log.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Captures returns the capture paths written so far.
func (s *Simulator) Captures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.captures))
	copy(out, s.captures)
	return out
}

// Visible reports an actor's visibility. Unknown actors report false.
func (s *Simulator) Visible(actor core.ActorHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actor]
	return ok && a.visible
}

// CollisionEnabled reports whether an actor's collision is on.
func (s *Simulator) CollisionEnabled(actor core.ActorHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actor]
	return ok && a.collision
}

func (s *Simulator) ensure(actor core.ActorHandle) *simActor {
	a, ok := s.actors[actor]
	if !ok {
		a = &simActor{visible: true, collision: true}
		s.actors[actor] = a
	}
	return a
}
