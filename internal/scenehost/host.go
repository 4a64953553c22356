// Package scenehost drives the rendering process that owns the vehicle
// actors. The engine only ever talks to the Host interface; the
// concrete transport is either the remote control HTTP client or an
// in-process simulator for tests and demo runs. Locations are
// centimeters, rotations degrees.
package scenehost

import (
	"context"
	"errors"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// ErrUnknownActor reports an actor handle that does not resolve to
// anything in the scene.
var ErrUnknownActor = errors.New("unknown actor")

// ErrCaptureFailed reports a capture request the scene host accepted
// but could not render to an image.
var ErrCaptureFailed = errors.New("capture failed")

// Host is the command surface of the scene host.
type Host interface {
	// SetVisibility shows or hides an actor.
	SetVisibility(ctx context.Context, actor core.ActorHandle, visible bool) error
	// SetCollision turns actor collision on or off.
	SetCollision(ctx context.Context, actor core.ActorHandle, enabled bool) error
	// SetTransform teleports an actor to a new pose.
	SetTransform(ctx context.Context, actor core.ActorHandle, location core.Vector3, rotation core.Rotation3) error
	// GetTransform reads an actor's current pose.
	GetTransform(ctx context.Context, actor core.ActorHandle) (core.Transform, error)
	// MarkerLocations returns the world positions of an actor's
	// boundary marker components, keyed by component name.
	MarkerLocations(ctx context.Context, actor core.ActorHandle) (map[string]core.Vector3, error)
	// Capture renders the current scene to an image file on the
	// scene host side.
	Capture(ctx context.Context, path string, width, height int) error
}

var (
	_ Host = (*Client)(nil)
	_ Host = (*Simulator)(nil)
)
