// internal/scenehost/client.go
package scenehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

const (
	remoteCallPath    = "/remote/object/call"
	staticMeshClass   = "/Script/Engine.StaticMeshComponent"
	rootMeshComponent = "StaticMeshComponent0"
)

// Client talks to a live scene host over its remote control HTTP API.
// Every operation is a PUT against the object call endpoint; actor
// object paths are anchored inside the persistent level of the
// configured level path.
type Client struct {
	callURL      string
	levelPath    string
	captureActor string
	httpClient   *http.Client
}

// NewClient creates a remote scene host client. The capture actor is
// the in-level actor that owns frame rendering.
func NewClient(baseURL, levelPath, captureActor string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		callURL:      strings.TrimRight(baseURL, "/") + remoteCallPath,
		levelPath:    levelPath,
		captureActor: captureActor,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// remoteCall is the request envelope of the object call endpoint.
type remoteCall struct {
	ObjectPath          string `json:"objectPath"`
	FunctionName        string `json:"functionName"`
	Parameters          any    `json:"parameters"`
	GenerateTransaction bool   `json:"generateTransaction"`
}

type vectorParam struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type rotatorParam struct {
	Pitch float64 `json:"Pitch"`
	Yaw   float64 `json:"Yaw"`
	Roll  float64 `json:"Roll"`
}

type setLocationParams struct {
	NewLocation vectorParam `json:"NewLocation"`
	Sweep       bool        `json:"bSweep"`
	Teleport    bool        `json:"bTeleport"`
}

type setRotationParams struct {
	NewRotation     rotatorParam `json:"NewRotation"`
	TeleportPhysics bool         `json:"bTeleportPhysics"`
}

type setHiddenParams struct {
	NewHidden bool `json:"bNewHidden"`
}

type setCollisionParams struct {
	EnableCollision bool `json:"bNewActorEnableCollision"`
}

type componentsParams struct {
	ComponentClass string `json:"ComponentClass"`
}

type captureParams struct {
	OutputPath string `json:"OutputPath"`
	Width      int    `json:"Width"`
	Height     int    `json:"Height"`
}

type vectorResult struct {
	ReturnValue vectorParam `json:"ReturnValue"`
}

type rotatorResult struct {
	ReturnValue rotatorParam `json:"ReturnValue"`
}

type componentsResult struct {
	ReturnValue []string `json:"ReturnValue"`
}

type boolResult struct {
	ReturnValue bool `json:"ReturnValue"`
}

func (v vectorParam) vector() core.Vector3 {
	return core.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func (r rotatorParam) rotator() core.Rotation3 {
	return core.Rotation3{Pitch: r.Pitch, Yaw: r.Yaw, Roll: r.Roll}
}

// SetVisibility shows or hides an actor. The remote API expresses
// visibility as hiddenness, so the flag is inverted on the wire.
func (c *Client) SetVisibility(ctx context.Context, actor core.ActorHandle, visible bool) error {
	return c.call(ctx, c.actorPath(string(actor)), "SetActorHiddenInGame", setHiddenParams{NewHidden: !visible}, nil)
}

// SetCollision turns actor collision on or off.
func (c *Client) SetCollision(ctx context.Context, actor core.ActorHandle, enabled bool) error {
	return c.call(ctx, c.actorPath(string(actor)), "SetActorEnableCollision", setCollisionParams{EnableCollision: enabled}, nil)
}

// SetTransform teleports an actor to a new pose. Location and rotation
// are separate calls on the remote API; a failed location call leaves
// the rotation untouched.
func (c *Client) SetTransform(ctx context.Context, actor core.ActorHandle, location core.Vector3, rotation core.Rotation3) error {
	path := c.actorPath(string(actor))
	err := c.call(ctx, path, "K2_SetActorLocation", setLocationParams{
		NewLocation: vectorParam{X: location.X, Y: location.Y, Z: location.Z},
		Sweep:       false,
		Teleport:    true,
	}, nil)
	if err != nil {
		return err
	}
	return c.call(ctx, path, "K2_SetActorRotation", setRotationParams{
		NewRotation:     rotatorParam{Pitch: rotation.Pitch, Yaw: rotation.Yaw, Roll: rotation.Roll},
		TeleportPhysics: true,
	}, nil)
}

// GetTransform reads an actor's current pose.
func (c *Client) GetTransform(ctx context.Context, actor core.ActorHandle) (core.Transform, error) {
	path := c.actorPath(string(actor))
	var loc vectorResult
	if err := c.call(ctx, path, "K2_GetActorLocation", nil, &loc); err != nil {
		return core.Transform{}, err
	}
	var rot rotatorResult
	if err := c.call(ctx, path, "K2_GetActorRotation", nil, &rot); err != nil {
		return core.Transform{}, err
	}
	return core.Transform{Location: loc.ReturnValue.vector(), Rotation: rot.ReturnValue.rotator()}, nil
}

// MarkerLocations queries the static mesh components of an actor and
// returns their world positions keyed by component name. The root mesh
// component is skipped and components that fail to answer are dropped;
// callers decide what an incomplete marker set means.
func (c *Client) MarkerLocations(ctx context.Context, actor core.ActorHandle) (map[string]core.Vector3, error) {
	var comps componentsResult
	err := c.call(ctx, c.actorPath(string(actor)), "GetComponentsByClass", componentsParams{ComponentClass: staticMeshClass}, &comps)
	if err != nil {
		return nil, err
	}

	markers := make(map[string]core.Vector3)
	for _, compPath := range comps.ReturnValue {
		name := componentName(compPath)
		if name == rootMeshComponent {
			continue
		}
		var loc vectorResult
		if err := c.call(ctx, compPath, "K2_GetComponentLocation", nil, &loc); err != nil {
			continue
		}
		markers[name] = loc.ReturnValue.vector()
	}
	return markers, nil
}

// Capture asks the capture actor to render the current scene to a file
// on the scene host side.
func (c *Client) Capture(ctx context.Context, path string, width, height int) error {
	var result boolResult
	err := c.call(ctx, c.actorPath(c.captureActor), "CaptureFrame", captureParams{
		OutputPath: path,
		Width:      width,
		Height:     height,
	}, &result)
	if err != nil {
		return err
	}
	if !result.ReturnValue {
		return fmt.Errorf("%w: %s", ErrCaptureFailed, path)
	}
	return nil
}

// Healthcheck verifies the scene host is listening. The endpoint
// rejects an empty call, but any HTTP response proves the process is
// up; only transport failures count as down.
func (c *Client) Healthcheck(ctx context.Context) error {
	payload, err := json.Marshal(remoteCall{Parameters: struct{}{}})
	if err != nil {
		return fmt.Errorf("failed to encode healthcheck: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.callURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scene host unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) call(ctx context.Context, objectPath, function string, params, out any) error {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(remoteCall{
		ObjectPath:   objectPath,
		FunctionName: function,
		Parameters:   params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s call: %w", function, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.callURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", function, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", function, err)
	}
	return nil
}

func (c *Client) actorPath(name string) string {
	return c.levelPath + ":PersistentLevel." + name
}

func componentName(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}
