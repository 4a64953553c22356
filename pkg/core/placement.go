// pkg/core/placement.go
package core

// ActorHandle is the scene host's opaque identifier for a pooled actor.
type ActorHandle string

// SpawnedVehicle is one placed vehicle instance for the current frame.
// Created by the spawner, consumed by the camera and annotation stages,
// released by the coordinator's cleanup.
type SpawnedVehicle struct {
	InstanceID string       `json:"instanceId"`
	Class      VehicleClass `json:"class"`
	Actor      ActorHandle  `json:"actor"`
	Transform  Transform    `json:"transform"`
	Dimensions Dimensions   `json:"dimensions"`
	Color      Color        `json:"color"`
	ZoneID     string       `json:"zoneId"`
	ZoneType   string       `json:"zoneType"`
	SlotID     string       `json:"slotId,omitempty"`
}
