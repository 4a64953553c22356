// Package manifest loads declarative zone manifests into the zone
// registry. A manifest is a JSON or YAML document of assets, each
// carrying zone definitions; loading is all-or-nothing, so a manifest
// either registers completely or not at all. Zone anchor coordinates
// are local centimeters, or geographic lon/lat resolved against the
// manifest origin.
package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/vantagecv/scenekit/v2/internal/geo"
	"github.com/vantagecv/scenekit/v2/internal/zone"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

var (
	ErrNoContent       = errors.New("manifest has neither assets nor zones")
	ErrDuplicateZoneID = errors.New("duplicate zone id")
	ErrMissingOrigin   = errors.New("anchor used but manifest declares no origin")
)

// Document is the top-level manifest structure. Either Assets or
// Zones is populated; when both are present Assets wins. AssetID
// names the implicit asset of the flat Zones form and defaults to
// "default".
type Document struct {
	AssetID string    `mapstructure:"asset_id" json:"asset_id,omitempty"`
	Origin  string    `mapstructure:"origin" json:"origin,omitempty"`
	Assets  []Asset   `mapstructure:"assets" json:"assets,omitempty"`
	Zones   []ZoneDef `mapstructure:"zones" json:"zones,omitempty"`
}

// Asset groups the zones belonging to one scene asset.
type Asset struct {
	AssetID string    `mapstructure:"asset_id" json:"asset_id"`
	Zones   []ZoneDef `mapstructure:"zones" json:"zones"`
}

// ZoneDef is one zone definition. Fields beyond the shared set apply
// only to the matching zone type and are ignored otherwise. An absent
// allowed_classes key admits every class; an absent max_vehicles key
// means unbounded for roads and slot-bounded for parking.
type ZoneDef struct {
	ZoneID         string    `mapstructure:"zone_id" json:"zone_id"`
	ZoneType       string    `mapstructure:"zone_type" json:"zone_type"`
	Bounds         BoundsDef `mapstructure:"bounds" json:"bounds"`
	AllowedClasses *[]string `mapstructure:"allowed_classes" json:"allowed_classes,omitempty"`
	MaxVehicles    *int      `mapstructure:"max_vehicles" json:"max_vehicles,omitempty"`
	Enabled        *bool     `mapstructure:"enabled" json:"enabled,omitempty"`

	Lanes     []LaneDef `mapstructure:"lanes" json:"lanes,omitempty"`
	Direction string    `mapstructure:"direction" json:"direction,omitempty"`

	Slots                []SlotDef `mapstructure:"slots" json:"slots,omitempty"`
	AllowRandomPlacement bool      `mapstructure:"allow_random_placement" json:"allow_random_placement,omitempty"`

	Reason string `mapstructure:"reason" json:"reason,omitempty"`
}

// BoundsDef describes a zone extent. Shape defaults to box. A box
// takes center+size+rotation, a polygon takes vertices plus a z
// range. Anchor replaces a box center (or translates polygon
// vertices) with a geographic "lon,lat[,elev]" point resolved against
// the manifest origin.
type BoundsDef struct {
	Shape    string       `mapstructure:"shape" json:"shape,omitempty"`
	Center   *VectorDef   `mapstructure:"center" json:"center,omitempty"`
	Size     *VectorDef   `mapstructure:"size" json:"size,omitempty"`
	Rotation *RotationDef `mapstructure:"rotation" json:"rotation,omitempty"`
	Anchor   string       `mapstructure:"anchor" json:"anchor,omitempty"`

	Vertices [][2]float64 `mapstructure:"vertices" json:"vertices,omitempty"`
	ZMin     float64      `mapstructure:"z_min" json:"z_min,omitempty"`
	ZMax     *float64     `mapstructure:"z_max" json:"z_max,omitempty"`
}

// LaneDef is one road lane. Width bounds lateral jitter; zero
// disables it. Capacity is the abstract space budget; zero means
// unbounded.
type LaneDef struct {
	YOffset  float64 `mapstructure:"y_offset" json:"y_offset"`
	Width    float64 `mapstructure:"width" json:"width,omitempty"`
	Capacity int     `mapstructure:"capacity" json:"capacity,omitempty"`
}

// SlotDef is one discrete parking slot.
type SlotDef struct {
	SlotID         string       `mapstructure:"slot_id" json:"slot_id"`
	Transform      TransformDef `mapstructure:"transform" json:"transform"`
	AllowedClasses *[]string    `mapstructure:"allowed_classes" json:"allowed_classes,omitempty"`
	State          string       `mapstructure:"state" json:"state,omitempty"`
}

// TransformDef is a position plus Euler rotation.
type TransformDef struct {
	Position VectorDef   `mapstructure:"position" json:"position"`
	Rotation RotationDef `mapstructure:"rotation" json:"rotation,omitempty"`
}

// VectorDef is a 3D point or extent in centimeters.
type VectorDef struct {
	X float64 `mapstructure:"x" json:"x"`
	Y float64 `mapstructure:"y" json:"y"`
	Z float64 `mapstructure:"z" json:"z"`
}

// RotationDef is an Euler rotation in degrees.
type RotationDef struct {
	Pitch float64 `mapstructure:"pitch" json:"pitch,omitempty"`
	Yaw   float64 `mapstructure:"yaw" json:"yaw,omitempty"`
	Roll  float64 `mapstructure:"roll" json:"roll,omitempty"`
}

// Loader parses manifests and registers their zones.
type Loader struct {
	logger *slog.Logger
}

// NewLoader builds a manifest loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadFile reads a manifest file and registers its zones. The format
// follows the file extension: .yaml/.yml parse as YAML, everything
// else as JSON. Returns the number of zones registered.
func (l *Loader) LoadFile(path string, reg *zone.Registry) (int, error) {
	if _, err := os.Stat(path); err != nil {
		l.logger.Error("Zone manifest not found",
			"path", path,
			"remedy", "create the manifest file or fix the configured path")
		return 0, fmt.Errorf("manifest %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	default:
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		l.logger.Error("Failed to parse zone manifest", "path", path, "error", err)
		return 0, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		l.logger.Error("Failed to parse zone manifest", "path", path, "error", err)
		return 0, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return l.LoadDocument(doc, path, reg)
}

// LoadDocument registers every zone of an already-parsed manifest.
// Any error leaves the registry exactly as it was.
func (l *Loader) LoadDocument(doc Document, source string, reg *zone.Registry) (int, error) {
	origin, err := parseOrigin(doc.Origin)
	if err != nil {
		return 0, fmt.Errorf("manifest %s: origin: %w", source, err)
	}

	type pending struct {
		assetID string
		def     ZoneDef
	}
	var defs []pending
	switch {
	case len(doc.Assets) > 0:
		for i, asset := range doc.Assets {
			if asset.AssetID == "" {
				return 0, fmt.Errorf("manifest %s: asset %d missing asset_id", source, i)
			}
			for _, def := range asset.Zones {
				defs = append(defs, pending{assetID: asset.AssetID, def: def})
			}
		}
	case len(doc.Zones) > 0:
		assetID := doc.AssetID
		if assetID == "" {
			assetID = "default"
		}
		for _, def := range doc.Zones {
			defs = append(defs, pending{assetID: assetID, def: def})
		}
	default:
		return 0, fmt.Errorf("manifest %s: %w", source, ErrNoContent)
	}

	zones := make([]zone.Zone, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, p := range defs {
		z, err := buildZone(p.def, p.assetID, origin)
		if err != nil {
			return 0, fmt.Errorf("manifest %s: %w", source, err)
		}
		if seen[z.Meta().ID] {
			return 0, fmt.Errorf("manifest %s: %w: %q", source, ErrDuplicateZoneID, z.Meta().ID)
		}
		seen[z.Meta().ID] = true
		zones = append(zones, z)
	}

	registered := make([]string, 0, len(zones))
	for _, z := range zones {
		if !reg.Register(z) {
			for _, id := range registered {
				reg.Unregister(id)
			}
			return 0, fmt.Errorf("manifest %s: %w: %q", source, ErrDuplicateZoneID, z.Meta().ID)
		}
		registered = append(registered, z.Meta().ID)
	}

	l.logger.Info("Zones loaded from manifest",
		"source", source,
		"zones_loaded", len(registered))
	return len(registered), nil
}

// anchorOrigin is the parsed manifest origin, absent when the
// manifest works in local coordinates only.
type anchorOrigin struct {
	lon, lat float64
	set      bool
}

func parseOrigin(s string) (anchorOrigin, error) {
	if s == "" {
		return anchorOrigin{}, nil
	}
	lon, lat, _, err := geo.AnchorFromString(s)
	if err != nil {
		return anchorOrigin{}, err
	}
	return anchorOrigin{lon: lon, lat: lat, set: true}, nil
}

func (o anchorOrigin) resolve(anchor string) (core.Vector3, error) {
	if !o.set {
		return core.Vector3{}, ErrMissingOrigin
	}
	lon, lat, elev, err := geo.AnchorFromString(anchor)
	if err != nil {
		return core.Vector3{}, err
	}
	p := geo.LocalFromLonLat(lon, lat, o.lon, o.lat)
	p.Z = elev
	return p, nil
}

func buildZone(def ZoneDef, assetID string, origin anchorOrigin) (zone.Zone, error) {
	if def.ZoneID == "" {
		return nil, fmt.Errorf("asset %s: zone missing zone_id", assetID)
	}
	zoneType, err := zone.ParseZoneType(def.ZoneType)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", def.ZoneID, err)
	}
	bounds, err := buildBounds(def.Bounds, origin)
	if err != nil {
		return nil, fmt.Errorf("zone %s: bounds: %w", def.ZoneID, err)
	}
	classes, err := buildClasses(def.AllowedClasses)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", def.ZoneID, err)
	}

	meta := zone.ZoneMeta{
		ID:             def.ZoneID,
		AssetID:        assetID,
		Bounds:         bounds,
		AllowedClasses: classes,
		Enabled:        def.Enabled == nil || *def.Enabled,
	}
	if def.MaxVehicles != nil {
		if *def.MaxVehicles < 0 {
			return nil, fmt.Errorf("zone %s: max_vehicles must not be negative", def.ZoneID)
		}
		meta.Capacity = *def.MaxVehicles
	}

	switch zoneType {
	case zone.TypeRoad:
		direction := zone.DirectionForward
		if def.Direction != "" {
			direction, err = zone.ParseLaneDirection(def.Direction)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", def.ZoneID, err)
			}
		}
		lanes := make([]zone.Lane, len(def.Lanes))
		for i, lane := range def.Lanes {
			if lane.Width < 0 || lane.Capacity < 0 {
				return nil, fmt.Errorf("zone %s: lane %d has negative width or capacity", def.ZoneID, i)
			}
			lanes[i] = zone.Lane{
				LateralOffset: lane.YOffset,
				Width:         lane.Width,
				Capacity:      lane.Capacity,
			}
		}
		return &zone.RoadZone{ZoneMeta: meta, Lanes: lanes, Direction: direction}, nil

	case zone.TypeParking:
		slots, err := buildSlots(def.Slots)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", def.ZoneID, err)
		}
		return &zone.ParkingZone{
			ZoneMeta:             meta,
			Slots:                slots,
			AllowRandomPlacement: def.AllowRandomPlacement,
		}, nil

	case zone.TypeExclusion:
		meta.AllowedClasses = nil
		meta.Capacity = 0
		return &zone.ExclusionZone{ZoneMeta: meta, Reason: def.Reason}, nil
	}
	return nil, fmt.Errorf("zone %s: %w: %q", def.ZoneID, zone.ErrInvalidZoneType, def.ZoneType)
}

func buildBounds(def BoundsDef, origin anchorOrigin) (zone.Bounds, error) {
	shape := strings.ToLower(strings.TrimSpace(def.Shape))
	if shape == "" {
		shape = "box"
	}

	switch shape {
	case "box":
		var center core.Vector3
		switch {
		case def.Anchor != "" && def.Center != nil:
			return nil, errors.New("box gives both center and anchor")
		case def.Anchor != "":
			p, err := origin.resolve(def.Anchor)
			if err != nil {
				return nil, err
			}
			center = p
		case def.Center != nil:
			center = def.Center.vector()
		}
		if def.Size == nil {
			return nil, errors.New("box missing size")
		}
		size := def.Size.vector()
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return nil, errors.New("box size components must be positive")
		}
		box := zone.Box{BoxCenter: center, Size: size}
		if def.Rotation != nil {
			box.Rotation = def.Rotation.rotation()
		}
		return box, nil

	case "polygon":
		if len(def.Vertices) < 3 {
			return nil, errors.New("polygon needs at least three vertices")
		}
		zmax := float64(zone.DefaultPolygonZMax)
		if def.ZMax != nil {
			zmax = *def.ZMax
		}
		if zmax <= def.ZMin {
			return nil, errors.New("polygon z_max must exceed z_min")
		}
		vertices := make([][2]float64, len(def.Vertices))
		copy(vertices, def.Vertices)
		if def.Anchor != "" {
			p, err := origin.resolve(def.Anchor)
			if err != nil {
				return nil, err
			}
			for i := range vertices {
				vertices[i][0] += p.X
				vertices[i][1] += p.Y
			}
		}
		return zone.NewPolygon(vertices, def.ZMin, zmax), nil
	}
	return nil, fmt.Errorf("unknown bounds shape %q", def.Shape)
}

func buildClasses(names *[]string) ([]core.VehicleClass, error) {
	if names == nil {
		return core.Classes(), nil
	}
	classes := make([]core.VehicleClass, 0, len(*names))
	for _, name := range *names {
		class := core.VehicleClass(strings.ToLower(strings.TrimSpace(name)))
		if !class.Valid() {
			return nil, fmt.Errorf("unknown vehicle class %q", name)
		}
		classes = append(classes, class)
	}
	return classes, nil
}

func buildSlots(defs []SlotDef) ([]*zone.ParkingSlot, error) {
	slots := make([]*zone.ParkingSlot, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.SlotID == "" {
			return nil, fmt.Errorf("slot %d missing slot_id", i)
		}
		if seen[def.SlotID] {
			return nil, fmt.Errorf("duplicate slot id %q", def.SlotID)
		}
		seen[def.SlotID] = true

		state := zone.SlotAvailable
		if def.State != "" {
			var err error
			state, err = zone.ParseSlotState(def.State)
			if err != nil {
				return nil, fmt.Errorf("slot %s: %w", def.SlotID, err)
			}
		}
		classes, err := buildClasses(def.AllowedClasses)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", def.SlotID, err)
		}
		slots = append(slots, &zone.ParkingSlot{
			ID: def.SlotID,
			Transform: core.Transform{
				Location: def.Transform.Position.vector(),
				Rotation: def.Transform.Rotation.rotation(),
			},
			AllowedClasses: classes,
			State:          state,
		})
	}
	return slots, nil
}

func (v *VectorDef) vector() core.Vector3 {
	return core.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func (r *RotationDef) rotation() core.Rotation3 {
	return core.Rotation3{Pitch: r.Pitch, Yaw: r.Yaw, Roll: r.Roll}
}
