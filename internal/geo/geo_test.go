package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAnchorFromString_ValidWithElevation(t *testing.T) {
	lon, lat, elev, err := AnchorFromString("100.5,200.25,50.0")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lon != 100.5 {
		t.Errorf("expected lon=100.5, got %f", lon)
	}
	if lat != 200.25 {
		t.Errorf("expected lat=200.25, got %f", lat)
	}
	if elev != 50.0 {
		t.Errorf("expected elev=50.0, got %f", elev)
	}
}

func TestAnchorFromString_ValidWithoutElevation(t *testing.T) {
	lon, lat, elev, err := AnchorFromString("10,-20")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lon != 10 {
		t.Errorf("expected lon=10, got %f", lon)
	}
	if lat != -20 {
		t.Errorf("expected lat=-20, got %f", lat)
	}
	if elev != 0 {
		t.Errorf("expected elev=0, got %f", elev)
	}
}

func TestAnchorFromString_InvalidTooFewComponents(t *testing.T) {
	_, _, _, err := AnchorFromString("100.5")

	if err == nil {
		t.Fatal("expected error for invalid coordinates")
	}
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestAnchorFromString_InvalidLongitude(t *testing.T) {
	_, _, _, err := AnchorFromString("abc,200.25")

	if err == nil {
		t.Fatal("expected error for invalid longitude")
	}
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestAnchorFromString_InvalidElevation(t *testing.T) {
	_, _, _, err := AnchorFromString("100.5,200.25,bogus")

	if err == nil {
		t.Fatal("expected error for invalid elevation")
	}
	if !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestLocalFromLonLat_OriginIsZero(t *testing.T) {
	local := LocalFromLonLat(12.5, 47.25, 12.5, 47.25)

	if !almost(local.X, 0) {
		t.Errorf("expected X=0 at origin, got %f", local.X)
	}
	if !almost(local.Y, 0) {
		t.Errorf("expected Y=0 at origin, got %f", local.Y)
	}
}

func TestLocalFromLonLat_EastOfOriginIsPositiveX(t *testing.T) {
	local := LocalFromLonLat(10.001, 50, 10.0, 50)

	if local.X <= 0 {
		t.Errorf("expected positive X east of origin, got %f", local.X)
	}
	if !almost(local.Y, 0) {
		t.Errorf("expected Y=0 on the same parallel, got %f", local.Y)
	}
}

func TestLocalFromLonLat_NorthOfOriginIsPositiveY(t *testing.T) {
	local := LocalFromLonLat(10, 50.001, 10, 50.0)

	if local.Y <= 0 {
		t.Errorf("expected positive Y north of origin, got %f", local.Y)
	}
}

func TestRotateYaw_QuarterTurn(t *testing.T) {
	out := RotateYaw(core.Vector3{X: 100}, 90)

	if !almost(out.X, 0) {
		t.Errorf("expected X=0 after quarter turn, got %f", out.X)
	}
	if !almost(out.Y, 100) {
		t.Errorf("expected Y=100 after quarter turn, got %f", out.Y)
	}
}

func TestRotateYaw_PreservesZ(t *testing.T) {
	out := RotateYaw(core.Vector3{X: 10, Y: 20, Z: 30}, 45)

	if out.Z != 30 {
		t.Errorf("expected Z unchanged, got %f", out.Z)
	}
}

func TestWorldFromLocal_TranslatesAndRotates(t *testing.T) {
	pose := core.Transform{
		Location: core.Vector3{X: 1000, Y: 2000},
		Rotation: core.Rotation3{Yaw: 180},
	}
	out := WorldFromLocal(core.Vector3{X: 100}, pose)

	if !almost(out.X, 900) {
		t.Errorf("expected X=900, got %f", out.X)
	}
	if !almost(out.Y, 2000) {
		t.Errorf("expected Y=2000, got %f", out.Y)
	}
}

func TestLocalFromWorld_InvertsWorldFromLocal(t *testing.T) {
	pose := core.Transform{
		Location: core.Vector3{X: -500, Y: 250},
		Rotation: core.Rotation3{Yaw: 37},
	}
	offset := core.Vector3{X: 123, Y: -45, Z: 6}

	back := LocalFromWorld(WorldFromLocal(offset, pose), pose)

	if !almost(back.X, offset.X) || !almost(back.Y, offset.Y) || !almost(back.Z, offset.Z) {
		t.Errorf("expected round trip to return %+v, got %+v", offset, back)
	}
}
