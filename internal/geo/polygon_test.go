package geo

import "testing"

func TestRing_TooFewVertices(t *testing.T) {
	_, err := Ring([][2]float64{{0, 0}, {10, 0}})

	if err == nil {
		t.Fatal("expected error for 2 vertices")
	}
}

func TestRing_RejectsSelfIntersection(t *testing.T) {
	// Bowtie: the edges cross, so no valid polygon exists.
	_, err := Ring([][2]float64{{0, 0}, {10, 10}, {10, 0}, {0, 10}})

	if err == nil {
		t.Fatal("expected error for self-intersecting ring")
	}
}

func TestRing_ClosesOpenRing(t *testing.T) {
	poly, err := Ring([][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ContainsXY(poly, 5, 5) {
		t.Error("expected interior point to be contained")
	}
}

func TestContainsXY_InsideAndOutside(t *testing.T) {
	poly, err := Ring([][2]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ContainsXY(poly, 50, 50) {
		t.Error("expected (50,50) inside")
	}
	if ContainsXY(poly, 150, 50) {
		t.Error("expected (150,50) outside")
	}
	if ContainsXY(poly, -1, -1) {
		t.Error("expected (-1,-1) outside")
	}
}

func TestContainsXY_ConcavePolygon(t *testing.T) {
	// L-shape: the notch at the upper right is outside.
	poly, err := Ring([][2]float64{{0, 0}, {100, 0}, {100, 50}, {50, 50}, {50, 100}, {0, 100}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ContainsXY(poly, 25, 75) {
		t.Error("expected (25,75) inside the L")
	}
	if ContainsXY(poly, 75, 75) {
		t.Error("expected (75,75) in the notch to be outside")
	}
}
