// pkg/core/vehicle.go
package core

import (
	"fmt"
	"strings"
)

// VehicleClass identifies one of the fixed vehicle categories.
type VehicleClass string

const (
	ClassCar        VehicleClass = "car"
	ClassTruck      VehicleClass = "truck"
	ClassBus        VehicleClass = "bus"
	ClassMotorcycle VehicleClass = "motorcycle"
	ClassBicycle    VehicleClass = "bicycle"
)

// Classes returns every vehicle class in stable category order.
// Dataset category ids are this slice's index + 1.
func Classes() []VehicleClass {
	return []VehicleClass{ClassCar, ClassTruck, ClassBus, ClassMotorcycle, ClassBicycle}
}

// Valid reports whether c is one of the known classes.
func (c VehicleClass) Valid() bool {
	switch c {
	case ClassCar, ClassTruck, ClassBus, ClassMotorcycle, ClassBicycle:
		return true
	}
	return false
}

// TwoWheeled reports whether c needs side boundary markers for footprint tests.
func (c VehicleClass) TwoWheeled() bool {
	return c == ClassMotorcycle || c == ClassBicycle
}

// ParseVehicleClass parses a class name case-insensitively. Unknown names are an error.
func ParseVehicleClass(s string) (VehicleClass, error) {
	c := VehicleClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown vehicle class %q", s)
	}
	return c, nil
}

// Dimensions is a vehicle's bounding box in centimeters.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultDimensions returns the class-default bounding box.
func DefaultDimensions(c VehicleClass) Dimensions {
	switch c {
	case ClassCar:
		return Dimensions{Length: 450, Width: 180, Height: 150}
	case ClassTruck:
		return Dimensions{Length: 600, Width: 220, Height: 250}
	case ClassBus:
		return Dimensions{Length: 1200, Width: 250, Height: 350}
	case ClassMotorcycle:
		return Dimensions{Length: 220, Width: 80, Height: 120}
	case ClassBicycle:
		return Dimensions{Length: 180, Width: 60, Height: 110}
	}
	return Dimensions{}
}

// Color is an RGB paint color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Palette returns the fixed paint palette vehicles are sampled from.
func Palette() []Color {
	return []Color{
		{255, 255, 255}, // white
		{0, 0, 0},       // black
		{128, 128, 128}, // gray
		{192, 192, 192}, // silver
		{255, 0, 0},     // red
		{0, 0, 255},     // blue
		{0, 128, 0},     // green
		{255, 255, 0},   // yellow
	}
}
