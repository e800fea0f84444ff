package model

// Color is a normalised RGB triple reported by the camera recognition.
type Color struct {
	R float64 `json:"r" cbor:"r"`
	G float64 `json:"g" cbor:"g"`
	B float64 `json:"b" cbor:"b"`
}

// Detection is one recognised object in the camera frame. Position is
// relative to the camera: X forward, Y left, Z up.
type Detection struct {
	Position Point3 `json:"position" cbor:"position"`
	Color    Color  `json:"color" cbor:"color"`
}

// SameObjectRadius is the distance under which two sightings are treated as
// the same object.
const SameObjectRadius = 0.4

// Arm presets understood by the arm driver.
const (
	ArmUpper      = "upper"
	ArmLower      = "lower"
	ArmPreBasket  = "pre-basket"
	ArmBasket     = "basket"
	ArmPostBasket = "post-basket"
	ArmStandby    = "standby"
)
