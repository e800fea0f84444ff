package model

import (
	"fmt"
	"math"
)

// Point is a planar position in world coordinates (metres).
type Point struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

func (p Point) String() string { return fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y) }

// Point3 is a world position with height, as produced by object detection.
type Point3 struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
}

// XY drops the height component.
func (p Point3) XY() Point { return Point{X: p.X, Y: p.Y} }

// Pose is the robot position and heading. Theta is in radians, counter
// clockwise from the world x axis.
type Pose struct {
	X     float64 `json:"x" cbor:"x"`
	Y     float64 `json:"y" cbor:"y"`
	Theta float64 `json:"theta" cbor:"theta"`
}

// Position returns the planar part of the pose.
func (p Pose) Position() Point { return Point{X: p.X, Y: p.Y} }

// BearingTo returns the absolute bearing from the pose to q.
func (p Pose) BearingTo(q Point) float64 {
	return math.Atan2(q.Y-p.Y, q.X-p.X)
}
