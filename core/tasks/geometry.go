package tasks

import (
	"math"

	"github.com/kilianp07/grocerybot/core/model"
)

// CameraOffset is the distance of the camera ahead of the robot centre.
const CameraOffset = 0.08

// ObjectToWorld converts a camera frame position into world coordinates.
func ObjectToWorld(pose model.Pose, obj model.Point3) model.Point3 {
	sin, cos := math.Sincos(pose.Theta)
	camX := cos*CameraOffset + pose.X
	camY := sin*CameraOffset + pose.Y
	return model.Point3{
		X: cos*obj.X - sin*obj.Y + camX,
		Y: sin*obj.X + cos*obj.Y + camY,
		Z: obj.Z,
	}
}

// InFrontOf returns the point half an aisle away from obj, on the robot side
// of the shelf. Targets are never seen from behind their shelf.
func InFrontOf(obj model.Point3, robot model.Point, aisleWidth float64) model.Point {
	y := obj.Y - aisleWidth/2
	if obj.Y < robot.Y {
		y = obj.Y + aisleWidth/2
	}
	return model.Point{X: obj.X, Y: y}
}
