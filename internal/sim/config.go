package sim

import (
	"fmt"
	"math"

	"github.com/kilianp07/grocerybot/core/model"
)

// Object is an item placed in the simulated world.
type Object struct {
	Position model.Point3 `json:"position"`
	Color    model.Color  `json:"color"`
}

// Config holds parameters for the simulator. Distances are in metres and
// angles in radians.
type Config struct {
	Enabled bool       `json:"enabled"`
	Start   model.Pose `json:"start"`
	// WheelRadius and Track describe the differential drive.
	WheelRadius float64 `json:"wheel_radius"`
	Track       float64 `json:"track"`
	// FieldOfView is the horizontal camera aperture.
	FieldOfView float64 `json:"field_of_view"`
	CameraRange float64 `json:"camera_range"`
	// LidarBeams spread over a full turn; zero disables the lidar.
	LidarBeams int     `json:"lidar_beams"`
	LidarRange float64 `json:"lidar_range"`
	// GraspRange is the planar distance under which closing the gripper
	// picks up the nearest object.
	GraspRange float64 `json:"grasp_range"`
	// GripperSpeed is the gripper travel per second, from 0 closed to 1
	// open. A commanded state only takes effect once the travel completes.
	GripperSpeed float64 `json:"gripper_speed"`
	// GripperStall is the number of steps the gripper motor stays stalled
	// after a new command before it starts moving.
	GripperStall int      `json:"gripper_stall"`
	Objects      []Object `json:"objects"`
}

// DefaultObjects is a small shelf layout for demos.
var DefaultObjects = []Object{
	{Position: model.Point3{X: 4, Y: -4, Z: 0.1}, Color: model.Color{R: 0.1, G: 0.8, B: 0.1}},
	{Position: model.Point3{X: -2, Y: 4, Z: -0.2}, Color: model.Color{R: 0.8, G: 0.8, B: 0.1}},
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.WheelRadius == 0 {
		c.WheelRadius = 0.0985
	}
	if c.Track == 0 {
		c.Track = 0.4044
	}
	if c.FieldOfView == 0 {
		c.FieldOfView = 1.0
	}
	if c.CameraRange == 0 {
		c.CameraRange = 8
	}
	if c.LidarRange == 0 {
		c.LidarRange = 5
	}
	if c.GraspRange == 0 {
		c.GraspRange = 1
	}
	if c.GripperSpeed == 0 {
		c.GripperSpeed = 4
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WheelRadius <= 0 || c.Track <= 0 {
		return fmt.Errorf("sim: wheel radius and track must be positive")
	}
	if c.FieldOfView <= 0 || c.FieldOfView > 2*math.Pi {
		return fmt.Errorf("sim: field of view must be in (0, 2π]")
	}
	if c.LidarBeams < 0 {
		return fmt.Errorf("sim: lidar beams must not be negative")
	}
	if c.GripperSpeed < 0 || c.GripperStall < 0 {
		return fmt.Errorf("sim: gripper speed and stall must not be negative")
	}
	return nil
}
