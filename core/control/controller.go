// Package control turns planned waypoints into wheel commands for the
// differential drive base.
package control

import (
	"fmt"
	"math"

	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/model"
)

// ID is the bus identity of the waypoint controller wheels.
const ID = "waypoint_controller"

// Config tunes the waypoint controller.
type Config struct {
	// PositionThreshold is the distance at which a waypoint counts as reached.
	PositionThreshold float64 `json:"position_threshold"`
	DistanceGain      float64 `json:"distance_gain"`
	// DistanceCap bounds the distance term of the forward command.
	DistanceCap   float64 `json:"distance_cap"`
	BearingGain   float64 `json:"bearing_gain"`
	AxleLength    float64 `json:"axle_length"`
	MaxWheelSpeed float64 `json:"max_wheel_speed"`
	// EaseDistance is the distance over which the output ramps down.
	EaseDistance float64 `json:"ease_distance"`
}

// SetDefaults fills unset fields with the values of the store robot.
func (c *Config) SetDefaults() {
	if c.PositionThreshold == 0 {
		c.PositionThreshold = 0.3
	}
	if c.DistanceGain == 0 {
		c.DistanceGain = 1
	}
	if c.DistanceCap == 0 {
		c.DistanceCap = 1
	}
	if c.BearingGain == 0 {
		c.BearingGain = 10
	}
	if c.AxleLength == 0 {
		c.AxleLength = 0.4044
	}
	if c.MaxWheelSpeed == 0 {
		c.MaxWheelSpeed = 7.0
	}
	if c.EaseDistance == 0 {
		c.EaseDistance = 1
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PositionThreshold <= 0 || c.AxleLength <= 0 || c.MaxWheelSpeed <= 0 || c.EaseDistance <= 0 {
		return fmt.Errorf("controller thresholds and lengths must be positive")
	}
	return nil
}

// PathPlanner plans world routes. Waypoints exclude the start position.
type PathPlanner interface {
	PlanPath(from, to model.Point) ([]model.Point, error)
}

// PoseSource provides the latest robot pose.
type PoseSource interface {
	Pose() model.Pose
}

// Controller follows a queue of waypoints towards a target.
type Controller struct {
	cfg     Config
	planner PathPlanner
	pose    PoseSource
	wheels  *Wheels
	log     logger.Logger

	target *model.Point
	queue  []model.Point
	failed error
}

// NewController builds a controller publishing through wheels.
func NewController(cfg Config, planner PathPlanner, pose PoseSource, wheels *Wheels, log logger.Logger) (*Controller, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, planner: planner, pose: pose, wheels: wheels, log: logger.OrNop(log)}, nil
}

// SetTarget plans a route to p, or clears the current target when p is nil.
// Asking again for the current target keeps the route in progress. When
// planning fails the queue stays empty and Failed returns the error.
func (c *Controller) SetTarget(p *model.Point) error {
	if p == nil {
		c.target = nil
		c.queue = nil
		c.failed = nil
		return nil
	}
	if c.target != nil && *c.target == *p && len(c.queue) > 0 {
		return nil
	}
	goal := *p
	c.target = &goal
	c.queue = nil
	from := c.pose.Pose().Position()
	wps, err := c.planner.PlanPath(from, goal)
	if err != nil {
		c.failed = err
		c.log.Warnf("cannot reach %v from %v: %v", goal, from, err)
		return err
	}
	c.failed = nil
	c.queue = wps
	c.log.Infof("target %v set with %d waypoints", goal, len(wps))
	return nil
}

// Target returns the current target.
func (c *Controller) Target() (model.Point, bool) {
	if c.target == nil {
		return model.Point{}, false
	}
	return *c.target, true
}

// Failed returns the planning error of the current target, if any.
func (c *Controller) Failed() error { return c.failed }

// Waypoints returns a copy of the pending waypoints.
func (c *Controller) Waypoints() []model.Point {
	return append([]model.Point(nil), c.queue...)
}

// Remaining returns the number of pending waypoints.
func (c *Controller) Remaining() int { return len(c.queue) }

// TargetReached is true with no target or no pending waypoint, or when the
// robot is within the position threshold of the next waypoint.
func (c *Controller) TargetReached() bool {
	if c.target == nil || len(c.queue) == 0 {
		return true
	}
	return c.pose.Pose().Position().Dist(c.queue[0]) < c.cfg.PositionThreshold
}

// Update drives towards the head waypoint. It pops the waypoint once the
// robot is within the threshold and stops the wheels when the queue empties.
func (c *Controller) Update() error {
	if c.target == nil || len(c.queue) == 0 {
		return nil
	}
	pose := c.pose.Pose()
	head := c.queue[0]
	rho := pose.Position().Dist(head)
	if rho < c.cfg.PositionThreshold {
		c.queue = c.queue[1:]
		if len(c.queue) == 0 {
			c.log.Debugf("last waypoint %v reached", head)
			return c.wheels.Stop()
		}
		return nil
	}
	alpha := WrapAngle(pose.BearingTo(head) - pose.Theta)
	left, right := c.Command(rho, alpha)
	return c.wheels.Set(left, right)
}

// Command converts a distance and bearing error into wheel speeds.
func (c *Controller) Command(rho, alpha float64) (left, right float64) {
	dx := c.cfg.DistanceGain * math.Min(rho, c.cfg.DistanceCap)
	turn := c.cfg.BearingGain * alpha * c.cfg.AxleLength / 2
	left, right = dx-turn, dx+turn
	if m := math.Max(math.Abs(left), math.Abs(right)); m > 1 {
		left, right = left/m, right/m
	}
	scale := c.cfg.MaxWheelSpeed * EaseOutQuad(rho/c.cfg.EaseDistance)
	return left * scale, right * scale
}

// Wheels returns the wheels the controller publishes through.
func (c *Controller) Wheels() *Wheels { return c.wheels }

// Stop publishes zero wheel speeds without touching the target.
func (c *Controller) Stop() error { return c.wheels.Stop() }
