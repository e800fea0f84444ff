package planner

import "fmt"

// Config holds the RRT parameters. Distances are in grid cells.
type Config struct {
	// Iterations is the sampling budget K.
	Iterations int `json:"iterations"`
	// StepSize is the maximum edge length.
	StepSize float64 `json:"step_size"`
	// GoalBias is the probability of sampling the goal itself.
	GoalBias float64 `json:"goal_bias"`
	// GoalTolerance is the distance under which a node counts as the goal.
	GoalTolerance float64 `json:"goal_tolerance"`
	// SteerPoints is the number of points checked along each new edge.
	SteerPoints int `json:"steer_points"`
	// SampleAttempts bounds the rejection sampling of a free point.
	SampleAttempts int `json:"sample_attempts"`
	// Seed of the random source. Zero seeds from the clock.
	Seed int64 `json:"seed"`
	// Smooth enables line of sight shortcutting of the raw tree path.
	Smooth *bool `json:"smooth"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Iterations == 0 {
		c.Iterations = 1000
	}
	if c.StepSize == 0 {
		c.StepSize = 10
	}
	if c.GoalBias == 0 {
		c.GoalBias = 0.05
	}
	if c.GoalTolerance == 0 {
		c.GoalTolerance = 1e-5
	}
	if c.SteerPoints == 0 {
		c.SteerPoints = 10
	}
	if c.SampleAttempts == 0 {
		c.SampleAttempts = 100_000
	}
	if c.Smooth == nil {
		on := true
		c.Smooth = &on
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive")
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive")
	}
	if c.GoalBias < 0 || c.GoalBias > 1 {
		return fmt.Errorf("goal_bias must be in [0, 1]")
	}
	if c.SteerPoints < 2 {
		return fmt.Errorf("steer_points must be at least 2")
	}
	return nil
}
