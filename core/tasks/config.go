package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/grocerybot/core/model"
)

// DefaultPatrol is the patrol route through the store aisles.
var DefaultPatrol = []model.Point{
	{X: -5, Y: 5.65},
	{X: 13.1, Y: 5.65},
	{X: 13, Y: -5.6},
	{X: -5.15, Y: -5.65},
	{X: -4.8, Y: -1.9},
	{X: 13, Y: -1.9},
	{X: 13, Y: 2},
	{X: -5, Y: 2},
}

// ColorRange is an inclusive colour box.
type ColorRange struct {
	Lower model.Color `json:"lower" yaml:"lower"`
	Upper model.Color `json:"upper" yaml:"upper"`
}

// Contains reports whether c lies inside the range on every channel.
func (r ColorRange) Contains(c model.Color) bool {
	return c.R >= r.Lower.R && c.R <= r.Upper.R &&
		c.G >= r.Lower.G && c.G <= r.Upper.G &&
		c.B >= r.Lower.B && c.B <= r.Upper.B
}

// Filter selects detections by planar range, height and colour. An empty
// colour list accepts every colour.
type Filter struct {
	MinRange float64      `json:"min_range" yaml:"min_range"`
	MaxRange float64      `json:"max_range" yaml:"max_range"`
	MinZ     float64      `json:"min_z" yaml:"min_z"`
	MaxZ     float64      `json:"max_z" yaml:"max_z"`
	Colors   []ColorRange `json:"colors" yaml:"colors"`
}

// Match reports whether a detection at world position obj with colour c,
// seen from robot, passes the filter.
func (f Filter) Match(robot model.Point, obj model.Point3, c model.Color) bool {
	d := robot.Dist(obj.XY())
	if d < f.MinRange || d > f.MaxRange {
		return false
	}
	if obj.Z < f.MinZ || obj.Z > f.MaxZ {
		return false
	}
	if len(f.Colors) == 0 {
		return true
	}
	for _, r := range f.Colors {
		if r.Contains(c) {
			return true
		}
	}
	return false
}

// Config tunes the behaviour tree.
type Config struct {
	Patrol           []model.Point `json:"patrol" yaml:"patrol"`
	AisleWidth       float64       `json:"aisle_width" yaml:"aisle_width"`
	FaceTolerance    float64       `json:"face_tolerance" yaml:"face_tolerance"`
	FaceGain         float64       `json:"face_gain" yaml:"face_gain"`
	CreepSpeed       float64       `json:"creep_speed" yaml:"creep_speed"`
	ForwardTimeoutMS int           `json:"forward_timeout_ms" yaml:"forward_timeout_ms"`
	// Gates are the target distances at which the robot stops creeping
	// forward to realign, in decreasing order. The last one is the grab
	// distance.
	Gates []float64 `json:"gates" yaml:"gates"`
	Close Filter    `json:"close" yaml:"close"`
	Far   Filter    `json:"far" yaml:"far"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if len(c.Patrol) == 0 {
		c.Patrol = append([]model.Point(nil), DefaultPatrol...)
	}
	if c.AisleWidth == 0 {
		c.AisleWidth = 4
	}
	if c.FaceTolerance == 0 {
		c.FaceTolerance = 0.01
	}
	if c.FaceGain == 0 {
		c.FaceGain = 5
	}
	if c.CreepSpeed == 0 {
		c.CreepSpeed = 1
	}
	if c.ForwardTimeoutMS == 0 {
		c.ForwardTimeoutMS = 3000
	}
	if len(c.Gates) == 0 {
		c.Gates = []float64{1.3, 1.1, 0.9, 0.7}
	}
	if c.Close.MaxRange == 0 {
		c.Close = Filter{MaxRange: 2.5, MinZ: -1, MaxZ: 2, Colors: c.Close.Colors}
	}
	if c.Far.MaxRange == 0 {
		c.Far = Filter{MinRange: c.Close.MaxRange, MaxRange: 8, MinZ: -1, MaxZ: 2, Colors: c.Far.Colors}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Patrol) == 0 {
		return errors.New("patrol route is empty")
	}
	if c.AisleWidth <= 0 || c.FaceTolerance <= 0 || c.FaceGain <= 0 {
		return errors.New("aisle width and face tuning must be positive")
	}
	if c.ForwardTimeoutMS <= 0 {
		return errors.New("forward timeout must be positive")
	}
	for i, g := range c.Gates {
		if g <= 0 {
			return fmt.Errorf("gate %d must be positive", i)
		}
		if i > 0 && g >= c.Gates[i-1] {
			return fmt.Errorf("gates must decrease: %v", c.Gates)
		}
	}
	for name, f := range map[string]Filter{"close": c.Close, "far": c.Far} {
		if f.MaxRange <= f.MinRange {
			return fmt.Errorf("%s filter: max range %.2f not above min range %.2f", name, f.MaxRange, f.MinRange)
		}
	}
	return nil
}

// ForwardTimeout returns the drive forward timeout.
func (c Config) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutMS) * time.Millisecond
}
