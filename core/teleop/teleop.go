// Package teleop drives the robot from operator key presses. Driving keys
// only act in manual mode; mode, gripper, arm and map keys work in both
// modes.
package teleop

import (
	"time"

	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/mapping"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ID is the bus identity of the teleop service.
const ID = "teleop"

// Keys published on /teleop/key.
const (
	KeyLeft      = "left"
	KeyRight     = "right"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyStop      = "stop"
	KeyPrecision = "precision"
	KeyAuto      = "auto"
	KeyGripper   = "gripper"
	KeySaveMap   = "save"
	KeyLoadMap   = "load"
)

// armKeys maps the number keys to arm presets.
var armKeys = map[string]string{
	"1": model.ArmUpper,
	"2": model.ArmLower,
	"3": model.ArmPreBasket,
	"4": model.ArmBasket,
	"5": model.ArmPostBasket,
}

const (
	// Decay slows the wheels down on ticks without a driving key.
	Decay = 0.75
	// PrecisionScale scales driving speed in precision mode.
	PrecisionScale = 0.1
	// Cooldown debounces toggle keys.
	Cooldown = 100 * time.Millisecond
)

// Config tunes manual driving.
type Config struct {
	MaxSpeed float64 `json:"max_speed"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.MaxSpeed == 0 {
		c.MaxSpeed = 7
	}
}

// Teleop converts keys into commands once per tick.
type Teleop struct {
	cfg     Config
	wheels  *control.Wheels
	auto    *eventbus.Publisher[bool]
	gripper *eventbus.Publisher[bool]
	arm     *eventbus.Publisher[string]
	mapCmd  *eventbus.Publisher[string]
	log     logger.Logger

	autonomous bool
	gripOpen   bool
	precision  bool
	cooldown   time.Duration
	pending    string
	left       float64
	right      float64
}

// New registers the teleop publishers and subscriptions.
func New(b *eventbus.Bus, cfg Config, sink coremetrics.MetricsSink, log logger.Logger) (*Teleop, error) {
	cfg.SetDefaults()
	t := &Teleop{cfg: cfg, log: logger.OrNop(log)}
	var err error
	if t.wheels, err = control.NewWheels(b, ID, sink); err != nil {
		return nil, err
	}
	if t.auto, err = eventbus.NewPublisher[bool](b, model.TopicAuto, ID); err != nil {
		return nil, err
	}
	if t.gripper, err = eventbus.NewPublisher[bool](b, model.TopicGripper, ID); err != nil {
		return nil, err
	}
	if t.arm, err = eventbus.NewPublisher[string](b, model.TopicArm, ID); err != nil {
		return nil, err
	}
	if t.mapCmd, err = eventbus.NewPublisher[string](b, model.TopicMap, ID); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicAuto, ID, func(on bool) { t.autonomous = on }); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicGripper, ID, func(open bool) { t.gripOpen = open }); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicTeleopKey, ID, func(k string) { t.pending = k }); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicTick, ID, func(ms int) {
		t.Update(time.Duration(ms) * time.Millisecond)
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Update consumes the key pressed since the last tick.
func (t *Teleop) Update(delta time.Duration) {
	t.cooldown = max(0, t.cooldown-delta)
	key := t.pending
	t.pending = ""

	if !t.autonomous {
		t.drive(key)
	}
	if err := t.command(key); err != nil {
		t.log.Warnf("key %q: %v", key, err)
	}
}

func (t *Teleop) drive(key string) {
	speed := t.cfg.MaxSpeed
	if t.precision {
		speed *= PrecisionScale
	}
	switch key {
	case KeyLeft:
		t.left, t.right = -speed, speed
	case KeyRight:
		t.left, t.right = speed, -speed
	case KeyUp:
		t.left, t.right = speed, speed
	case KeyDown:
		t.left, t.right = -speed, -speed
	case KeyStop:
		t.left, t.right = 0, 0
	default:
		t.left *= Decay
		t.right *= Decay
	}
	if err := t.wheels.Set(t.left, t.right); err != nil {
		t.log.Warnf("wheel command: %v", err)
	}
}

func (t *Teleop) command(key string) error {
	if preset, ok := armKeys[key]; ok {
		return t.arm.Publish(preset)
	}
	switch key {
	case KeySaveMap:
		return t.mapCmd.Publish(mapping.CmdSave)
	case KeyLoadMap:
		return t.mapCmd.Publish(mapping.CmdLoad)
	case KeyAuto:
		if !t.debounce() {
			return nil
		}
		return t.auto.Publish(!t.autonomous)
	case KeyGripper:
		if !t.debounce() {
			return nil
		}
		return t.gripper.Publish(!t.gripOpen)
	case KeyPrecision:
		if !t.debounce() {
			return nil
		}
		t.precision = !t.precision
		t.log.Infof("precision mode set to %t", t.precision)
	}
	return nil
}

func (t *Teleop) debounce() bool {
	if t.cooldown > 0 {
		t.log.Debugf("toggle cooldown not finished")
		return false
	}
	t.cooldown = Cooldown
	return true
}

// Precision reports whether precision mode is on.
func (t *Teleop) Precision() bool { return t.precision }

// Speeds returns the last manual wheel command.
func (t *Teleop) Speeds() (left, right float64) { return t.left, t.right }
