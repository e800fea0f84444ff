package tasks

import (
	"fmt"
	"time"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ActuatorID is the bus identity of the leaf publishers.
const ActuatorID = "tasks"

// Actuators groups the publishers used by the leaves.
type Actuators struct {
	Wheels   *control.Wheels
	Arm      *eventbus.Publisher[string]
	Gripper  *eventbus.Publisher[bool]
	Detected *eventbus.Publisher[model.Point3]
}

// NewActuators registers the leaf publishers on b.
func NewActuators(b *eventbus.Bus, sink coremetrics.MetricsSink) (*Actuators, error) {
	wheels, err := control.NewWheels(b, ActuatorID, sink)
	if err != nil {
		return nil, err
	}
	arm, err := eventbus.NewPublisher[string](b, model.TopicArm, ActuatorID)
	if err != nil {
		return nil, err
	}
	gripper, err := eventbus.NewPublisher[bool](b, model.TopicGripper, ActuatorID)
	if err != nil {
		return nil, err
	}
	detected, err := eventbus.NewPublisher[model.Point3](b, model.TopicDetectObject, ActuatorID)
	if err != nil {
		return nil, err
	}
	return &Actuators{Wheels: wheels, Arm: arm, Gripper: gripper, Detected: detected}, nil
}

// Deps are the collaborators of the tree.
type Deps struct {
	World      *World
	Controller *control.Controller
	Actuators  *Actuators
	Log        logger.Logger
}

// Tree is the assembled behaviour tree.
type Tree struct {
	Root   *bt.Node
	Patrol *Patrol
}

// BuildTree assembles the root selector.
func BuildTree(cfg Config, d Deps) (*Tree, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tasks config: %w", err)
	}
	if d.World == nil || d.Controller == nil || d.Actuators == nil {
		return nil, fmt.Errorf("tasks: world, controller and actuators are required")
	}
	patrol, err := NewPatrol(cfg.Patrol)
	if err != nil {
		return nil, err
	}
	b := &builder{cfg: cfg, d: d, log: logger.OrNop(d.Log)}
	root := bt.NewSelector("root", b.acquire(), b.approach(), b.patrol(patrol))
	return &Tree{Root: root, Patrol: patrol}, nil
}

type builder struct {
	cfg Config
	d   Deps
	log logger.Logger
}

func (b *builder) target() (model.Point, bool) {
	t, ok := b.d.World.Target()
	return t.XY(), ok
}

func (b *builder) face() *bt.Node {
	return FaceTowards("face target", b.target, b.d.World, b.d.Actuators.Wheels, b.cfg.FaceTolerance, b.cfg.FaceGain, b.log)
}

func (b *builder) forward(speed float64, cond func() bool) *bt.Node {
	name := fmt.Sprintf("forward %.1f", speed)
	return DriveForwards(name, speed, b.cfg.ForwardTimeout(), cond, b.d.World, b.d.Actuators.Wheels, b.log)
}

func (b *builder) wait(ms int) *bt.Node {
	return Wait(time.Duration(ms)*time.Millisecond, b.d.World)
}

func (b *builder) arm(preset string) *bt.Node {
	return SetArm(preset, b.d.World, b.d.Actuators.Arm)
}

func (b *builder) gripper(open bool) *bt.Node {
	return SetGripper(open, b.d.Actuators.Gripper)
}

// acquire grabs a close target: align, open the gripper, creep in with a
// realignment at every gate, grab, back away and stow into the basket.
func (b *builder) acquire() *bt.Node {
	speed := b.cfg.CreepSpeed
	steps := []*bt.Node{
		FindTarget("find close target", b.cfg.Close, b.d.World, b.d.Actuators.Detected, b.log),
		b.face(),
		b.forward(speed, nil),
		b.wait(1000),
		b.face(),
		b.wait(1000),
		b.arm(""),
		b.gripper(true),
		b.wait(10000),
	}
	for i, gate := range b.cfg.Gates {
		steps = append(steps, b.forward(speed, func() bool { return b.d.World.TargetDistance() < gate }))
		if i < len(b.cfg.Gates)-1 {
			steps = append(steps, b.face())
		}
	}
	steps = append(steps,
		b.forward(0, nil),
		b.gripper(false),
		b.wait(1000),
		b.forward(-speed, nil),
		b.wait(10000),
		b.forward(0, nil),
		b.arm(model.ArmPreBasket),
		b.wait(5000),
		b.arm(model.ArmBasket),
		b.wait(5000),
		b.arm(model.ArmPostBasket),
		b.wait(3000),
		b.gripper(true),
		b.wait(5000),
		b.arm(model.ArmStandby),
		b.wait(5000),
	)
	return bt.NewSequence("acquire", steps...)
}

// approach drives in front of a target seen further away.
func (b *builder) approach() *bt.Node {
	inFront := func() (model.Point, bool) {
		t, ok := b.d.World.Target()
		if !ok {
			return model.Point{}, false
		}
		return InFrontOf(t, b.d.World.Pose().Position(), b.cfg.AisleWidth), true
	}
	abandon := func(model.Point, error) {
		if t, ok := b.d.World.Target(); ok {
			b.log.Warnf("abandoning target %v", t.XY())
			b.d.World.Abandon(t.XY())
		}
	}
	return bt.NewSequence("approach",
		FindTarget("find far target", b.cfg.Far, b.d.World, b.d.Actuators.Detected, b.log),
		DriveTo("drive in front of target", inFront, b.d.Controller, b.log, abandon),
		b.face(),
	)
}

func (b *builder) patrol(p *Patrol) *bt.Node {
	skip := func(pt model.Point, _ error) {
		b.log.Warnf("skipping unreachable patrol point %v", pt)
		p.Advance()
	}
	return bt.NewSequence("patrol",
		DriveTo("drive to patrol point", p.Goal(), b.d.Controller, b.log, skip),
		AdvancePatrol(p),
	)
}
