package tasks

import (
	"errors"
	"math"
	"time"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ErrNoGoal is reported when a goal function has nothing to offer.
var ErrNoGoal = errors.New("no goal available")

// Goal resolves the point a leaf works towards.
type Goal func() (model.Point, bool)

// Fixed returns a Goal that always yields p.
func Fixed(p model.Point) Goal {
	return func() (model.Point, bool) { return p, true }
}

type driveTo struct {
	goal   Goal
	ctrl   *control.Controller
	log    logger.Logger
	onFail func(model.Point, error)
	target model.Point
	err    error
	mark   uint64
}

// DriveTo plans a route to the goal when the node starts and follows it.
// The node fails when planning fails and succeeds once the last waypoint is
// reached. onFail, when set, is called with the goal and planning error.
func DriveTo(name string, goal Goal, ctrl *control.Controller, log logger.Logger, onFail func(model.Point, error)) *bt.Node {
	return bt.NewNode(name, &driveTo{goal: goal, ctrl: ctrl, log: logger.OrNop(log), onFail: onFail})
}

func (d *driveTo) Initialise() {
	d.err = nil
	p, ok := d.goal()
	if !ok {
		d.err = ErrNoGoal
		return
	}
	d.target = p
	d.err = d.ctrl.SetTarget(&p)
}

func (d *driveTo) Update() bt.Status {
	if d.err == nil {
		// another leaf may have retargeted or cleared the shared controller
		if t, ok := d.ctrl.Target(); !ok || t != d.target {
			d.log.Debugf("replanning to %v", d.target)
			d.err = d.ctrl.SetTarget(&d.target)
		}
	}
	if d.err == nil {
		d.err = d.ctrl.Failed()
	}
	if d.err != nil {
		d.log.Warnf("drive to %v failed: %v", d.target, d.err)
		if d.onFail != nil && !errors.Is(d.err, ErrNoGoal) {
			d.onFail(d.target, d.err)
		}
		return bt.Failure
	}
	if err := d.ctrl.Update(); err != nil {
		d.log.Warnf("wheel command: %v", err)
	}
	d.mark = d.ctrl.Wheels().Writes()
	if d.ctrl.Remaining() <= 1 && d.ctrl.TargetReached() {
		return bt.Success
	}
	return bt.Running
}

// Terminate releases the controller unless another leaf has already taken it
// over with its own target. The wheels are only stopped while the last
// command on them is still this leaf's.
func (d *driveTo) Terminate(bt.Status) {
	if t, ok := d.ctrl.Target(); ok && t != d.target {
		return
	}
	_ = d.ctrl.SetTarget(nil)
	if d.ctrl.Wheels().Writes() != d.mark {
		return
	}
	if err := d.ctrl.Stop(); err != nil {
		d.log.Warnf("stop wheels: %v", err)
	}
}

type faceTowards struct {
	goal   Goal
	world  *World
	wheels *control.Wheels
	tol    float64
	gain   float64
	log    logger.Logger
	mark   uint64
	moving bool
}

// FaceTowards spins in place until the robot heading points at the goal
// within tol radians.
func FaceTowards(name string, goal Goal, w *World, wheels *control.Wheels, tol, gain float64, log logger.Logger) *bt.Node {
	return bt.NewNode(name, &faceTowards{goal: goal, world: w, wheels: wheels, tol: tol, gain: gain, log: logger.OrNop(log)})
}

func (f *faceTowards) Initialise() { f.moving = false }

func (f *faceTowards) Update() bt.Status {
	target, ok := f.goal()
	if !ok {
		return bt.Failure
	}
	pose := f.world.Pose()
	bearing := control.WrapAngle(pose.BearingTo(target) - pose.Theta)
	f.log.Debugw("face towards", map[string]any{"target": target.String(), "error": bearing})
	if math.Abs(bearing) < f.tol {
		if err := f.wheels.Stop(); err != nil {
			f.log.Warnf("stop wheels: %v", err)
		}
		return bt.Success
	}
	speed := control.EaseOutQuad(math.Abs(bearing)) * f.gain
	if bearing < 0 {
		speed = -speed
	}
	if err := f.wheels.Set(-speed, speed); err != nil {
		f.log.Warnf("wheel command: %v", err)
	}
	f.mark, f.moving = f.wheels.Writes(), true
	return bt.Running
}

// Terminate stops a preempted spin unless a higher priority leaf has
// already commanded the wheels this tick.
func (f *faceTowards) Terminate(st bt.Status) {
	if st != bt.Invalid || !f.moving || f.wheels.Writes() != f.mark {
		return
	}
	f.moving = false
	if err := f.wheels.Stop(); err != nil {
		f.log.Warnf("stop wheels: %v", err)
	}
}

type driveForwards struct {
	speed   float64
	timeout time.Duration
	cond    func() bool
	world   *World
	wheels  *control.Wheels
	log     logger.Logger
	elapsed time.Duration
}

// DriveForwards drives both wheels at speed until cond holds or the timeout
// elapses. A nil cond succeeds on the first tick, leaving the wheels turning.
func DriveForwards(name string, speed float64, timeout time.Duration, cond func() bool, w *World, wheels *control.Wheels, log logger.Logger) *bt.Node {
	return bt.NewNode(name, &driveForwards{speed: speed, timeout: timeout, cond: cond, world: w, wheels: wheels, log: logger.OrNop(log)})
}

func (d *driveForwards) Initialise() { d.elapsed = 0 }

func (d *driveForwards) Update() bt.Status {
	if err := d.wheels.Set(d.speed, d.speed); err != nil {
		d.log.Warnf("wheel command: %v", err)
	}
	d.elapsed += d.world.TickPeriod()
	if d.elapsed > d.timeout {
		return bt.Success
	}
	if d.cond != nil && !d.cond() {
		return bt.Running
	}
	return bt.Success
}

type wait struct {
	d       time.Duration
	world   *World
	elapsed time.Duration
}

// Wait runs until the accumulated tick periods reach d.
func Wait(d time.Duration, w *World) *bt.Node {
	return bt.NewNode("wait "+d.String(), &wait{d: d, world: w})
}

func (t *wait) Initialise() { t.elapsed = 0 }

func (t *wait) Update() bt.Status {
	t.elapsed += t.world.TickPeriod()
	if t.elapsed >= t.d {
		return bt.Success
	}
	return bt.Running
}

type findTarget struct {
	filter Filter
	world  *World
	pub    *eventbus.Publisher[model.Point3]
	log    logger.Logger
}

// FindTarget looks for the nearest detection passing filter. On success the
// target is stored in the world and published on the detection topic.
func FindTarget(name string, filter Filter, w *World, pub *eventbus.Publisher[model.Point3], log logger.Logger) *bt.Node {
	return bt.NewNode(name, &findTarget{filter: filter, world: w, pub: pub, log: logger.OrNop(log)})
}

func (f *findTarget) Initialise() {}

func (f *findTarget) Update() bt.Status {
	pose := f.world.Pose()
	robot := pose.Position()
	best, bestDist := model.Point3{}, math.Inf(1)
	for _, d := range f.world.Detections() {
		obj := ObjectToWorld(pose, d.Position)
		if !f.filter.Match(robot, obj, d.Color) || f.world.Abandoned(obj.XY()) {
			continue
		}
		if dist := robot.Dist(obj.XY()); dist < bestDist {
			best, bestDist = obj, dist
		}
	}
	if math.IsInf(bestDist, 1) {
		return bt.Failure
	}
	f.world.SetTarget(best)
	if err := f.pub.Publish(best); err != nil {
		f.log.Warnf("publish target: %v", err)
	}
	return bt.Success
}

type setArm struct {
	preset string
	world  *World
	pub    *eventbus.Publisher[string]
}

// SetArm publishes an arm preset. With an empty preset the shelf level of the
// found target picks between the upper and lower presets.
func SetArm(preset string, w *World, pub *eventbus.Publisher[string]) *bt.Node {
	name := "arm " + preset
	if preset == "" {
		name = "arm to target"
	}
	return bt.NewNode(name, &setArm{preset: preset, world: w, pub: pub})
}

func (a *setArm) Initialise() {}

func (a *setArm) Update() bt.Status {
	preset := a.preset
	if preset == "" {
		target, ok := a.world.Target()
		if !ok {
			return bt.Failure
		}
		preset = ArmPresetFor(target)
	}
	if err := a.pub.Publish(preset); err != nil {
		return bt.Failure
	}
	return bt.Success
}

// ArmPresetFor returns the arm preset reaching the shelf of target.
func ArmPresetFor(target model.Point3) string {
	if target.Z > -0.10 {
		return model.ArmUpper
	}
	return model.ArmLower
}

type setGripper struct {
	open bool
	pub  *eventbus.Publisher[bool]
}

// SetGripper publishes the gripper state.
func SetGripper(open bool, pub *eventbus.Publisher[bool]) *bt.Node {
	name := "close gripper"
	if open {
		name = "open gripper"
	}
	return bt.NewNode(name, &setGripper{open: open, pub: pub})
}

func (g *setGripper) Initialise() {}

func (g *setGripper) Update() bt.Status {
	if err := g.pub.Publish(g.open); err != nil {
		return bt.Failure
	}
	return bt.Success
}
