package tasks

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
)

func TestDriveToReachesGoal(t *testing.T) {
	r := newRig(t)
	n := DriveTo("drive", Fixed(model.Point{X: 2}), r.ctrl, nil, nil)

	assert.Equal(t, bt.Running, n.Tick())
	l, rr := r.lastWheels()
	assert.Greater(t, l, 0.0)
	assert.InDelta(t, l, rr, 1e-12)
	assert.Equal(t, 1, r.planner.calls)

	r.setPose(t, model.Pose{X: 1.9})
	assert.Equal(t, bt.Success, n.Tick())
	_, ok := r.ctrl.Target()
	assert.False(t, ok)
	l, rr = r.lastWheels()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.0, rr)
}

func TestDriveToAlreadyThere(t *testing.T) {
	r := newRig(t)
	n := DriveTo("drive", Fixed(model.Point{X: 0.1}), r.ctrl, nil, nil)
	assert.Equal(t, bt.Success, n.Tick())
}

func TestDriveToPlanningFailure(t *testing.T) {
	r := newRig(t)
	r.planner.err = errors.New("no path")
	var failed []model.Point
	n := DriveTo("drive", Fixed(model.Point{X: 2}), r.ctrl, nil, func(p model.Point, err error) {
		failed = append(failed, p)
		assert.EqualError(t, err, "no path")
	})
	assert.Equal(t, bt.Failure, n.Tick())
	assert.Equal(t, []model.Point{{X: 2}}, failed)
	assert.NoError(t, r.ctrl.Failed(), "terminate clears the target")
}

func TestDriveToWithoutGoal(t *testing.T) {
	r := newRig(t)
	called := false
	none := func() (model.Point, bool) { return model.Point{}, false }
	n := DriveTo("drive", none, r.ctrl, nil, func(model.Point, error) { called = true })
	assert.Equal(t, bt.Failure, n.Tick())
	assert.False(t, called)
	assert.Zero(t, r.planner.calls)
}

func TestDriveToPreemptedStopsWheels(t *testing.T) {
	r := newRig(t)
	n := DriveTo("drive", Fixed(model.Point{X: 5}), r.ctrl, nil, nil)
	require.Equal(t, bt.Running, n.Tick())
	n.Stop()
	assert.Equal(t, bt.Invalid, n.Status())
	_, ok := r.ctrl.Target()
	assert.False(t, ok)
	l, rr := r.lastWheels()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.0, rr)
}

func TestFaceTowards(t *testing.T) {
	r := newRig(t)
	n := FaceTowards("face", Fixed(model.Point{Y: 1}), r.world, r.act.Wheels, 0.01, 5, nil)

	assert.Equal(t, bt.Running, n.Tick())
	l, rr := r.lastWheels()
	assert.InDelta(t, -5, l, 1e-12)
	assert.InDelta(t, 5, rr, 1e-12)

	r.setPose(t, model.Pose{Theta: 1})
	assert.Equal(t, bt.Running, n.Tick())
	l, rr = r.lastWheels()
	want := control.EaseOutQuad(math.Pi/2 - 1)
	assert.InDelta(t, -5*want, l, 1e-9)
	assert.InDelta(t, 5*want, rr, 1e-9)

	r.setPose(t, model.Pose{Theta: 2})
	require.Equal(t, bt.Running, n.Tick())
	l, rr = r.lastWheels()
	assert.Greater(t, l, 0.0, "overshoot turns back clockwise")
	assert.Less(t, rr, 0.0)

	r.setPose(t, model.Pose{Theta: math.Pi / 2})
	assert.Equal(t, bt.Success, n.Tick())
	l, rr = r.lastWheels()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.0, rr)
}

type wheelLog struct {
	logger.Nop
	warnings []string
}

func (w *wheelLog) Warnf(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}

type rejectingWheelSink struct{ coremetrics.NopSink }

func (rejectingWheelSink) RecordWheels(coremetrics.WheelEvent) error {
	return errors.New("sink offline")
}

func TestDriveForwardsLogsWheelErrors(t *testing.T) {
	r := newRig(t)
	wheels, err := control.NewWheels(r.bus, "creeper", rejectingWheelSink{})
	require.NoError(t, err)
	log := &wheelLog{}
	n := DriveForwards("creep", 1, time.Second, func() bool { return false }, r.world, wheels, log)

	assert.Equal(t, bt.Running, n.Tick())
	assert.Equal(t, []string{"wheel command: sink offline"}, log.warnings)
	l, rr := r.lastWheels()
	assert.Equal(t, 1.0, l, "the command is still published")
	assert.Equal(t, 1.0, rr)
}

func TestFaceTowardsPreemptedStopsWheels(t *testing.T) {
	r := newRig(t)
	n := FaceTowards("face", Fixed(model.Point{Y: 1}), r.world, r.act.Wheels, 0.01, 5, nil)
	require.Equal(t, bt.Running, n.Tick())
	n.Stop()
	l, rr := r.lastWheels()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.0, rr)

	// a command from another leaf after the spin is left alone
	require.Equal(t, bt.Running, n.Tick())
	require.NoError(t, r.ctrl.Wheels().Set(0.3, 0.3))
	n.Stop()
	l, rr = r.lastWheels()
	assert.Equal(t, 0.3, l)
	assert.Equal(t, 0.3, rr)
}

func TestDriveToReplansWhenControllerIsCleared(t *testing.T) {
	r := newRig(t)
	n := DriveTo("drive", Fixed(model.Point{X: 5}), r.ctrl, nil, nil)
	require.Equal(t, bt.Running, n.Tick())
	require.NoError(t, r.ctrl.SetTarget(nil))

	assert.Equal(t, bt.Running, n.Tick(), "a cleared controller is not an arrival")
	target, ok := r.ctrl.Target()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 5}, target)
	assert.Equal(t, 2, r.planner.calls)
}

func TestFaceTowardsWithoutTarget(t *testing.T) {
	r := newRig(t)
	none := func() (model.Point, bool) { return model.Point{}, false }
	n := FaceTowards("face", none, r.world, r.act.Wheels, 0.01, 5, nil)
	assert.Equal(t, bt.Failure, n.Tick())
}

func TestDriveForwardsTimeout(t *testing.T) {
	r := newRig(t)
	n := DriveForwards("creep", 1, 100*time.Millisecond, func() bool { return false }, r.world, r.act.Wheels, nil)
	for i := 0; i < 3; i++ {
		if st := n.Tick(); st != bt.Running {
			t.Fatalf("tick %d: expected RUNNING got %s", i, st)
		}
	}
	assert.Equal(t, bt.Success, n.Tick())
	assert.Len(t, r.left, 4)
	for _, v := range r.left {
		assert.Equal(t, 1.0, v)
	}

	// restarted nodes count from zero again
	assert.Equal(t, bt.Running, n.Tick())
}

func TestDriveForwardsCondition(t *testing.T) {
	r := newRig(t)
	done := false
	n := DriveForwards("creep", -1, time.Second, func() bool { return done }, r.world, r.act.Wheels, nil)
	assert.Equal(t, bt.Running, n.Tick())
	done = true
	assert.Equal(t, bt.Success, n.Tick())
	l, rr := r.lastWheels()
	assert.Equal(t, -1.0, l)
	assert.Equal(t, -1.0, rr)

	n = DriveForwards("nudge", 1, time.Second, nil, r.world, r.act.Wheels, nil)
	assert.Equal(t, bt.Success, n.Tick())
}

func TestWaitAccumulatesTickPeriods(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.tick.Publish(50))
	n := Wait(200*time.Millisecond, r.world)
	for i := 0; i < 3; i++ {
		assert.Equal(t, bt.Running, n.Tick())
	}
	assert.Equal(t, bt.Success, n.Tick())
	assert.Equal(t, bt.Success, Wait(0, r.world).Tick())
}

func TestFindTargetPicksNearestMatch(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.dets.Publish([]model.Detection{
		{Position: model.Point3{X: 5, Y: 1, Z: 0.2}},
		{Position: model.Point3{X: 1, Z: 0.2}},
		{Position: model.Point3{X: 1.5, Z: 0.2}},
	}))
	var cfg Config
	cfg.SetDefaults()

	closeNode := FindTarget("close", cfg.Close, r.world, r.act.Detected, nil)
	assert.Equal(t, bt.Success, closeNode.Tick())
	target, ok := r.world.Target()
	require.True(t, ok)
	assert.InDelta(t, 1.08, target.X, 1e-12)
	require.Len(t, r.detected, 1)
	assert.Equal(t, target, r.detected[0])

	farNode := FindTarget("far", cfg.Far, r.world, r.act.Detected, nil)
	assert.Equal(t, bt.Success, farNode.Tick())
	target, _ = r.world.Target()
	assert.InDelta(t, 5.08, target.X, 1e-12)
	assert.InDelta(t, 1.0, target.Y, 1e-12)

	r.world.Abandon(model.Point{X: 5.08, Y: 1})
	assert.Equal(t, bt.Failure, farNode.Tick())
	assert.Len(t, r.detected, 2)
}

func TestFindTargetNothingVisible(t *testing.T) {
	r := newRig(t)
	n := FindTarget("close", Filter{MaxRange: 2}, r.world, r.act.Detected, nil)
	assert.Equal(t, bt.Failure, n.Tick())
	_, ok := r.world.Target()
	assert.False(t, ok)
}

func TestSetArm(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, bt.Failure, SetArm("", r.world, r.act.Arm).Tick())

	r.world.SetTarget(model.Point3{Z: 0.3})
	assert.Equal(t, bt.Success, SetArm("", r.world, r.act.Arm).Tick())
	r.world.SetTarget(model.Point3{Z: -0.3})
	assert.Equal(t, bt.Success, SetArm("", r.world, r.act.Arm).Tick())
	assert.Equal(t, bt.Success, SetArm(model.ArmBasket, r.world, r.act.Arm).Tick())
	assert.Equal(t, []string{model.ArmUpper, model.ArmLower, model.ArmBasket}, r.arm)
}

func TestSetGripper(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, bt.Success, SetGripper(true, r.act.Gripper).Tick())
	assert.Equal(t, bt.Success, SetGripper(false, r.act.Gripper).Tick())
	assert.Equal(t, []bool{true, false}, r.gripper)
}
