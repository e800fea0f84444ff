package tasks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// straightPlanner returns the goal as the only waypoint. Goals matching
// blocked fail with errBlocked.
type straightPlanner struct {
	err     error
	blocked func(model.Point) bool
	calls   int
}

var errBlocked = errors.New("goal blocked")

func (s *straightPlanner) PlanPath(_, to model.Point) ([]model.Point, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.blocked != nil && s.blocked(to) {
		return nil, errBlocked
	}
	return []model.Point{to}, nil
}

type rig struct {
	bus      *eventbus.Bus
	world    *World
	act      *Actuators
	ctrl     *control.Controller
	planner  *straightPlanner
	pose     *eventbus.Publisher[model.Pose]
	dets     *eventbus.Publisher[[]model.Detection]
	tick     *eventbus.Publisher[int]
	left     []float64
	right    []float64
	arm      []string
	gripper  []bool
	detected []model.Point3
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{bus: eventbus.New(), planner: &straightPlanner{}}
	var err error
	r.world, err = NewWorld(r.bus)
	require.NoError(t, err)
	r.act, err = NewActuators(r.bus, nil)
	require.NoError(t, err)
	wheels, err := control.NewWheels(r.bus, "waypoint_controller", nil)
	require.NoError(t, err)
	r.ctrl, err = control.NewController(control.Config{}, r.planner, r.world, wheels, nil)
	require.NoError(t, err)

	r.pose, err = eventbus.NewPublisher[model.Pose](r.bus, model.TopicPose, "test")
	require.NoError(t, err)
	r.dets, err = eventbus.NewPublisher[[]model.Detection](r.bus, model.TopicDetections, "test")
	require.NoError(t, err)
	r.tick, err = eventbus.NewPublisher[int](r.bus, model.TopicTick, "test")
	require.NoError(t, err)

	require.NoError(t, eventbus.Subscribe(r.bus, model.TopicWheelLeft, "spy", func(v float64) { r.left = append(r.left, v) }))
	require.NoError(t, eventbus.Subscribe(r.bus, model.TopicWheelRight, "spy", func(v float64) { r.right = append(r.right, v) }))
	require.NoError(t, eventbus.Subscribe(r.bus, model.TopicArm, "spy", func(v string) { r.arm = append(r.arm, v) }))
	require.NoError(t, eventbus.Subscribe(r.bus, model.TopicGripper, "spy", func(v bool) { r.gripper = append(r.gripper, v) }))
	require.NoError(t, eventbus.Subscribe(r.bus, model.TopicDetectObject, "spy", func(v model.Point3) { r.detected = append(r.detected, v) }))
	return r
}

func (r *rig) setPose(t *testing.T, p model.Pose) {
	t.Helper()
	require.NoError(t, r.pose.Publish(p))
}

func (r *rig) lastWheels() (float64, float64) {
	return r.left[len(r.left)-1], r.right[len(r.right)-1]
}
