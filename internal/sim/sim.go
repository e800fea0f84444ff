// Package sim is a headless differential drive simulator. It integrates the
// wheel commands found on the bus and publishes the pose, camera detections
// and lidar hits the control loop would get from a real robot.
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ID is the bus identity of the simulator.
const ID = "sim"

// cameraOffset matches the camera mount assumed by the object transform.
const cameraOffset = 0.08

// Sim owns the simulated robot state. Step and the bus callbacks must run
// on the control loop goroutine; State is safe from any goroutine.
type Sim struct {
	cfg   Config
	world *grid.Grid
	tf    grid.Transform
	log   logger.Logger

	pose  *eventbus.Publisher[model.Pose]
	dets  *eventbus.Publisher[[]model.Detection]
	lidar *eventbus.Publisher[[]model.Point]

	mu      sync.RWMutex
	state   State
	objects []Object
	stall   int
}

// State is a snapshot of the simulated robot.
type State struct {
	Pose  model.Pose `json:"pose"`
	Left  float64    `json:"left"`
	Right float64    `json:"right"`
	Arm   string     `json:"arm"`
	// GripperOpen is the settled gripper state and GripperCommand the last
	// commanded one. Gripper is the travel, 0 closed and 1 open.
	GripperOpen    bool    `json:"gripper_open"`
	GripperCommand bool    `json:"gripper_command"`
	Gripper        float64 `json:"gripper"`
	// GripperRetries counts the steps the command was reapplied to a
	// stalled motor.
	GripperRetries int `json:"gripper_retries"`
	// Held is the index of the carried object, or -1.
	Held  int           `json:"held"`
	Steps int64         `json:"steps"`
	Time  time.Duration `json:"time"`
}

// New registers the simulator on b. world may be nil for an open floor; it
// is only used for lidar ray casting.
func New(b *eventbus.Bus, cfg Config, world *grid.Grid, tf grid.Transform, log logger.Logger) (*Sim, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sim{
		cfg:     cfg,
		world:   world,
		tf:      tf,
		log:     logger.OrNop(log),
		state:   State{Pose: cfg.Start, GripperOpen: true, GripperCommand: true, Gripper: 1, Held: -1},
		objects: append([]Object(nil), cfg.Objects...),
	}
	var err error
	if s.pose, err = eventbus.NewPublisher[model.Pose](b, model.TopicPose, ID); err != nil {
		return nil, err
	}
	if s.dets, err = eventbus.NewPublisher[[]model.Detection](b, model.TopicDetections, ID); err != nil {
		return nil, err
	}
	if cfg.LidarBeams > 0 {
		if s.lidar, err = eventbus.NewPublisher[[]model.Point](b, model.TopicLidar, ID); err != nil {
			return nil, err
		}
	}
	err = errors.Join(
		eventbus.Subscribe(b, model.TopicWheelLeft, ID, func(v float64) { s.update(func(st *State) { st.Left = v }) }),
		eventbus.Subscribe(b, model.TopicWheelRight, ID, func(v float64) { s.update(func(st *State) { st.Right = v }) }),
		eventbus.Subscribe(b, model.TopicArm, ID, func(v string) { s.update(func(st *State) { st.Arm = v }) }),
		eventbus.Subscribe(b, model.TopicGripper, ID, s.setGripper),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sim) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

// setGripper records a gripper command. The motor works towards it on the
// following steps.
func (s *Sim) setGripper(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open == s.state.GripperCommand {
		return
	}
	s.state.GripperCommand = open
	s.stall = s.cfg.GripperStall
}

// actuateGripper reapplies the held command until the travel matches it,
// then picks up the nearest object in reach on close or puts the held object
// down in front of the robot on open. The caller holds the lock.
func (s *Sim) actuateGripper(dt float64) {
	st := &s.state
	goal := 0.0
	if st.GripperCommand {
		goal = 1
	}
	if st.Gripper == goal {
		return
	}
	if s.stall > 0 {
		s.stall--
		st.GripperRetries++
		s.log.Debugf("gripper stalled, retrying")
		return
	}
	move := s.cfg.GripperSpeed * dt
	switch {
	case math.Abs(goal-st.Gripper) <= move+1e-9:
		st.Gripper = goal
	case goal > st.Gripper:
		st.Gripper += move
	default:
		st.Gripper -= move
	}
	if st.Gripper != goal {
		return
	}
	st.GripperOpen = st.GripperCommand
	p := st.Pose
	if st.GripperOpen {
		if h := st.Held; h >= 0 {
			sin, cos := math.Sincos(p.Theta)
			s.objects[h].Position.X = p.X + cos*s.cfg.GraspRange/2
			s.objects[h].Position.Y = p.Y + sin*s.cfg.GraspRange/2
			s.log.Infof("released object %d", h)
			st.Held = -1
		}
		return
	}
	best, bestD := -1, s.cfg.GraspRange
	for i, o := range s.objects {
		if d := p.Position().Dist(o.Position.XY()); d <= bestD {
			best, bestD = i, d
		}
	}
	if best >= 0 {
		st.Held = best
		s.log.Infof("picked up object %d at %.2fm", best, bestD)
	}
}

// Step advances the simulation by dt and publishes the sensor readings.
func (s *Sim) Step(dt time.Duration) error {
	s.mu.Lock()
	st := &s.state
	st.Pose = s.integrate(st.Pose, st.Left, st.Right, dt.Seconds())
	st.Steps++
	st.Time += dt
	s.actuateGripper(dt.Seconds())
	if st.Held >= 0 {
		s.objects[st.Held].Position.X = st.Pose.X
		s.objects[st.Held].Position.Y = st.Pose.Y
	}
	pose := st.Pose
	dets := s.detect(pose)
	s.mu.Unlock()

	err := errors.Join(s.pose.Publish(pose), s.dets.Publish(dets))
	if s.lidar != nil {
		err = errors.Join(err, s.lidar.Publish(s.scan(pose)))
	}
	return err
}

// integrate applies the unicycle model with a midpoint heading.
func (s *Sim) integrate(p model.Pose, left, right, dt float64) model.Pose {
	v := s.cfg.WheelRadius * (left + right) / 2
	w := s.cfg.WheelRadius * (right - left) / s.cfg.Track
	mid := p.Theta + w*dt/2
	p.X += v * math.Cos(mid) * dt
	p.Y += v * math.Sin(mid) * dt
	p.Theta = math.Remainder(p.Theta+w*dt, 2*math.Pi)
	return p
}

// detect returns the objects in the camera field of view, in the camera
// frame. Held objects are not visible.
func (s *Sim) detect(p model.Pose) []model.Detection {
	sin, cos := math.Sincos(p.Theta)
	camX, camY := p.X+cos*cameraOffset, p.Y+sin*cameraOffset
	var out []model.Detection
	for i, o := range s.objects {
		if i == s.state.Held {
			continue
		}
		dx, dy := o.Position.X-camX, o.Position.Y-camY
		rel := model.Point3{X: cos*dx + sin*dy, Y: -sin*dx + cos*dy, Z: o.Position.Z}
		if rel.X <= 0 || math.Hypot(rel.X, rel.Y) > s.cfg.CameraRange {
			continue
		}
		if math.Abs(math.Atan2(rel.Y, rel.X)) > s.cfg.FieldOfView/2 {
			continue
		}
		out = append(out, model.Detection{Position: rel, Color: o.Color})
	}
	return out
}

// scan casts LidarBeams rays through the world grid and returns the world
// position of every hit.
func (s *Sim) scan(p model.Pose) []model.Point {
	if s.world == nil {
		return nil
	}
	step := s.tf.CellSize() / 2
	hits := make([]model.Point, 0, s.cfg.LidarBeams)
	for i := 0; i < s.cfg.LidarBeams; i++ {
		a := p.Theta + 2*math.Pi*float64(i)/float64(s.cfg.LidarBeams)
		sin, cos := math.Sincos(a)
		for r := step; r <= s.cfg.LidarRange; r += step {
			q := model.Point{X: p.X + cos*r, Y: p.Y + sin*r}
			c, err := s.tf.ToGrid(q)
			if err != nil {
				break
			}
			if s.world.Occupied(c) {
				hits = append(hits, q)
				break
			}
		}
	}
	return hits
}

// State returns a snapshot of the robot.
func (s *Sim) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Objects returns the current object positions.
func (s *Sim) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Object(nil), s.objects...)
}
