package tasks

import (
	"math"
	"sync"
	"time"

	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// DefaultTickPeriod is assumed until the first tick is received.
const DefaultTickPeriod = 32 * time.Millisecond

const worldID = "world"

// World caches the robot state the leaves depend on.
type World struct {
	mu         sync.RWMutex
	pose       model.Pose
	detections []model.Detection
	period     time.Duration
	target     *model.Point3
	abandoned  []model.Point
}

// NewWorld subscribes to pose, detections and ticks. It must be created
// before the scheduler so that the tick period is updated before the tree
// runs.
func NewWorld(b *eventbus.Bus) (*World, error) {
	w := &World{period: DefaultTickPeriod}
	if err := eventbus.Subscribe(b, model.TopicPose, worldID, w.setPose); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicDetections, worldID, w.setDetections); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicTick, worldID, w.setPeriod); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) setPose(p model.Pose) {
	w.mu.Lock()
	w.pose = p
	w.mu.Unlock()
}

func (w *World) setDetections(d []model.Detection) {
	w.mu.Lock()
	w.detections = append(w.detections[:0], d...)
	w.mu.Unlock()
}

func (w *World) setPeriod(ms int) {
	if ms <= 0 {
		return
	}
	w.mu.Lock()
	w.period = time.Duration(ms) * time.Millisecond
	w.mu.Unlock()
}

// Pose returns the latest pose.
func (w *World) Pose() model.Pose {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pose
}

// Detections returns a copy of the latest camera detections.
func (w *World) Detections() []model.Detection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]model.Detection(nil), w.detections...)
}

// TickPeriod returns the period of the control loop.
func (w *World) TickPeriod() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.period
}

// Target returns the world position of the last found target.
func (w *World) Target() (model.Point3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.target == nil {
		return model.Point3{}, false
	}
	return *w.target, true
}

// SetTarget stores the found target.
func (w *World) SetTarget(p model.Point3) {
	w.mu.Lock()
	w.target = &p
	w.mu.Unlock()
}

// TargetDistance is the planar distance from the robot to the found target,
// or +Inf when nothing was found yet.
func (w *World) TargetDistance() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.target == nil {
		return math.Inf(1)
	}
	return w.pose.Position().Dist(w.target.XY())
}

// Abandon marks a target the planner could not reach so that FindTarget
// skips it.
func (w *World) Abandon(p model.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.abandonedLocked(p) {
		return
	}
	w.abandoned = append(w.abandoned, p)
}

// Abandoned reports whether p lies next to an abandoned target.
func (w *World) Abandoned(p model.Point) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.abandonedLocked(p)
}

func (w *World) abandonedLocked(p model.Point) bool {
	for _, a := range w.abandoned {
		if a.Dist(p) < model.SameObjectRadius {
			return true
		}
	}
	return false
}
