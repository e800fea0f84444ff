package tasks

import (
	"errors"
	"sync"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/model"
)

// Patrol is a cyclic route of waypoints.
type Patrol struct {
	mu     sync.Mutex
	points []model.Point
	index  int
}

// NewPatrol creates a patrol over points, starting at the first one.
func NewPatrol(points []model.Point) (*Patrol, error) {
	if len(points) == 0 {
		return nil, errors.New("patrol needs at least one point")
	}
	return &Patrol{points: append([]model.Point(nil), points...)}, nil
}

// Current returns the patrol point to drive to.
func (p *Patrol) Current() model.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.points[p.index]
}

// Index returns the position of the current point in the route.
func (p *Patrol) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Advance moves to the next point, wrapping around at the end.
func (p *Patrol) Advance() {
	p.mu.Lock()
	p.index = (p.index + 1) % len(p.points)
	p.mu.Unlock()
}

// Goal returns the current point as a Goal.
func (p *Patrol) Goal() Goal {
	return func() (model.Point, bool) { return p.Current(), true }
}

// AdvancePatrol is a leaf that advances p and succeeds.
func AdvancePatrol(p *Patrol) *bt.Node {
	return bt.Action("next patrol point", func() bt.Status {
		p.Advance()
		return bt.Success
	})
}
