// Package planner finds collision free paths over the inflated occupancy grid
// with a rapidly exploring random tree.
package planner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/model"
)

var (
	// ErrNoPath is returned when the iteration budget runs out before the
	// tree reaches the goal.
	ErrNoPath = errors.New("no path found")
	// ErrGoalBlocked is returned without searching when the goal cell is
	// occupied or outside the grid.
	ErrGoalBlocked = fmt.Errorf("%w: goal is not free", ErrNoPath)
	// ErrNoFreeSpace is returned when no free cell could be sampled.
	ErrNoFreeSpace = errors.New("no free cell to sample")
)

// vertex is a tree node in grid coordinates.
type vertex struct {
	p      model.Point
	parent int
	// edge holds the interpolated points from the parent.
	edge []model.Point
}

// kdPoint indexes a vertex in the k-d tree.
type kdPoint struct {
	x, y float64
	idx  int
}

func (k kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	if d == 0 {
		return k.x - q.x
	}
	return k.y - q.y
}

func (k kdPoint) Dims() int { return 2 }

func (k kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	dx, dy := k.x-q.x, k.y-q.y
	return dx*dx + dy*dy
}

// Result is a successful search.
type Result struct {
	// Path runs from start to goal in grid coordinates.
	Path       []model.Point
	Iterations int
	Nodes      int
	// Edges are the tree edges, useful for plotting.
	Edges [][2]model.Point
}

// RRT grows a tree from the start point until it reaches the goal.
type RRT struct {
	cfg Config
	rng *rand.Rand
}

// NewRRT returns a planner using cfg. Unset fields take their defaults.
func NewRRT(cfg Config) *RRT {
	cfg.SetDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &RRT{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Plan searches g for a path from start to goal, both in grid coordinates.
func (r *RRT) Plan(start, goal model.Point, g *grid.Grid) (Result, error) {
	if !g.Valid(goal.X, goal.Y) {
		return Result{}, ErrGoalBlocked
	}
	nodes := []vertex{{p: start, parent: -1}}
	tree := &kdtree.Tree{}
	tree.Insert(kdPoint{x: start.X, y: start.Y, idx: 0}, false)

	if start.Dist(goal) < r.cfg.GoalTolerance {
		return r.result(nodes, 0, 0), nil
	}
	for it := 1; it <= r.cfg.Iterations; it++ {
		target, err := r.sample(g)
		if err != nil {
			return Result{}, err
		}
		if r.rng.Float64() < r.cfg.GoalBias {
			target = goal
		}
		near, _ := tree.Nearest(kdPoint{x: target.X, y: target.Y})
		from := nodes[near.(kdPoint).idx]
		edge := steer(from.p, target, r.cfg.StepSize, r.cfg.SteerPoints)
		if !edgeValid(edge, g) {
			continue
		}
		idx := len(nodes)
		end := edge[len(edge)-1]
		nodes = append(nodes, vertex{p: end, parent: near.(kdPoint).idx, edge: edge})
		tree.Insert(kdPoint{x: end.X, y: end.Y, idx: idx}, false)
		if end.Dist(goal) < r.cfg.GoalTolerance {
			return r.result(nodes, idx, it), nil
		}
	}
	return Result{}, fmt.Errorf("%w after %d iterations (%d nodes)", ErrNoPath, r.cfg.Iterations, len(nodes))
}

func (r *RRT) result(nodes []vertex, goal, iterations int) Result {
	var path []model.Point
	for i := goal; i >= 0; i = nodes[i].parent {
		path = append(path, nodes[i].p)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	res := Result{Path: path, Iterations: iterations, Nodes: len(nodes)}
	for _, n := range nodes[1:] {
		res.Edges = append(res.Edges, [2]model.Point{nodes[n.parent].p, n.p})
	}
	return res
}

// sample draws a uniformly random free point.
func (r *RRT) sample(g *grid.Grid) (model.Point, error) {
	dim := float64(g.Dim())
	for i := 0; i < r.cfg.SampleAttempts; i++ {
		p := model.Point{X: r.rng.Float64() * dim, Y: r.rng.Float64() * dim}
		if g.Valid(p.X, p.Y) {
			return p, nil
		}
	}
	return model.Point{}, ErrNoFreeSpace
}

// steer returns n evenly spaced points from from towards to, covering at
// most step. Both ends are included.
func steer(from, to model.Point, step float64, n int) []model.Point {
	d := from.Dist(to)
	if d > step {
		k := step / d
		to = model.Point{X: from.X + (to.X-from.X)*k, Y: from.Y + (to.Y-from.Y)*k}
	}
	return linspace(from, to, n)
}

func linspace(from, to model.Point, n int) []model.Point {
	if n < 2 {
		return []model.Point{to}
	}
	out := make([]model.Point, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		out[i] = model.Point{X: from.X + (to.X-from.X)*t, Y: from.Y + (to.Y-from.Y)*t}
	}
	out[n-1] = to
	return out
}

// edgeValid checks every point of a new edge except its origin, which is
// already in the tree.
func edgeValid(edge []model.Point, g *grid.Grid) bool {
	for _, p := range edge[1:] {
		if !g.Valid(p.X, p.Y) {
			return false
		}
	}
	return true
}

// Smooth removes intermediate points while the straight segment from the
// last kept point stays on free cells.
func Smooth(path []model.Point, g *grid.Grid) []model.Point {
	if len(path) < 3 {
		return append([]model.Point(nil), path...)
	}
	out := []model.Point{path[0]}
	anchor := path[0]
	for i := 2; i < len(path); i++ {
		if !lineFree(anchor, path[i], g) {
			anchor = path[i-1]
			out = append(out, anchor)
		}
	}
	return append(out, path[len(path)-1])
}

// lineFree samples the segment roughly once per cell.
func lineFree(a, b model.Point, g *grid.Grid) bool {
	n := int(math.Ceil(a.Dist(b))) + 1
	for _, p := range linspace(a, b, max(n, 2)) {
		if !g.Valid(p.X, p.Y) {
			return false
		}
	}
	return true
}
