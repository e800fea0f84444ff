package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/trace"
)

// Plan is a world-space route. Waypoints exclude the start position, so a
// successful Plan with no waypoints means the robot is already at the goal.
type Plan struct {
	Waypoints []model.Point
	// Raw is the unsmoothed tree path in grid coordinates.
	Raw    []model.Point
	Search Result
}

// PathPlanner plans between world coordinates on a Map.
type PathPlanner struct {
	cfg     Config
	m       *grid.Map
	rrt     *RRT
	log     logger.Logger
	metrics coremetrics.MetricsSink
	trace   trace.Recorder
}

// Option customises a PathPlanner.
type Option func(*PathPlanner)

// WithLogger sets the planner logger.
func WithLogger(l logger.Logger) Option { return func(p *PathPlanner) { p.log = logger.OrNop(l) } }

// WithMetrics records every request on s.
func WithMetrics(s coremetrics.MetricsSink) Option {
	return func(p *PathPlanner) {
		if s != nil {
			p.metrics = s
		}
	}
}

// WithTrace appends a trace record for every request.
func WithTrace(r trace.Recorder) Option { return func(p *PathPlanner) { p.trace = trace.OrNop(r) } }

// New builds a PathPlanner over m.
func New(cfg Config, m *grid.Map, opts ...Option) (*PathPlanner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &PathPlanner{
		cfg:     cfg,
		m:       m,
		rrt:     NewRRT(cfg),
		log:     logger.Nop{},
		metrics: coremetrics.NopSink{},
		trace:   trace.Nop{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Map returns the map the planner searches.
func (p *PathPlanner) Map() *grid.Map { return p.m }

// SetMap replaces the raw occupancy grid. The planning grid is re-inflated.
func (p *PathPlanner) SetMap(raw *grid.Grid) error {
	return p.m.SetRaw(raw)
}

// PlanPath returns the waypoints from from to to. Coordinates outside the
// map return a grid.BoundsError; an unreachable goal returns ErrNoPath.
func (p *PathPlanner) PlanPath(from, to model.Point) ([]model.Point, error) {
	plan, err := p.Plan(from, to)
	if err != nil {
		return nil, err
	}
	return plan.Waypoints, nil
}

// Plan is PlanPath with the search details.
func (p *PathPlanner) Plan(from, to model.Point) (Plan, error) {
	started := time.Now()
	plan, err := p.plan(from, to)
	ev := coremetrics.PlanEvent{
		Success:    err == nil,
		Iterations: plan.Search.Iterations,
		Nodes:      plan.Search.Nodes,
		Waypoints:  len(plan.Waypoints),
		Length:     pathLength(from, plan.Waypoints),
		Duration:   time.Since(started),
		Time:       started,
	}
	if merr := coremetrics.RecordPlan(p.metrics, ev); merr != nil {
		p.log.Warnf("record plan metric: %v", merr)
	}
	rec := trace.Record{
		ID:         uuid.NewString(),
		Timestamp:  started,
		Kind:       trace.KindPlan,
		From:       &from,
		Target:     &to,
		Waypoints:  plan.Waypoints,
		Iterations: plan.Search.Iterations,
	}
	if err != nil {
		rec.Error = err.Error()
		p.log.Warnf("no path from %v to %v: %v", from, to, err)
	} else {
		p.log.Debugw("path planned", map[string]any{
			"from":       from.String(),
			"to":         to.String(),
			"waypoints":  len(plan.Waypoints),
			"iterations": plan.Search.Iterations,
			"nodes":      plan.Search.Nodes,
		})
	}
	p.trace.Record(rec)
	return plan, err
}

func (p *PathPlanner) plan(from, to model.Point) (Plan, error) {
	tr := p.m.Transform()
	if _, err := tr.ToGrid(from); err != nil {
		return Plan{}, fmt.Errorf("start: %w", err)
	}
	goalCell, err := tr.ToGrid(to)
	if err != nil {
		return Plan{}, fmt.Errorf("goal: %w", err)
	}
	sx, sy := tr.Scale(from)
	goal := model.Point{X: float64(goalCell.Col) + 0.5, Y: float64(goalCell.Row) + 0.5}
	g := p.m.Planning()
	res, err := p.rrt.Plan(model.Point{X: sx, Y: sy}, goal, g)
	if err != nil {
		return Plan{Search: res}, err
	}
	path := res.Path
	if *p.cfg.Smooth {
		path = Smooth(path, g)
	}
	plan := Plan{Raw: res.Path, Search: res}
	// the first point is the robot position
	for _, q := range path[1:] {
		plan.Waypoints = append(plan.Waypoints, tr.ToWorld(q.X, q.Y))
	}
	return plan, nil
}

func pathLength(from model.Point, wps []model.Point) float64 {
	total := 0.0
	prev := from
	for _, w := range wps {
		total += prev.Dist(w)
		prev = w
	}
	return total
}
