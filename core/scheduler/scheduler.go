// Package scheduler drives the behaviour tree from the control loop clock.
// The root is ticked once per /cmd_tick while the robot is in autonomous
// mode; leaving autonomous mode preempts whatever branch was running.
package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/monitoring"
	"github.com/kilianp07/grocerybot/core/trace"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ID is the bus identity of the scheduler.
const ID = "scheduler"

// State summarises the scheduler for introspection.
type State struct {
	Autonomous bool   `json:"autonomous"`
	Ticks      int64  `json:"ticks"`
	Status     string `json:"status"`
	Branch     string `json:"branch"`
	Panics     int    `json:"panics"`
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.log = logger.OrNop(l) } }

// WithMetrics sets the sink receiving tick events.
func WithMetrics(m coremetrics.MetricsSink) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTrace sets the recorder receiving branch changes.
func WithTrace(r trace.Recorder) Option { return func(s *Scheduler) { s.trace = trace.OrNop(r) } }

// WithMonitor sets the monitor receiving recovered panics.
func WithMonitor(m monitoring.Monitor) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.monitor = m
		}
	}
}

// Scheduler ticks the root node.
type Scheduler struct {
	root    *bt.Node
	log     logger.Logger
	metrics coremetrics.MetricsSink
	trace   trace.Recorder
	monitor monitoring.Monitor

	mu       sync.RWMutex
	state    State
	snapshot bt.Snapshot
}

// New subscribes the scheduler to the tick and mode topics. The robot starts
// in manual mode until /cmd_auto says otherwise.
func New(b *eventbus.Bus, root *bt.Node, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		root:    root,
		log:     logger.Nop{},
		metrics: coremetrics.NopSink{},
		trace:   trace.Nop{},
		monitor: monitoring.Current(),
	}
	for _, o := range opts {
		o(s)
	}
	s.snapshot = bt.Snap(root)
	s.state.Status = bt.Invalid.String()
	if err := eventbus.Subscribe(b, model.TopicAuto, ID, s.SetAutonomous); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicTick, ID, func(int) { s.Tick() }); err != nil {
		return nil, err
	}
	return s, nil
}

// SetAutonomous switches between autonomous and manual mode. Switching to
// manual mode stops the running branch.
func (s *Scheduler) SetAutonomous(on bool) {
	s.mu.Lock()
	changed := s.state.Autonomous != on
	s.state.Autonomous = on
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.Infof("autonomous mode set to %t", on)
	if !on {
		s.root.Stop()
		s.store(bt.Invalid, "")
	}
	s.trace.Record(trace.Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      trace.KindMode,
		Status:    modeName(on),
	})
}

// Autonomous reports the current mode.
func (s *Scheduler) Autonomous() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Autonomous
}

// Tick runs the root once when autonomous and returns its status, or Invalid
// in manual mode. A panicking leaf is reported, the tree is reset and the
// tick counts as a failure.
func (s *Scheduler) Tick() bt.Status {
	if !s.Autonomous() {
		return bt.Invalid
	}
	start := time.Now()
	status := bt.Invalid
	tags := map[string]string{"component": ID}
	if err := monitoring.Guard(s.monitor, tags, func() { status = s.root.Tick() }); err != nil {
		branch := strings.Join(s.root.ActivePath(), "/")
		s.log.Errorf("tick aborted in %s: %v", branch, err)
		s.root.Stop()
		status = bt.Failure
		s.mu.Lock()
		s.state.Panics++
		s.mu.Unlock()
		if merr := coremetrics.RecordTaskFailure(s.metrics, coremetrics.TaskFailure{Task: branch, Reason: err.Error(), Time: start}); merr != nil {
			s.log.Warnf("record task failure: %v", merr)
		}
		s.trace.Record(trace.Record{
			ID:        uuid.NewString(),
			Timestamp: start,
			Kind:      trace.KindTask,
			Branch:    branch,
			Status:    status.String(),
			Error:     err.Error(),
		})
	}
	branch := strings.Join(s.root.ActivePath(), "/")
	tick, changed := s.store(status, branch)
	if changed {
		s.log.Debugf("tick %d: %s %s", tick, status, branch)
		s.trace.Record(trace.Record{
			ID:        uuid.NewString(),
			Timestamp: start,
			Kind:      trace.KindTick,
			Tick:      tick,
			Status:    status.String(),
			Branch:    branch,
		})
	}
	ev := coremetrics.TickEvent{
		Tick:       tick,
		Status:     status.String(),
		Branch:     branch,
		Autonomous: true,
		Duration:   time.Since(start),
		Time:       start,
	}
	if err := s.metrics.RecordTick(ev); err != nil {
		s.log.Warnf("record tick: %v", err)
	}
	return status
}

// store saves the outcome of a tick and reports whether the status or branch
// changed.
func (s *Scheduler) store(status bt.Status, branch string) (int64, bool) {
	snap := bt.Snap(s.root)
	s.mu.Lock()
	defer s.mu.Unlock()
	if status != bt.Invalid {
		s.state.Ticks++
	}
	changed := s.state.Status != status.String() || s.state.Branch != branch
	s.state.Status = status.String()
	s.state.Branch = branch
	s.snapshot = snap
	return s.state.Ticks, changed
}

// State returns a copy of the scheduler state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the tree status captured after the last tick.
func (s *Scheduler) Snapshot() bt.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func modeName(auto bool) string {
	if auto {
		return "autonomous"
	}
	return "manual"
}
