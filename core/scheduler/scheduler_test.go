package scheduler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/trace"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

type tickSink struct {
	coremetrics.NopSink
	ticks    []coremetrics.TickEvent
	failures []coremetrics.TaskFailure
}

func (s *tickSink) RecordTick(ev coremetrics.TickEvent) error {
	s.ticks = append(s.ticks, ev)
	return nil
}

func (s *tickSink) RecordTaskFailure(ev coremetrics.TaskFailure) error {
	s.failures = append(s.failures, ev)
	return nil
}

type warnSpy struct {
	logger.Nop
	warnings []string
}

func (w *warnSpy) Warnf(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}

type brokenSink struct{ coremetrics.NopSink }

func (brokenSink) RecordTaskFailure(coremetrics.TaskFailure) error {
	return errors.New("influx down")
}

type traceSpy struct{ recs []trace.Record }

func (t *traceSpy) Record(r trace.Record) { t.recs = append(t.recs, r) }

type panicSpy struct{ panics []any }

func (p *panicSpy) CaptureException(error, map[string]string) {}
func (p *panicSpy) CapturePanic(v any, _ map[string]string)   { p.panics = append(p.panics, v) }
func (p *panicSpy) Flush(time.Duration)                       {}

type harness struct {
	bus   *eventbus.Bus
	sched *Scheduler
	tick  *eventbus.Publisher[int]
	auto  *eventbus.Publisher[bool]
	sink  *tickSink
	trace *traceSpy
	mon   *panicSpy
}

func newHarness(t *testing.T, root *bt.Node) *harness {
	t.Helper()
	h := &harness{bus: eventbus.New(), sink: &tickSink{}, trace: &traceSpy{}, mon: &panicSpy{}}
	var err error
	h.sched, err = New(h.bus, root, WithMetrics(h.sink), WithTrace(h.trace), WithMonitor(h.mon))
	require.NoError(t, err)
	h.tick, err = eventbus.NewPublisher[int](h.bus, model.TopicTick, "clock")
	require.NoError(t, err)
	h.auto, err = eventbus.NewPublisher[bool](h.bus, model.TopicAuto, "operator")
	require.NoError(t, err)
	return h
}

func TestTicksOnlyWhenAutonomous(t *testing.T) {
	calls := 0
	root := bt.NewSequence("root", bt.Action("work", func() bt.Status {
		calls++
		return bt.Running
	}))
	h := newHarness(t, root)

	require.NoError(t, h.tick.Publish(32))
	assert.Zero(t, calls)
	assert.Empty(t, h.sink.ticks)

	require.NoError(t, h.auto.Publish(true))
	require.NoError(t, h.tick.Publish(32))
	require.NoError(t, h.tick.Publish(32))
	assert.Equal(t, 2, calls)
	require.Len(t, h.sink.ticks, 2)
	assert.Equal(t, "root/work", h.sink.ticks[0].Branch)
	assert.Equal(t, int64(2), h.sink.ticks[1].Tick)

	st := h.sched.State()
	assert.True(t, st.Autonomous)
	assert.Equal(t, "RUNNING", st.Status)
	assert.Equal(t, "RUNNING", h.sched.Snapshot().Children[0].Status)
}

func TestManualModePreemptsTree(t *testing.T) {
	var terminated []bt.Status
	task := &stoppable{onStop: func(s bt.Status) { terminated = append(terminated, s) }}
	root := bt.NewSelector("root", bt.NewNode("drive", task))
	h := newHarness(t, root)

	require.NoError(t, h.auto.Publish(true))
	assert.Equal(t, bt.Running, h.sched.Tick())
	require.NoError(t, h.auto.Publish(false))

	assert.Equal(t, []bt.Status{bt.Invalid}, terminated)
	assert.Equal(t, bt.Invalid, root.Status())
	assert.Equal(t, bt.Invalid, h.sched.Tick())
	assert.Equal(t, "INVALID", h.sched.Snapshot().Status)

	var modes []string
	for _, r := range h.trace.recs {
		if r.Kind == trace.KindMode {
			modes = append(modes, r.Status)
		}
	}
	assert.Equal(t, []string{"autonomous", "manual"}, modes)
}

func TestTraceOnlyOnBranchChange(t *testing.T) {
	n := 0
	root := bt.NewSelector("root",
		bt.Condition("first", func() bool { return n >= 2 }),
		bt.Action("second", func() bt.Status { return bt.Running }),
	)
	h := newHarness(t, root)
	h.sched.SetAutonomous(true)
	for ; n < 4; n++ {
		h.sched.Tick()
	}
	var branches []string
	for _, r := range h.trace.recs {
		if r.Kind == trace.KindTick {
			branches = append(branches, r.Status+" "+r.Branch)
			assert.NotEmpty(t, r.ID)
		}
	}
	assert.Equal(t, []string{"RUNNING root/second", "SUCCESS root"}, branches)
	assert.Len(t, h.sink.ticks, 4)
}

func TestPanicWithFailingSinkIsLogged(t *testing.T) {
	root := bt.Action("fragile", func() bt.Status { panic("arm jammed") })
	log := &warnSpy{}
	sched, err := New(eventbus.New(), root, WithMetrics(brokenSink{}), WithLogger(log), WithMonitor(&panicSpy{}))
	require.NoError(t, err)
	sched.SetAutonomous(true)

	assert.Equal(t, bt.Failure, sched.Tick())
	assert.Contains(t, log.warnings, "record task failure: influx down")
}

func TestPanicIsRecovered(t *testing.T) {
	boom := true
	root := bt.NewSequence("root", bt.Action("fragile", func() bt.Status {
		if boom {
			panic("gripper driver exploded")
		}
		return bt.Success
	}))
	h := newHarness(t, root)
	h.sched.SetAutonomous(true)

	assert.Equal(t, bt.Failure, h.sched.Tick())
	assert.Equal(t, []any{"gripper driver exploded"}, h.mon.panics)
	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, 1, h.sched.State().Panics)

	boom = false
	assert.Equal(t, bt.Success, h.sched.Tick())
}

type stoppable struct{ onStop func(bt.Status) }

func (s *stoppable) Initialise()            {}
func (s *stoppable) Update() bt.Status      { return bt.Running }
func (s *stoppable) Terminate(st bt.Status) { s.onStop(st) }

func TestDecodeConfig(t *testing.T) {
	data := "aisle_width: 3\npatrol:\n  - {x: 1, y: 2}\n  - {x: -1, y: 2}\ngates: [1.0, 0.5]\n"
	cfg, err := DecodeConfig(bytes.NewBufferString(data), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.AisleWidth)
	assert.Equal(t, []model.Point{{X: 1, Y: 2}, {X: -1, Y: 2}}, cfg.Patrol)
	assert.Equal(t, []float64{1.0, 0.5}, cfg.Gates)
	assert.Equal(t, 0.01, cfg.FaceTolerance)

	_, err = DecodeConfig(bytes.NewBufferString(`{"gates":[0.5,1.0]}`), "json")
	assert.Error(t, err)

	_, err = DecodeConfig(bytes.NewBufferString(""), "toml")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.json")
	if err := os.WriteFile(path, []byte(`{"patrol":[{"x":0,"y":0}],"face_gain":3}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FaceGain != 3 || len(cfg.Patrol) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
