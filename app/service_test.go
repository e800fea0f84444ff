package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/config"
	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/teleop"
	"github.com/kilianp07/grocerybot/internal/eventbus"
	"github.com/kilianp07/grocerybot/internal/sim"
)

func testConfig(auto bool) *config.Config {
	cfg := &config.Config{}
	cfg.Logging.Level = "error"
	cfg.Loop.PeriodMS = 32
	cfg.Loop.Autonomous = &auto
	cfg.Planner.Seed = 7
	cfg.Tasks.Patrol = []model.Point{{X: 2, Y: 0}, {X: 2, Y: 2}}
	cfg.Sim.Enabled = true
	// out of camera range and above the height filters
	cfg.Sim.Objects = []sim.Object{{Position: model.Point3{X: -12, Y: 12, Z: 5}}}
	cfg.SetDefaults()
	return cfg
}

func newService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServiceWiring(t *testing.T) {
	s := newService(t, testConfig(true))

	tick, ok := s.Bus.Describe(model.TopicTick)
	require.True(t, ok)
	assert.Equal(t, []string{ClockID}, tick.Publishers)
	assert.Contains(t, tick.Subscribers, "scheduler")
	assert.Contains(t, tick.Subscribers, teleop.ID)

	pose, ok := s.Bus.Describe(model.TopicPose)
	require.True(t, ok)
	assert.Equal(t, []string{sim.ID}, pose.Publishers)

	assert.Equal(t, []any{true}, s.Bus.History(model.TopicGripper))
	assert.Equal(t, []any{model.ArmStandby}, s.Bus.History(model.TopicArm))
	assert.True(t, s.Scheduler.Autonomous())
	assert.Nil(t, s.Bridge)
}

func TestServicePatrolsToFirstWaypoint(t *testing.T) {
	s := newService(t, testConfig(true))
	for i := 0; i < 1500 && s.Tree.Patrol.Index() == 0; i++ {
		s.Step()
	}
	require.Equal(t, 1, s.Tree.Patrol.Index(), "first patrol point not reached, pose %+v", s.World.Pose())
	assert.Less(t, s.World.Pose().Position().Dist(model.Point{X: 2, Y: 0}), 0.4)
	assert.Positive(t, s.Scheduler.State().Ticks)
}

func TestServiceManualDriving(t *testing.T) {
	s := newService(t, testConfig(false))
	keys, err := eventbus.NewPublisher[string](s.Bus, model.TopicTeleopKey, "test")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.True(t, s.Post(func() { _ = keys.Publish(teleop.KeyUp) }))
		s.Step()
	}
	assert.Greater(t, s.World.Pose().X, 0.2)
	assert.Zero(t, s.Scheduler.State().Ticks, "the tree must not run in manual mode")
	assert.EqualValues(t, 20, s.Steps())
}

func TestServicePostRejectsWhenFull(t *testing.T) {
	cfg := testConfig(false)
	cfg.Loop.Inbox = 1
	s := newService(t, cfg)
	ran := 0
	assert.True(t, s.Post(func() { ran++ }))
	assert.False(t, s.Post(func() { ran++ }))
	s.postOrDrop(func() { ran++ })
	assert.EqualValues(t, 1, s.Dropped())
	s.Step()
	assert.Equal(t, 1, ran)
}

func TestServiceRecoversInboxPanic(t *testing.T) {
	s := newService(t, testConfig(false))
	s.Post(func() { panic("bad command") })
	s.Step()
	assert.EqualValues(t, 1, s.Steps())
}

func TestServiceStepSurvivesSubscriberPanic(t *testing.T) {
	s := newService(t, testConfig(true))
	require.NoError(t, eventbus.Subscribe(s.Bus, model.TopicTick, "faulty", func(int) { panic("tick handler") }))
	require.NoError(t, eventbus.Subscribe(s.Bus, model.TopicPose, "faulty", func(model.Pose) { panic("pose handler") }))

	for i := 0; i < 3; i++ {
		s.Step()
	}
	assert.EqualValues(t, 3, s.Steps())
	assert.EqualValues(t, 3, s.Scheduler.State().Ticks, "subscribers registered earlier still run")
}

func TestServiceLoadsMap(t *testing.T) {
	dim := 40
	rows := make([][]float64, dim)
	for i := range rows {
		rows[i] = make([]float64, dim)
		rows[i][30] = 1
	}
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg := testConfig(false)
	cfg.Map.Path = path
	cfg.Map.SavePath = ""
	cfg.Grid.Transform = grid.Transform{MinX: -5, MinY: -5, Span: 10, Dim: dim}
	cfg.Grid.Kernel = 3
	cfg.Sim.LidarBeams = 8
	cfg.SetDefaults()
	s := newService(t, cfg)

	assert.Equal(t, dim, s.Map.Raw().Count())
	s.Step()
	hits, _ := s.Mapper.Stats()
	assert.Positive(t, hits)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(true)
	cfg.Loop.PeriodMS = 5
	s := newService(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Positive(t, s.Steps())
	assert.Error(t, s.Run(context.Background()), "a service runs once")
}

func TestServiceTasksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patrol:\n  - {x: -3, y: 1}\n"), 0o644))
	cfg := testConfig(false)
	cfg.TasksFile = path
	s := newService(t, cfg)
	assert.Equal(t, model.Point{X: -3, Y: 1}, s.Tree.Patrol.Current())
}
