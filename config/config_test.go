package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `bus:
  history: 4
grid:
  kernel: 9
planner:
  iterations: 500
  seed: 42
controller:
  max_wheel_speed: 5
tasks:
  aisle_width: 3
  patrol:
    - {x: 1, y: 2}
    - {x: 3, y: 4}
loop:
  period_ms: 16
  fast: true
map:
  path: "maps/store.npy"
  mapping:
    allow_save: true
mqtt:
  enabled: true
  broker: "tcp://broker:1883"
  client_id: "bot1"
  codec: "cbor"
metrics:
  sinks:
    - type: "nop"
  prometheus_addr: ":9100"
trace:
  store:
    type: "sqlite"
    conf:
      path: "trace.db"
sentry:
  dsn: "https://key@example.com/1"
  robot: "bot1"
sim:
  enabled: true
  lidar_beams: 36
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"bus.history", cfg.Bus.History, 4},
		{"bus.max_depth", cfg.Bus.MaxDepth, 8},
		{"grid.kernel", cfg.Grid.Kernel, 9},
		{"grid.dim", cfg.Grid.Transform.Dim, 360},
		{"planner.iterations", cfg.Planner.Iterations, 500},
		{"planner.seed", cfg.Planner.Seed, int64(42)},
		{"controller.max_wheel_speed", cfg.Controller.MaxWheelSpeed, 5.0},
		{"controller.axle_length", cfg.Controller.AxleLength, 0.4044},
		{"tasks.aisle_width", cfg.Tasks.AisleWidth, 3.0},
		{"tasks.patrol", len(cfg.Tasks.Patrol), 2},
		{"teleop.max_speed", cfg.Teleop.MaxSpeed, 7.0},
		{"loop.period_ms", cfg.Loop.PeriodMS, 16},
		{"loop.fast", cfg.Loop.Fast, true},
		{"loop.autonomous", *cfg.Loop.Autonomous, true},
		{"map.save_path", cfg.Map.SavePath, "maps/store.npy"},
		{"map.allow_save", cfg.Map.Mapping.AllowSave, true},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://broker:1883"},
		{"mqtt.codec", cfg.MQTT.Codec, "cbor"},
		{"mqtt.prefix", cfg.MQTT.Prefix, "grocerybot"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"trace.type", cfg.Trace.Store.Type, "sqlite"},
		{"trace.path", cfg.Trace.Store.Conf["path"], "trace.db"},
		{"trace.buffer", cfg.Trace.Buffer, 256},
		{"sentry.robot", cfg.Sentry.Robot, "bot1"},
		{"sim.lidar_beams", cfg.Sim.LidarBeams, 36},
		{"sim.wheel_radius", cfg.Sim.WheelRadius, 0.0985},
		{"api.addr", cfg.API.Addr, ":8080"},
		{"logging.level", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadJSONAndEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"loop": {"period_ms": 20}, "logging": {"level": "debug"}}`)
	t.Setenv("K_LOOP__PERIOD_MS", "50")
	t.Setenv("K_API__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Loop.PeriodMS)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "debug", cfg.Logging.Options().Level)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Loop, cfg.Loop)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Empty(t, cfg.MQTT.Broker, "disabled mqtt keeps its zero value")
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"format.toml": "loop = 1",
		"period.yaml": "loop:\n  period_ms: -5\n",
		"kernel.yaml": "grid:\n  kernel: 4\n",
		"level.yaml":  "logging:\n  level: loud\n",
		"gates.yaml":  "tasks:\n  gates: [0.5, 0.9]\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, name, data))
			assert.Error(t, err)
		})
	}
}
