// Package config loads the robot configuration from a YAML or JSON file with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/grid"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/planner"
	"github.com/kilianp07/grocerybot/core/tasks"
	"github.com/kilianp07/grocerybot/core/teleop"
	"github.com/kilianp07/grocerybot/infra/mqtt"
	"github.com/kilianp07/grocerybot/internal/sim"
)

// EnvPrefix marks environment overrides, e.g. K_MQTT__BROKER.
const EnvPrefix = "K_"

type Config struct {
	Bus        BusConfig          `json:"bus"`
	Grid       grid.Config        `json:"grid"`
	Planner    planner.Config     `json:"planner"`
	Controller control.Config     `json:"controller"`
	Tasks      tasks.Config       `json:"tasks"`
	// TasksFile, when set, replaces the tasks section with a separate
	// behaviour tree tuning file.
	TasksFile  string             `json:"tasks_file"`
	Teleop     teleop.Config      `json:"teleop"`
	Loop       LoopConfig         `json:"loop"`
	Map        MapConfig          `json:"map"`
	Logging    LoggingConfig      `json:"logging"`
	Trace      TraceConfig        `json:"trace"`
	Metrics    coremetrics.Config `json:"metrics"`
	MQTT       mqtt.Config        `json:"mqtt"`
	Sentry     SentryConfig       `json:"sentry"`
	API        APIConfig          `json:"api"`
	Sim        sim.Config         `json:"sim"`
}

// Load reads the configuration at path. An empty path starts from the
// defaults so that environment overrides alone are enough.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Bus.SetDefaults()
	c.Grid.SetDefaults()
	c.Planner.SetDefaults()
	c.Controller.SetDefaults()
	c.Tasks.SetDefaults()
	c.Teleop.SetDefaults()
	c.Loop.SetDefaults()
	c.Map.SetDefaults()
	c.Logging.SetDefaults()
	c.Trace.SetDefaults()
	c.API.SetDefaults()
	c.Sim.SetDefaults()
	if c.MQTT.Enabled {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and names the first one that fails.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"bus", c.Bus.Validate},
		{"grid", c.Grid.Validate},
		{"planner", c.Planner.Validate},
		{"controller", c.Controller.Validate},
		{"tasks", c.Tasks.Validate},
		{"loop", c.Loop.Validate},
		{"logging", c.Logging.Validate},
		{"api", c.API.Validate},
		{"sim", c.Sim.Validate},
	}
	if c.MQTT.Enabled {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"mqtt", c.MQTT.Validate})
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}
