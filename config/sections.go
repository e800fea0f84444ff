package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/grocerybot/core/factory"
	"github.com/kilianp07/grocerybot/core/mapping"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// BusConfig tunes the message bus.
type BusConfig struct {
	// History is the number of values retained per topic.
	History  int `json:"history"`
	MaxDepth int `json:"max_depth"`
}

func (c *BusConfig) SetDefaults() {
	if c.History == 0 {
		c.History = eventbus.DefaultHistory
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = eventbus.DefaultMaxDepth
	}
}

func (c BusConfig) Validate() error {
	if c.History < 0 || c.MaxDepth <= 0 {
		return errors.New("history must not be negative and max_depth must be positive")
	}
	return nil
}

// LoopConfig drives the control loop clock.
type LoopConfig struct {
	// PeriodMS is the tick period published on /cmd_tick.
	PeriodMS int `json:"period_ms"`
	// Fast runs the simulated loop without waiting for the wall clock.
	Fast bool `json:"fast"`
	// Autonomous is the initial mode.
	Autonomous *bool `json:"autonomous"`
	// Inbox bounds the queue of externally received commands.
	Inbox int `json:"inbox"`
}

func (c *LoopConfig) SetDefaults() {
	if c.PeriodMS == 0 {
		c.PeriodMS = 32
	}
	if c.Autonomous == nil {
		on := true
		c.Autonomous = &on
	}
	if c.Inbox == 0 {
		c.Inbox = 64
	}
}

func (c LoopConfig) Validate() error {
	if c.PeriodMS <= 0 {
		return fmt.Errorf("period_ms must be positive, got %d", c.PeriodMS)
	}
	return nil
}

// Period returns the tick period.
func (c LoopConfig) Period() time.Duration { return time.Duration(c.PeriodMS) * time.Millisecond }

// MapConfig locates the persisted raster.
type MapConfig struct {
	// Path of the .npy or .json raster loaded at start-up. Empty starts
	// with an empty map.
	Path string `json:"path"`
	// SavePath receives the mapped raster. It defaults to Path.
	SavePath string         `json:"save_path"`
	Mapping  mapping.Config `json:"mapping"`
}

func (c *MapConfig) SetDefaults() {
	if c.SavePath == "" {
		c.SavePath = c.Path
	}
	c.Mapping.SetDefaults()
}

// TraceConfig selects the decision trace store.
type TraceConfig struct {
	Store factory.ModuleConfig `json:"store"`
	// Buffer is the writer queue size.
	Buffer int `json:"buffer"`
}

func (c *TraceConfig) SetDefaults() {
	if c.Buffer == 0 {
		c.Buffer = 256
	}
}

// APIConfig exposes the introspection HTTP API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token, when set, is required as a bearer token.
	Token string `json:"token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func (c APIConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}
