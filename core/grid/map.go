package grid

import (
	"fmt"
	"sync"
)

// Config describes the map geometry and inflation parameters.
type Config struct {
	Transform Transform `json:"transform"`
	// Kernel is the side of the square inflation kernel, in cells.
	Kernel int `json:"kernel"`
	// Fraction of the kernel area that must be occupied to inflate a cell.
	Fraction float64 `json:"fraction"`
	// Threshold above which raw raster values are occupied.
	Threshold float64 `json:"threshold"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Transform.Dim == 0 && c.Transform.Span == 0 {
		c.Transform = DefaultTransform()
	}
	if c.Kernel == 0 {
		c.Kernel = 15
	}
	if c.Fraction == 0 {
		c.Fraction = 0.01
	}
	if c.Threshold == 0 {
		c.Threshold = 0.7
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Transform.Validate(); err != nil {
		return err
	}
	if c.Kernel <= 0 || c.Kernel%2 == 0 {
		return fmt.Errorf("kernel must be a positive odd size, got %d", c.Kernel)
	}
	if c.Fraction <= 0 || c.Fraction > 1 {
		return fmt.Errorf("fraction must be in (0, 1], got %f", c.Fraction)
	}
	return nil
}

// Map pairs the raw occupancy grid with its inflated planning grid.
type Map struct {
	cfg Config

	mu       sync.RWMutex
	raw      *Grid
	inflated *Grid
}

// NewMap builds a map from raw. A nil raw grid starts an empty map.
func NewMap(cfg Config, raw *Grid) (*Map, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Map{cfg: cfg}
	if raw == nil {
		raw = New(cfg.Transform.Dim)
	}
	if err := m.SetRaw(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// SetRaw replaces the raw grid and recomputes the planning grid.
func (m *Map) SetRaw(raw *Grid) error {
	if raw.Dim() != m.cfg.Transform.Dim {
		return fmt.Errorf("raster is %d cells wide, map expects %d", raw.Dim(), m.cfg.Transform.Dim)
	}
	inflated, err := raw.Inflate(m.cfg.Kernel, m.cfg.Fraction)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = raw
	m.inflated = inflated
	m.mu.Unlock()
	return nil
}

// Transform returns the world to grid transform.
func (m *Map) Transform() Transform { return m.cfg.Transform }

// Config returns the map configuration.
func (m *Map) Config() Config { return m.cfg }

// Raw returns the raw grid. Callers must not mutate it.
func (m *Map) Raw() *Grid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw
}

// Planning returns the inflated grid.
func (m *Map) Planning() *Grid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inflated
}
