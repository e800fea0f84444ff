// Package mapping accumulates lidar hits into a raw occupancy raster and
// hands thresholded snapshots of it to the planner.
package mapping

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ID is the bus identity of the mapper.
const ID = "mapper"

// Map commands accepted on /cmd_map.
const (
	CmdLoad   = "load"
	CmdSave   = "save"
	CmdCommit = "commit"
)

var (
	// ErrLocked is returned by Save while saving is disabled.
	ErrLocked = errors.New("map is locked")
	// ErrNoStore is returned by Load and Save without a Store.
	ErrNoStore = errors.New("no map store configured")
	// ErrUnknownCommand is returned for unrecognised map commands.
	ErrUnknownCommand = errors.New("unknown map command")
)

// Store persists raw rasters.
type Store interface {
	Load() (*mat.Dense, error)
	Save(raw mat.Matrix) error
}

// Target receives the occupancy grid derived from the raw raster.
type Target interface {
	SetMap(raw *grid.Grid) error
}

// Config tunes the mapper.
type Config struct {
	// Increment is added to a cell for every lidar hit.
	Increment float64 `json:"increment"`
	// Threshold above which accumulated cells are occupied.
	Threshold float64 `json:"threshold"`
	// AllowSave unlocks Save. Saving is refused by default so that a good
	// map on disk is not overwritten by accident.
	AllowSave bool `json:"allow_save"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Increment == 0 {
		c.Increment = 5e-3
	}
	if c.Threshold == 0 {
		c.Threshold = 0.7
	}
}

// Mapper owns the raw raster.
type Mapper struct {
	tf     grid.Transform
	cfg    Config
	store  Store
	target Target
	log    logger.Logger

	mu      sync.RWMutex
	raw     *mat.Dense
	hits    int
	skipped int
}

// New creates a mapper and subscribes it to lidar readings and map commands.
// store and target may be nil.
func New(b *eventbus.Bus, tf grid.Transform, cfg Config, store Store, target Target, log logger.Logger) (*Mapper, error) {
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	m := &Mapper{
		tf:     tf,
		cfg:    cfg,
		store:  store,
		target: target,
		log:    logger.OrNop(log),
		raw:    mat.NewDense(tf.Dim, tf.Dim, nil),
	}
	if err := eventbus.Subscribe(b, model.TopicLidar, ID, func(hits []model.Point) { m.Observe(hits) }); err != nil {
		return nil, err
	}
	if err := eventbus.Subscribe(b, model.TopicMap, ID, func(cmd string) {
		if err := m.Command(cmd); err != nil {
			m.log.Warnf("map command %q: %v", cmd, err)
		}
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe accumulates world frame lidar hits and returns how many landed on
// the map. Hits outside the map are skipped.
func (m *Mapper) Observe(hits []model.Point) int {
	var applied int
	var outside error
	m.mu.Lock()
	for _, p := range hits {
		c, err := m.tf.ToGrid(p)
		if err != nil {
			m.skipped++
			outside = err
			continue
		}
		v := m.raw.At(c.Row, c.Col) + m.cfg.Increment
		m.raw.Set(c.Row, c.Col, min(max(v, 0), 1))
		applied++
	}
	m.hits += applied
	m.mu.Unlock()
	if outside != nil {
		m.log.Debugf("%d of %d lidar hits outside the map: %v", len(hits)-applied, len(hits), outside)
	}
	return applied
}

// Command executes a map command.
func (m *Mapper) Command(cmd string) error {
	switch cmd {
	case CmdLoad:
		return m.Load()
	case CmdSave:
		return m.Save()
	case CmdCommit:
		return m.Commit()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// Load replaces the raw raster with the stored one and commits it.
func (m *Mapper) Load() error {
	if m.store == nil {
		return ErrNoStore
	}
	raw, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	if r, c := raw.Dims(); r != m.tf.Dim || c != m.tf.Dim {
		return fmt.Errorf("load map: raster is %dx%d, expected %dx%d", r, c, m.tf.Dim, m.tf.Dim)
	}
	m.mu.Lock()
	m.raw = raw
	m.mu.Unlock()
	m.log.Infof("map loaded")
	return m.Commit()
}

// Save writes the raw raster to the store.
func (m *Mapper) Save() error {
	if !m.cfg.AllowSave {
		return ErrLocked
	}
	if m.store == nil {
		return ErrNoStore
	}
	if err := m.store.Save(m.Raw()); err != nil {
		return fmt.Errorf("save map: %w", err)
	}
	m.log.Infof("map saved")
	return nil
}

// Commit thresholds the raw raster and pushes it to the target.
func (m *Mapper) Commit() error {
	g, err := m.Occupancy()
	if err != nil {
		return err
	}
	if m.target == nil {
		return nil
	}
	if err := m.target.SetMap(g); err != nil {
		return fmt.Errorf("commit map: %w", err)
	}
	m.log.Infof("map committed with %d occupied cells", g.Count())
	return nil
}

// Occupancy returns the thresholded raw raster.
func (m *Mapper) Occupancy() (*grid.Grid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return grid.FromDense(m.raw, m.cfg.Threshold)
}

// Raw returns a copy of the raw raster.
func (m *Mapper) Raw() *mat.Dense {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mat.DenseCopyOf(m.raw)
}

// Stats returns the number of applied and skipped hits.
func (m *Mapper) Stats() (hits, skipped int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.skipped
}
