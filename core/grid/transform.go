package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/grocerybot/core/model"
)

// ErrOutOfBounds reports a coordinate outside the grid extent.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// BoundsError carries the offending world coordinate.
type BoundsError struct {
	X, Y float64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("(%.3f, %.3f): %v", e.X, e.Y, ErrOutOfBounds)
}

func (e *BoundsError) Unwrap() error { return ErrOutOfBounds }

// Cell is an integer grid index. Col follows world x, Row follows world y.
type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Transform maps a square world region onto a Dim x Dim grid.
type Transform struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	Span float64 `json:"span"`
	Dim  int     `json:"dim"`
}

// DefaultTransform covers the 30 m square store centred on the origin with
// 360 cells per side.
func DefaultTransform() Transform {
	return Transform{MinX: -15, MinY: -15, Span: 30, Dim: 360}
}

// CellSize is the world length of one cell side.
func (t Transform) CellSize() float64 { return t.Span / float64(t.Dim) }

// Validate checks the transform is usable.
func (t Transform) Validate() error {
	if t.Dim <= 0 {
		return fmt.Errorf("grid dim must be positive, got %d", t.Dim)
	}
	if t.Span <= 0 {
		return fmt.Errorf("grid span must be positive, got %f", t.Span)
	}
	return nil
}

// Scale returns the world coordinate in fractional cell units without
// bounds checking.
func (t Transform) Scale(p model.Point) (float64, float64) {
	k := float64(t.Dim) / t.Span
	return (p.X - t.MinX) * k, (p.Y - t.MinY) * k
}

// ToGrid returns the cell containing p.
func (t Transform) ToGrid(p model.Point) (Cell, error) {
	gx, gy := t.Scale(p)
	c := Cell{Col: int(math.Floor(gx)), Row: int(math.Floor(gy))}
	if c.Col < 0 || c.Row < 0 || c.Col >= t.Dim || c.Row >= t.Dim {
		return Cell{}, &BoundsError{X: p.X, Y: p.Y}
	}
	return c, nil
}

// ToWorld maps fractional grid coordinates back to the world. It is the
// exact inverse of Scale.
func (t Transform) ToWorld(gx, gy float64) model.Point {
	k := t.Span / float64(t.Dim)
	return model.Point{X: gx*k + t.MinX, Y: gy*k + t.MinY}
}

// CellToWorld returns the world position of the cell origin.
func (t Transform) CellToWorld(c Cell) model.Point {
	return t.ToWorld(float64(c.Col), float64(c.Row))
}
