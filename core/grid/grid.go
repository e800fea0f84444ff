// Package grid holds the occupancy raster used for planning and the affine
// transform between world metres and grid cells.
package grid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Grid is a square occupancy raster. Cells hold 0 (free) or 1 (occupied) and
// are indexed by row (world y) then column (world x).
type Grid struct {
	dim   int
	cells *mat.Dense
}

// New returns an empty dim x dim grid.
func New(dim int) *Grid {
	return &Grid{dim: dim, cells: mat.NewDense(dim, dim, nil)}
}

// FromDense builds a grid from a square matrix, marking cells whose value
// exceeds threshold as occupied.
func FromDense(m mat.Matrix, threshold float64) (*Grid, error) {
	r, c := m.Dims()
	if r != c || r == 0 {
		return nil, fmt.Errorf("occupancy raster must be square, got %dx%d", r, c)
	}
	g := New(r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) > threshold {
				g.cells.Set(i, j, 1)
			}
		}
	}
	return g, nil
}

// Dim returns the number of cells per side.
func (g *Grid) Dim() int { return g.dim }

// InBounds reports whether c lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.Col >= 0 && c.Row >= 0 && c.Col < g.dim && c.Row < g.dim
}

// Occupied reports whether c is occupied. Cells outside the grid count as
// occupied.
func (g *Grid) Occupied(c Cell) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.cells.At(c.Row, c.Col) != 0
}

// Set marks c occupied or free. Out of bounds cells are ignored.
func (g *Grid) Set(c Cell, occupied bool) {
	if !g.InBounds(c) {
		return
	}
	v := 0.0
	if occupied {
		v = 1
	}
	g.cells.Set(c.Row, c.Col, v)
}

// Valid reports whether the fractional grid coordinate (x, y) is inside the
// grid and on a free cell.
func (g *Grid) Valid(x, y float64) bool {
	if x < 0 || y < 0 || x >= float64(g.dim) || y >= float64(g.dim) {
		return false
	}
	return g.cells.At(int(y), int(x)) == 0
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for i := 0; i < g.dim; i++ {
		for j := 0; j < g.dim; j++ {
			if g.cells.At(i, j) != 0 {
				n++
			}
		}
	}
	return n
}

// Dense returns a copy of the raster.
func (g *Grid) Dense() *mat.Dense {
	return mat.DenseCopyOf(g.cells)
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	return &Grid{dim: g.dim, cells: mat.DenseCopyOf(g.cells)}
}

// Inflate returns a new grid where every cell whose kernel x kernel
// neighbourhood holds more than fraction*kernel^2 occupied cells is occupied.
// Neighbours outside the grid count as occupied, so the border is always
// inflated. g is left untouched.
func (g *Grid) Inflate(kernel int, fraction float64) (*Grid, error) {
	if kernel <= 0 || kernel%2 == 0 {
		return nil, fmt.Errorf("inflation kernel must be a positive odd size, got %d", kernel)
	}
	n := g.dim
	// sat[i][j] is the sum of cells[0:i][0:j]
	sat := make([][]float64, n+1)
	for i := range sat {
		sat[i] = make([]float64, n+1)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sat[i+1][j+1] = g.cells.At(i, j) + sat[i][j+1] + sat[i+1][j] - sat[i][j]
		}
	}
	half := kernel / 2
	area := float64(kernel * kernel)
	limit := area * fraction
	out := New(n)
	for i := 0; i < n; i++ {
		r0, r1 := max(i-half, 0), min(i+half+1, n)
		for j := 0; j < n; j++ {
			c0, c1 := max(j-half, 0), min(j+half+1, n)
			inside := sat[r1][c1] - sat[r0][c1] - sat[r1][c0] + sat[r0][c0]
			outside := area - float64((r1-r0)*(c1-c0))
			if inside+outside > limit {
				out.cells.Set(i, j, 1)
			}
		}
	}
	return out, nil
}
