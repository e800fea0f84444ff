// Package maps persists raw occupancy rasters. Files are NumPy .npy arrays of
// float64 or JSON arrays of rows.
package maps

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/grocerybot/core/grid"
)

// Raster formats, selected from the file extension.
const (
	FormatNPY  = "npy"
	FormatJSON = "json"
)

// FileStore reads and writes a raster file. It implements mapping.Store.
type FileStore struct {
	path   string
	format string
}

// NewFileStore returns a store for path. The format follows the extension.
func NewFileStore(path string) (*FileStore, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != FormatNPY && format != FormatJSON {
		return nil, fmt.Errorf("unsupported map format %q", filepath.Ext(path))
	}
	return &FileStore{path: path, format: format}, nil
}

// Path returns the raster file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the raster.
func (s *FileStore) Load() (*mat.Dense, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if s.format == FormatNPY {
		return ReadNPY(f)
	}
	return ReadJSON(f)
}

// Save writes raw through a temporary file so a failed write never
// truncates the previous raster.
func (s *FileStore) Save(raw mat.Matrix) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".map-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if s.format == FormatNPY {
		err = WriteNPY(tmp, raw)
	} else {
		err = WriteJSON(tmp, raw)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write map %s: %w", s.path, err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// ReadNPY decodes a 2-D float64 NumPy array.
func ReadNPY(r io.Reader) (*mat.Dense, error) {
	var m mat.Dense
	if err := npyio.Read(r, &m); err != nil {
		return nil, fmt.Errorf("read npy: %w", err)
	}
	return &m, nil
}

// WriteNPY encodes raw as a 2-D float64 NumPy array.
func WriteNPY(w io.Writer, raw mat.Matrix) error {
	return npyio.Write(w, mat.DenseCopyOf(raw))
}

// ReadJSON decodes an array of equally long rows.
func ReadJSON(r io.Reader) (*mat.Dense, error) {
	var rows [][]float64
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("read json raster: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("read json raster: empty")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("read json raster: row %d has %d values, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// WriteJSON encodes raw as an array of rows.
func WriteJSON(w io.Writer, raw mat.Matrix) error {
	r, c := raw.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = raw.At(i, j)
		}
	}
	return json.NewEncoder(w).Encode(rows)
}

// LoadGrid reads the raster at path and thresholds it into a grid.
func LoadGrid(path string, threshold float64) (*grid.Grid, error) {
	s, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	raw, err := s.Load()
	if err != nil {
		return nil, err
	}
	return grid.FromDense(raw, threshold)
}
