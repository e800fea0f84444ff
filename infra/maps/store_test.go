package maps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/grocerybot/core/grid"
)

func raster() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	m.Set(0, 0, 1)
	m.Set(1, 2, 0.8)
	m.Set(3, 3, 0.5)
	return m
}

func TestFileStoreRoundTrip(t *testing.T) {
	for _, ext := range []string{".npy", ".json"} {
		t.Run(ext, func(t *testing.T) {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "map"+ext))
			require.NoError(t, err)
			require.NoError(t, s.Save(raster()))
			got, err := s.Load()
			require.NoError(t, err)
			assert.True(t, mat.Equal(raster(), got))
		})
	}
}

func TestSaveKeepsPreviousOnFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "map.json"))
	require.NoError(t, err)
	require.NoError(t, s.Save(raster()))
	require.NoError(t, os.Chmod(dir, 0o500))
	defer func() { _ = os.Chmod(dir, 0o700) }()
	assert.Error(t, s.Save(mat.NewDense(2, 2, nil)))
	got, err := s.Load()
	require.NoError(t, err)
	assert.True(t, mat.Equal(raster(), got))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewFileStore("map.png")
	assert.Error(t, err)
}

func TestReadJSONRejectsRaggedRows(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`[[0,1],[0]]`))
	assert.Error(t, err)
	_, err = ReadJSON(strings.NewReader(`[]`))
	assert.Error(t, err)
}

func TestLoadGridThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.npy")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(raster()))

	g, err := LoadGrid(path, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Dim())
	assert.True(t, g.Occupied(grid.Cell{Row: 0, Col: 0}))
	assert.True(t, g.Occupied(grid.Cell{Row: 1, Col: 2}))
	assert.False(t, g.Occupied(grid.Cell{Row: 3, Col: 3}))
	assert.Equal(t, 2, g.Count())
}
